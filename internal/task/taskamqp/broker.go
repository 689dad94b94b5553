// Package taskamqp is the RabbitMQ implementation of task.Broker.
package taskamqp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antosomzi/traffic-sign-app/internal/task"
)

type Broker struct {
	MQ *amqp091.Connection // required
}

func (b *Broker) SendRunTask(ctx context.Context, t *task.RunTask) error {
	ch, err := b.MQ.Channel()
	if err != nil {
		return fmt.Errorf("send run task: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(task.QueueName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("send run task: %w", err)
	}

	body := &bytes.Buffer{}
	if err = json.NewEncoder(body).Encode(t); err != nil {
		return fmt.Errorf("send run task: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType: "application/json",
		Body:        body.Bytes(),
	}

	err = ch.PublishWithContext(ctx, "", q.Name, false, false, msg)
	if err != nil {
		return fmt.Errorf("send run task: %w", err)
	}

	return nil
}
