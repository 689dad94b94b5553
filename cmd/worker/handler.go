package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"

	"github.com/antosomzi/traffic-sign-app/internal/pipeline"
	"github.com/antosomzi/traffic-sign-app/internal/task"
)

type Handler struct {
	Dispatcher *pipeline.Dispatcher // required
}

func (h *Handler) Run(m amqp091.Delivery) {
	ctx := context.Background()

	err := m.Headers.Validate()
	if err != nil {
		err = fmt.Errorf("invalid header: %w", err)
		slog.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}

	var msg task.RunTask
	dec := json.NewDecoder(bytes.NewReader(m.Body))
	err = dec.Decode(&msg)
	if err != nil {
		err = fmt.Errorf("invalid body: %w", err)
		slog.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}
	if dec.More() {
		err = errors.New("multiple top-level values")
		err = fmt.Errorf("invalid body: %w", err)
		slog.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}
	if msg.RecordingID == "" {
		err = fmt.Errorf("missing %s body field", "recording_id")
		slog.Error("", "err", err)
		_ = m.Nack(false, false)
		return
	}

	err = h.Dispatcher.Process(ctx, msg.RecordingID)
	if err != nil {
		// Explained failures are terminal: the status record already
		// tells the user what happened and a redelivery would only
		// repeat the same outcome. Same for a recording that is gone.
		if errors.Is(err, pipeline.ErrExplained) || errors.Is(err, pipeline.ErrNotFound) {
			slog.Error("pipeline run failed", "recording_id", msg.RecordingID, "err", err)
			_ = m.Ack(false)
			return
		}
		slog.Error("pipeline run failed, requeueing", "recording_id", msg.RecordingID, "err", err)
		_ = m.Nack(false, true)
		return
	}

	slog.Info("pipeline run completed", "recording_id", msg.RecordingID)
	_ = m.Ack(false)
}
