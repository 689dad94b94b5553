package task

import (
	"context"
	"errors"
)

var _ Broker = (*StubBroker)(nil)

// StubBroker records sent tasks and optionally fails every send.
type StubBroker struct {
	Sent    []*RunTask
	SendErr error
}

func (b *StubBroker) SendRunTask(_ context.Context, t *RunTask) error {
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, t)
	return nil
}

var errBrokerDown = errors.New("broker down")
