package gpu

import (
	"context"
	"strings"
)

var (
	_ Dialer        = (*StubDialer)(nil)
	_ CommandRunner = (*StubRunner)(nil)
)

type StubDialer struct {
	Runner  *StubRunner
	DialErr error

	dialedHosts []string
}

func (d *StubDialer) Dial(_ context.Context, host string) (CommandRunner, error) {
	d.dialedHosts = append(d.dialedHosts, host)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Runner, nil
}

// StubRunner answers mount, docker and tail commands with canned
// results and records everything it was asked to run.
type StubRunner struct {
	MountResult    *CommandResult
	PipelineResult *CommandResult
	LogTail        string

	commands []string
	closed   bool
}

func (r *StubRunner) Run(_ context.Context, command string) (*CommandResult, error) {
	r.commands = append(r.commands, command)
	switch {
	case strings.HasPrefix(command, "sudo mkdir"):
		if r.MountResult != nil {
			return r.MountResult, nil
		}
	case strings.HasPrefix(command, "sudo docker"):
		if r.PipelineResult != nil {
			return r.PipelineResult, nil
		}
	case strings.HasPrefix(command, "tail"):
		return &CommandResult{Stdout: r.LogTail}, nil
	}
	return &CommandResult{}, nil
}

func (r *StubRunner) Close() error {
	r.closed = true
	return nil
}
