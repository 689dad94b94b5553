package gpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// CommandResult is the outcome of a remote command that ran to
// completion, successfully or not.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner executes commands on a connected remote host.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*CommandResult, error)
	Close() error
}

// Dialer opens a command channel to a remote host.
type Dialer interface {
	Dial(ctx context.Context, host string) (CommandRunner, error)
}

// KeyDialer connects over SSH with a private key file.
type KeyDialer struct {
	User    string // required
	KeyPath string // required
	Timeout time.Duration
}

var _ Dialer = (*KeyDialer)(nil)

func (d *KeyDialer) Dial(ctx context.Context, host string) (CommandRunner, error) {
	key, err := os.ReadFile(d.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("gpu.KeyDialer: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("gpu.KeyDialer: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.Timeout,
	}

	addr := net.JoinHostPort(host, "22")
	netDialer := &net.Dialer{Timeout: d.Timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gpu.KeyDialer: %w", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gpu.KeyDialer: %w", err)
	}

	return &sshRunner{client: ssh.NewClient(c, chans, reqs)}, nil
}

type sshRunner struct {
	client *ssh.Client
}

func (r *sshRunner) Run(ctx context.Context, command string) (*CommandResult, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("gpu: run remote command: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err = session.Start(command); err != nil {
		return nil, fmt.Errorf("gpu: run remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("gpu: run remote command: %w", ctx.Err())
	case err = <-done:
	}

	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("gpu: run remote command: %w", err)
		}
		result.ExitCode = exitErr.ExitStatus()
	}
	return result, nil
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}
