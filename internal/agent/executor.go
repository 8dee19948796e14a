package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nuetzliches/monitord/internal/poller"
)

var ErrTimeout = errors.New("timeout while executing a shell script")

// Executor runs user-parameter commands through a shell.
type Executor struct {
	Registry *Registry
	// Timeout bounds one command; defaults to 3s.
	Timeout time.Duration
	// Shell defaults to "/bin/sh".
	Shell string
	// Dir is the working directory of commands; empty means the daemon's.
	Dir string
}

// Run executes the command registered for itemKey and returns its standard
// output with trailing whitespace removed.
func (e *Executor) Run(ctx context.Context, itemKey string) (string, error) {
	if e.Registry == nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedItem, itemKey)
	}
	command, err := e.Registry.Command(itemKey)
	if err != nil {
		return "", err
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = e.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("execute %q: %w", itemKey, err)
		}
		// A non-zero exit still yields a value when the command printed one.
		if stdout.Len() == 0 {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return "", fmt.Errorf("execute %q: %s", itemKey, msg)
		}
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

// Execute lets the agent's pool run user parameters as checks.
func (e *Executor) Execute(ctx context.Context, c poller.Check) (string, error) {
	return e.Run(ctx, c.ItemKey)
}

var _ poller.Executor = (*Executor)(nil)
