package sshexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patchrun/patchrun/internal/models"
)

// Request describes one remote command invocation.
type Request struct {
	Address    string
	Port       int
	User       string
	Credential models.Credential
	Command    string
	Timeout    time.Duration
}

// Result carries the combined output and exit status of a remote command.
// A non-zero exit status is not an error; transport failures are.
type Result struct {
	Output   string
	ExitCode int
}

type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// TimeoutError reports a command abandoned at its timeout boundary.
type TimeoutError struct {
	Address string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command on %s timed out after %s", e.Address, e.After)
}

// ConnectionError reports a transport failure before or during execution.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CapabilityError reports a credential that the transport cannot satisfy.
type CapabilityError struct {
	Method string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("no transport capability for auth method %q", e.Method)
}

// IsTransient reports whether err is a timeout or connection failure. Callers
// dispatching reboot commands swallow exactly these.
func IsTransient(err error) bool {
	var te *TimeoutError
	var ce *ConnectionError
	return errors.As(err, &te) || errors.As(err, &ce)
}

// Join builds a shell command line from an argument vector, quoting each
// argument so that configuration values are never interpreted by the remote
// shell.
func Join(argv ...string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quote(arg)
	}
	return strings.Join(quoted, " ")
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'`$\\!*?[]{}()<>|&;#~") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
