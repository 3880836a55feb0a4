/*
A wrapper around the os/exec package that supports timeouts and testing.

Example usage:

	output := bytes.Buffer{}
	err := exec.Run(ctx, &exec.Command{
		Name:    "git",
		Args:    []string{"rev-parse", "HEAD"},
		Dir:     checkoutDir,
		Stdout:  &output,
		Timeout: time.Minute,
	})

Inject a Run function for testing:

	mock := exec.CommandCollector{}
	ctx := exec.NewContext(context.Background(), mock.Run)
	TestCodeCallingRun(ctx)
	assert.Equal(t, "git rev-parse HEAD", exec.DebugString(mock.Commands()[0]))
*/
package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"time"

	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Command describes a process to run.
type Command struct {
	// Name of the command, as passed to osexec.Command. Can be the path to a binary or the
	// name of a command that osexec.Lookpath can find.
	Name string
	// Arguments of the command, not including Name.
	Args []string
	// Env is added to the environment of the current process.
	Env []string
	// The working directory of the command. If empty, runs in the current process's current
	// directory.
	Dir string
	// See docs for osexec.Cmd.Stdin.
	Stdin io.Reader
	// Sends the stdout of the command to this Writer, e.g. os.File or bytes.Buffer.
	Stdout io.Writer
	// Sends the stderr of the command to this Writer.
	Stderr io.Writer
	// Time limit to wait for the command to finish. No limit if not specified.
	Timeout time.Duration
}

// ExitError is returned when the command ran but exited with a non-zero
// status.
type ExitError struct {
	Code int
	err  error
}

func (e *ExitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.err
}

// DebugString returns the command line, for logging and tests.
func DebugString(command *Command) string {
	return strings.TrimSpace(strings.Join(append([]string{command.Name}, command.Args...), " "))
}

// RunFn runs a Command.
type RunFn func(context.Context, *Command) error

type contextKeyType string

const contextKey contextKeyType = "execRun"

// NewContext returns a context whose calls to Run use runFn.
func NewContext(ctx context.Context, runFn RunFn) context.Context {
	return context.WithValue(ctx, contextKey, runFn)
}

// Run runs command and waits for it to finish, using the RunFn stored in ctx
// if there is one.
func Run(ctx context.Context, command *Command) error {
	if runFn, ok := ctx.Value(contextKey).(RunFn); ok {
		return runFn(ctx, command)
	}
	return DefaultRun(ctx, command)
}

// DefaultRun starts a real process.
func DefaultRun(ctx context.Context, command *Command) error {
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}
	cmd := osexec.CommandContext(ctx, command.Name, command.Args...)
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Dir = command.Dir
	cmd.Stdin = command.Stdin
	cmd.Stdout = command.Stdout
	cmd.Stderr = command.Stderr

	sklog.Debugf("Executing %s", DebugString(command))
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return skerr.Wrapf(ctx.Err(), "command %q did not finish", DebugString(command))
	}
	if exitErr, ok := err.(*osexec.ExitError); ok {
		return &ExitError{Code: exitErr.ExitCode(), err: skerr.Wrapf(err, "command %q failed", DebugString(command))}
	}
	return skerr.Wrapf(err, "unable to run %q", DebugString(command))
}
