// Package runner executes the external programs the updater depends on
// (git and the package manager).
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes external commands.
type Runner interface {
	// Run executes name with args in dir and returns its trimmed stdout.
	// A non-zero exit is reported as an *ExitError.
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExitCode extracts the exit code from err, or -1 when err does not carry one.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// ExecRunner is the production implementation using exec.CommandContext.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Command: commandLine(name, args),
				Code:    exitErr.ExitCode(),
				Stderr:  strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("failed to run %s: %w", commandLine(name, args), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// Call records one invocation of a FakeRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Line renders the call as a shell-like command line.
func (c Call) Line() string {
	return commandLine(c.Name, c.Args)
}

// FakeRunner is a test double that records calls without executing them.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Call

	// Handle, when set, produces the result of each call. It may create
	// files to simulate the command's side effects.
	Handle func(ctx context.Context, call Call) (string, error)

	// Err is returned for every call when Handle is nil.
	Err error
}

// NewFakeRunner creates a FakeRunner whose commands all succeed.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

func (f *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	handle, err := f.Handle, f.Err
	f.mu.Unlock()

	if handle != nil {
		return handle(ctx, call)
	}
	return "", err
}

// Calls returns the recorded calls in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls to the named program.
func (f *FakeRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
