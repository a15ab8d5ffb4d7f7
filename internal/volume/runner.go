package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command is an external program invocation. Output is not interpreted.
type Command struct {
	Description string
	Name        string
	Args        []string
	Stdin       string //fed verbatim, e.g. a passphrase without trailing newline
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes commands, failing with *ExitError if a command does not succeed.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

type ExitError struct {
	Command Command
	Code    int //-1 if the command could not be started or was killed
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s failed (%s, exit status %d): %v", e.Command.Description, e.Command, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands as child processes with the given output destinations.
type ExecRunner struct {
	Stdout io.Writer //optional
	Stderr io.Writer //optional
}

func (r ExecRunner) Run(ctx context.Context, cmd Command) error {
	process := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Stdin != "" {
		process.Stdin = strings.NewReader(cmd.Stdin)
	}
	process.Stdout = r.Stdout
	process.Stderr = r.Stderr
	err := process.Run()
	if err == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExitError{Command: cmd, Code: code, Err: err}
}
