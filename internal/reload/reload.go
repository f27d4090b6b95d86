// Package reload makes nginx pick up newly installed artifacts.
package reload

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const (
	DefaultValidateCommand = "nginx -t"
	DefaultRestartCommand  = "service nginx restart"
)

// Reloader validates and applies the installed configuration.
type Reloader interface {
	Reload(ctx context.Context) error
	Name() string
}

// Error reports a failed validation or restart. Output carries whatever the
// failing step printed.
type Error struct {
	Reloader string
	Step     string
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s reload failed at %s: %v", e.Reloader, e.Step, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Runner executes a shell command and returns its combined output.
type Runner func(ctx context.Context, command string) (string, error)

// LocalRunner runs command through /bin/sh on this machine.
func LocalRunner(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// CommandReloader runs the validate command and, if it succeeds, the
// restart command. An empty Validate skips validation.
type CommandReloader struct {
	Label    string
	Validate string
	Restart  string
	Run      Runner
}

// NewServiceReloader reloads a local nginx with the given commands.
func NewServiceReloader(validate, restart string) *CommandReloader {
	if restart == "" {
		restart = DefaultRestartCommand
	}
	return &CommandReloader{Label: "service", Validate: validate, Restart: restart, Run: LocalRunner}
}

func (c *CommandReloader) Name() string { return c.Label }

func (c *CommandReloader) Reload(ctx context.Context) error {
	if c.Validate != "" {
		if out, err := c.Run(ctx, c.Validate); err != nil {
			return &Error{Reloader: c.Label, Step: "validate", Output: out, Err: err}
		}
	}
	if out, err := c.Run(ctx, c.Restart); err != nil {
		return &Error{Reloader: c.Label, Step: "restart", Output: out, Err: err}
	}
	return nil
}

// Noop does nothing. It stands in when reloading is disabled.
type Noop struct{}

func (Noop) Name() string                  { return "none" }
func (Noop) Reload(context.Context) error { return nil }
