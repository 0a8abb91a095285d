// Package action builds scheduler actions from external commands.
package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"dailyrun/internal/scheduler"
	logx "dailyrun/pkg/logx"
)

// maxOutput bounds how much combined output is kept in logs and errors.
const maxOutput = 4 << 10

// Command describes a process started once per scheduled run.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration // 0 disables
}

// ExitError reports a command that ran but failed.
type ExitError struct {
	Command string
	Code    int
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q failed (exit %d): %v", e.Command, e.Code, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

func (c Command) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("action: command is required")
	}
	if c.Timeout < 0 {
		return errors.New("action: timeout must be >= 0")
	}
	return nil
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Run starts the command and waits for it.
func (c Command) Run(ctx context.Context, log logx.Logger) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// Children that keep the output pipe open must not outlive the kill by long.
	cmd.WaitDelay = time.Second
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	text := tail(strings.TrimSpace(string(out)))
	log.DebugFn(func() string { return "command output: " + text },
		logx.String("command", c.String()), logx.Duration("took", time.Since(start)))
	if err == nil {
		return nil
	}

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExitError{Command: c.String(), Code: -1, Output: text, Err: fmt.Errorf("timed out after %s: %w", c.Timeout, ctx.Err())}
	}
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ExitError{Command: c.String(), Code: code, Output: text, Err: err}
}

// Func adapts c into a scheduler action.
func (c Command) Func(log logx.Logger) scheduler.Action {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "action"))
	return func() error {
		return c.Run(context.Background(), log)
	}
}

func tail(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	i := len(s) - maxOutput
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
