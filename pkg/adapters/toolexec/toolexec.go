// Package toolexec runs external CLI tools with output capture,
// environment injection and optional retry, under context cancellation.
// It is the shared substrate for every CLI-wrapping stage adapter.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result holds the output of a command execution. A non-zero exit code is
// carried here, not as an error: only infrastructure failures (unable to
// start, context expiry) surface as errors.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a single external command.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures one command execution.
type Options struct {
	Dir        string
	Env        map[string]string
	Stdin      string
	Retries    int
	RetryDelay time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}

// WithEnv appends environment variables to the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(o *Options) { o.Env = env }
}

// WithStdin provides stdin input to the command.
func WithStdin(input string) Option {
	return func(o *Options) { o.Stdin = input }
}

// WithRetries re-runs the command on failure (error or non-zero exit).
// Callers must only enable this for idempotent invocations.
func WithRetries(n int, delay time.Duration) Option {
	return func(o *Options) {
		o.Retries = n
		o.RetryDelay = delay
	}
}

// CommandRunner is the os/exec-backed Runner.
type CommandRunner struct {
	logger *zap.Logger
}

// NewCommandRunner creates a command runner.
func NewCommandRunner(logger *zap.Logger) *CommandRunner {
	return &CommandRunner{logger: logger}
}

// Run executes the program and captures its output.
func (r *CommandRunner) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := &Options{RetryDelay: time.Second}
	for _, opt := range opts {
		opt(options)
	}

	var lastErr error
	var lastRes *Result
	for attempt := 0; attempt <= options.Retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying command",
				zap.String("program", program),
				zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(options.RetryDelay):
			}
		}

		res, err := r.runOnce(ctx, program, args, options)
		if err == nil && res.ExitCode == 0 {
			return res, nil
		}
		lastErr = err
		lastRes = res
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastRes, nil
}

func (r *CommandRunner) runOnce(ctx context.Context, program string, args []string, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = options.Dir

	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if options.Stdin != "" {
		cmd.Stdin = strings.NewReader(options.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", program, err)
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("running %s: %w", program, ctx.Err())
	}

	r.logger.Debug("command finished",
		zap.String("program", program),
		zap.Strings("args", args),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", duration))

	return res, nil
}

// Tail returns the last n lines of s, for compact error reporting.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
