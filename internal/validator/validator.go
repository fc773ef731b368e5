// Package validator checks a staged tree before it is committed: a
// tree-sitter syntax pass over the changed files and an optional external
// test command run inside the staged directory.
package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// DefaultTestTimeout bounds the external test command.
	DefaultTestTimeout = 5 * time.Minute
	defaultMaxOutput   = 1 << 20
	waitDelay          = 2 * time.Second
)

// Config describes where and how to validate.
type Config struct {
	Dir         string
	TestCommand string
	TestTimeout time.Duration
	// MaxOutput limits captured stdout and stderr, each.
	MaxOutput int
	Logger    *slog.Logger
}

// Validator runs syntax checks and tests against one directory.
type Validator struct {
	dir       string
	command   string
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger
}

// New creates a Validator.
func New(cfg Config) *Validator {
	timeout := cfg.TestTimeout
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		dir:       cfg.Dir,
		command:   cfg.TestCommand,
		timeout:   timeout,
		maxOutput: maxOutput,
		logger:    logger.With("component", "validator"),
	}
}

// TestResult is the outcome of the external test command.
type TestResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Passed reports whether the command exited with status 0 in time.
func (r *TestResult) Passed() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// RunTests runs the configured command with sh -c in the validator directory.
// It returns nil when no command is configured. A failing or timed out
// command is reported on the result, not as an error.
func (v *Validator) RunTests(ctx context.Context) (*TestResult, error) {
	if v.command == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", v.command)
	cmd.Dir = v.dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: v.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: v.maxOutput}

	v.logger.Info("running tests", "command", v.command, "dir", v.dir, "timeout", v.timeout)
	start := time.Now()
	err := cmd.Run()

	result := &TestResult{
		Command:  v.command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		v.logger.Warn("test command timed out", "timeout", v.timeout)
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("running test command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	v.logger.Info("tests finished", "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// limitedWriter drops output past limit while reporting full writes, so the
// child process never blocks on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if remaining := l.limit - l.written; remaining > 0 {
		if len(p) > remaining {
			p = p[:remaining]
		}
		m, err := l.w.Write(p)
		l.written += m
		if err != nil {
			return m, err
		}
	}
	return n, nil
}
