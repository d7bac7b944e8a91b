// Package executor runs external commands on the appliance. Commands are
// always argv arrays; nothing is passed through a shell.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
)

const (
	// DefaultTimeout bounds Run.
	DefaultTimeout = 30 * time.Second
	// DefaultStreamTimeout bounds Stream, which is used for long jobs such
	// as a gravity rebuild.
	DefaultStreamTimeout = 300 * time.Second
	// maxLineSize is the longest stdout line Stream will deliver.
	maxLineSize = 1024 * 1024

	waitDelay = 2 * time.Second
)

// Command is one process invocation.
type Command struct {
	Args []string
	// Sudo runs the command through "sudo -n" unless pimgr is already root
	// or sudo is disabled in configuration.
	Sudo    bool
	Timeout time.Duration
	Dir     string
	Stdin   string
}

// Result is the outcome of a command. Stdout and Stderr are trimmed.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Lines splits Stdout into non-empty lines.
func (r Result) Lines() []string {
	if r.Stdout == "" {
		return nil
	}
	var out []string
	for _, l := range strings.Split(r.Stdout, "\n") {
		if l = strings.TrimRight(l, "\r"); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Runner is the command-execution dependency of the appliance packages.
type Runner interface {
	Run(ctx context.Context, c Command) Result
	Stream(ctx context.Context, c Command, onLine func(string)) Result
}

// Executor runs commands with os/exec.
type Executor struct {
	useSudo       bool
	timeout       time.Duration
	streamTimeout time.Duration
	isRoot        func() bool
	logger        *logging.Logger
	audit         *sessionlog.Log
}

var _ Runner = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithSudo enables or disables sudo for commands that ask for it.
func WithSudo(enabled bool) Option { return func(e *Executor) { e.useSudo = enabled } }

// WithTimeout sets the default Run timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithSessionLog records every command in the session log.
func WithSessionLog(l *sessionlog.Log) Option { return func(e *Executor) { e.audit = l } }

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		useSudo:       true,
		timeout:       DefaultTimeout,
		streamTimeout: DefaultStreamTimeout,
		isRoot:        func() bool { return os.Geteuid() == 0 },
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("executor")
	return e
}

// argv returns the final argument vector.
func (e *Executor) argv(c Command) []string {
	if c.Sudo && e.useSudo && !e.isRoot() {
		return append([]string{"sudo", "-n"}, c.Args...)
	}
	return append([]string(nil), c.Args...)
}

// Run executes c and waits for it to finish.
func (e *Executor) Run(ctx context.Context, c Command) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	return e.run(ctx, c, timeout, nil)
}

// Stream executes c, calling onLine for each stdout line as it arrives.
// The returned Result holds the full stdout as well.
func (e *Executor) Stream(ctx context.Context, c Command, onLine func(string)) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = e.streamTimeout
	}
	return e.run(ctx, c, timeout, onLine)
}

func (e *Executor) run(ctx context.Context, c Command, timeout time.Duration, onLine func(string)) Result {
	if len(c.Args) == 0 || c.Args[0] == "" {
		err := errors.NewValidationError("empty command").WithField("args")
		return Result{ExitCode: -1, Stderr: err.Error(), Err: err}
	}

	argv := e.argv(c)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	var runErr error
	if onLine == nil {
		cmd.Stdout = &stdout
		runErr = cmd.Run()
	} else {
		runErr = streamLines(cmd, &stdout, onLine)
	}

	res := Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	res = classify(res, argv, runErr, cctx.Err(), ctx.Err(), timeout)

	e.logger.Debug("command finished",
		"argv", strings.Join(argv, " "),
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"success", res.Success)
	e.audit.Command(argv, res.Stdout, res.Stderr, res.Success)
	return res
}

func streamLines(cmd *exec.Cmd, buf *bytes.Buffer, onLine func(string)) error {
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	sc := bufio.NewScanner(pipe)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		onLine(line)
	}
	scanErr := sc.Err()
	if scanErr != nil {
		// Keep the child from blocking on a full pipe.
		_, _ = io.Copy(io.Discard, pipe)
	}
	if err := cmd.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read output: %w", scanErr)
	}
	return nil
}

func classify(res Result, argv []string, runErr, cmdCtxErr, parentErr error, timeout time.Duration) Result {
	if runErr == nil {
		res.Success = true
		return res
	}

	switch {
	case cmdCtxErr == context.DeadlineExceeded && parentErr == nil:
		res.ExitCode = -1
		res.Stderr = fmt.Sprintf("command timed out after %g seconds", timeout.Seconds())
		res.Err = errors.NewCommandError(argv, -1, errors.ErrCommandTimeout)
	case parentErr != nil:
		res.ExitCode = -1
		res.Err = errors.NewCommandError(argv, -1, parentErr).WithStderr(res.Stderr)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Err = errors.NewCommandError(argv, res.ExitCode, errors.ErrCommandFailed).WithStderr(res.Stderr)
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = fmt.Sprintf("command execution failed: %v", runErr)
			}
			res.Err = errors.NewCommandError(argv, -1, runErr)
		}
	}
	return res
}
