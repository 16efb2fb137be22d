// Package process runs shell commands as disposable child processes. Disposal
// terminates the whole process tree, not just the shell.
package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/validation"
)

// DefaultGracePeriod is how long a terminated process tree gets to exit
// before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Terminator stops a process and every descendant it spawned.
type Terminator interface {
	// Terminate asks the tree rooted at proc to exit and forces it once
	// grace has passed without exited being closed.
	Terminate(proc *os.Process, exited <-chan struct{}, grace time.Duration) error
}

type options struct {
	dir        string
	env        []string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	grace      time.Duration
	terminator Terminator
	logger     logging.Logger
	metrics    *monitoring.Metrics
}

// Option configures a Process.
type Option func(*options)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithEnv appends variables to the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithOutput redirects stdout and stderr. Both default to the parent's.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithGracePeriod sets the delay between the polite and forced stop.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// WithTerminator replaces the platform terminator.
func WithTerminator(t Terminator) Option {
	return func(o *options) {
		o.terminator = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics counts supervisor restarts.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func newOptions(opts []Option) options {
	o := options{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		grace:      DefaultGracePeriod,
		terminator: newTerminator(),
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Process is a running shell command.
type Process struct {
	command    string
	cmd        *exec.Cmd
	grace      time.Duration
	terminator Terminator
	logger     logging.Logger

	exited     chan struct{}
	exitCode   int
	waitErr    error
	terminated atomic.Bool
	once       sync.Once
}

// Start runs command through the platform shell. Cancelling ctx disposes
// the process.
func Start(ctx context.Context, command string, opts ...Option) (*Process, error) {
	if err := validation.ValidateCommand(command); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	cmd := shellCommand(command)
	configure(cmd)
	cmd.Dir = o.dir
	cmd.Stdin = o.stdin
	cmd.Stdout = o.stdout
	cmd.Stderr = o.stderr
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}

	if err := cmd.Start(); err != nil {
		return nil, herrors.NewProcessError(herrors.ErrCodeSpawnFailed, "unable to start command", err)
	}

	p := &Process{
		command:    command,
		cmd:        cmd,
		grace:      o.grace,
		terminator: o.terminator,
		logger:     o.logger.WithComponent("process"),
		exited:     make(chan struct{}),
	}
	p.logger.Debug(ctx, "Process started", "pid", cmd.Process.Pid, "command", command)

	go p.wait()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Dispose()
		case <-p.exited:
		}
	}()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
		p.waitErr = err
	}
	close(p.exited)
}

// Pid returns the operating system id of the shell.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code. A process
// stopped by a signal reports -1.
func (p *Process) Wait() (int, error) {
	<-p.exited

	return p.exitCode, p.waitErr
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.exited
}

// Terminated reports whether the process was stopped by Dispose.
func (p *Process) Terminated() bool {
	return p.terminated.Load()
}

// Dispose terminates the process tree and waits for the process to exit.
// A failed termination is logged and the process is killed directly.
func (p *Process) Dispose() error {
	p.once.Do(func() {
		p.terminated.Store(true)

		select {
		case <-p.exited:
			return
		default:
		}

		if err := p.terminator.Terminate(p.cmd.Process, p.exited, p.grace); err != nil {
			p.logger.Warn(context.Background(),
				herrors.NewProcessError(herrors.ErrCodeTerminateFailed, "unable to terminate process tree", err),
				"Falling back to kill", "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
	})

	return nil
}
