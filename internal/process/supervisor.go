package process

import (
	"context"
	"sync"

	"github.com/conneroisu/hammer/internal/channel"
	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/watcher"
)

// Supervisor keeps one instance of a command running and replaces it each
// time a watch event arrives. The old instance has exited before the new
// one starts.
type Supervisor struct {
	command string
	opts    []Option
	logger  logging.Logger
	metrics *monitoring.Metrics

	mutex    sync.Mutex
	current  *Process
	restarts int
	disposed bool
}

// NewSupervisor creates a supervisor for command. The options apply to
// every instance it starts.
func NewSupervisor(command string, opts ...Option) *Supervisor {
	o := newOptions(opts)

	return &Supervisor{
		command: command,
		opts:    opts,
		logger:  o.logger.WithComponent("supervisor"),
		metrics: o.metrics,
	}
}

// Run starts the command and restarts it on every event until events ends
// or ctx is cancelled. The running instance is disposed on return.
func (s *Supervisor) Run(ctx context.Context, events *channel.Receiver[watcher.Event]) error {
	defer s.Dispose()

	if err := s.Restart(ctx); err != nil {
		return err
	}

	for event := range events.All(ctx) {
		s.logger.Info(ctx, "Change detected, restarting", "path", event.Path)
		if err := s.Restart(ctx); err != nil {
			s.logger.Error(ctx, err, "Restart failed", "command", s.command)
		}
	}

	return nil
}

// Restart disposes the running instance, waits for it to exit, then starts
// a new one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.disposed {
		return nil
	}

	if s.current != nil {
		_ = s.current.Dispose()
		s.current = nil
		s.restarts++
		s.metrics.RecordRestart()
	}

	p, err := Start(ctx, s.command, s.opts...)
	if err != nil {
		return err
	}
	s.current = p

	go func() {
		code, err := p.Wait()
		if p.Terminated() {
			return
		}
		if err != nil {
			s.logger.Warn(ctx, err, "Process ended abnormally", "command", s.command)
			return
		}
		s.logger.Info(ctx, "Process exited", "command", s.command, "code", code)
	}()

	return nil
}

// Current returns the running instance, if any.
func (s *Supervisor) Current() *Process {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.current
}

// Restarts returns how many times the command has been replaced.
func (s *Supervisor) Restarts() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.restarts
}

// Dispose stops the running instance. Later restarts do nothing.
func (s *Supervisor) Dispose() error {
	s.mutex.Lock()
	s.disposed = true
	current := s.current
	s.current = nil
	s.mutex.Unlock()

	if current != nil {
		return current.Dispose()
	}

	return nil
}
