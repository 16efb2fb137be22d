// Package watcher turns raw file-system notifications into a debounced stream
// of change events, one per registered path per quiet window.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/hammer/internal/channel"
	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
)

// DefaultDebounce is the quiet window applied per registered path.
const DefaultDebounce = 100 * time.Millisecond

// Event reports that something under a registered path changed.
type Event struct {
	// Path is the registered path, not the file that changed.
	Path string
	Time time.Time
}

// Watcher watches registered paths and emits debounced events.
type Watcher struct {
	debounce time.Duration
	strategy Strategy
	logger   logging.Logger

	mutex    sync.Mutex
	paths    map[string]struct{}
	timers   map[string]*pending
	disposed bool

	sender   *channel.Sender[Event]
	receiver *channel.Receiver[Event]
	once     sync.Once
}

// Option configures a Watcher.
type Option func(*options)

type options struct {
	debounce     time.Duration
	kind         StrategyKind
	pollInterval time.Duration
	filters      []Filter
	logger       logging.Logger
}

// WithDebounce sets the quiet window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithStrategy selects how the file system is observed.
func WithStrategy(kind StrategyKind) Option {
	return func(o *options) {
		o.kind = kind
	}
}

// WithPollInterval sets the scan interval of the poll strategy.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithFilters replaces the default ignore filters.
func WithFilters(filters ...Filter) Option {
	return func(o *options) {
		o.filters = filters
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a watcher. The fsnotify strategy is used unless another is
// requested; if it cannot be created the watcher falls back to polling.
func New(opts ...Option) (*Watcher, error) {
	o := &options{
		debounce: DefaultDebounce,
		kind:     StrategyFSNotify,
		filters:  DefaultFilters(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	sender, receiver := channel.New[Event]()
	w := &Watcher{
		debounce: o.debounce,
		logger:   o.logger.WithComponent("watcher"),
		paths:    make(map[string]struct{}),
		timers:   make(map[string]*pending),
		sender:   sender,
		receiver: receiver,
	}

	cfg := strategyConfig{
		notify:       w.notify,
		ignore:       anyFilter(o.filters),
		logger:       w.logger,
		pollInterval: o.pollInterval,
	}

	strategy, err := newStrategy(o.kind, cfg)
	if err != nil && o.kind == StrategyFSNotify {
		w.logger.Warn(context.Background(), err, "Falling back to polling")
		strategy, err = newStrategy(StrategyPoll, cfg)
	}
	if err != nil {
		return nil, herrors.NewWatchError("creating watch strategy", err)
	}
	w.strategy = strategy

	return w, nil
}

// Strategy returns the strategy in use.
func (w *Watcher) Strategy() StrategyKind {
	return w.strategy.Name()
}

// Add registers paths. Registering a path twice is a no-op and paths that do
// not exist are skipped.
func (w *Watcher) Add(paths ...string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return herrors.NewWatchError("resolving watch path", err).WithPath(p)
		}

		w.mutex.Lock()
		_, registered := w.paths[abs]
		disposed := w.disposed
		w.mutex.Unlock()
		if disposed || registered {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}

		if err := w.strategy.Watch(abs); err != nil {
			return herrors.NewWatchError("watching path", err).WithPath(abs)
		}

		w.mutex.Lock()
		w.paths[abs] = struct{}{}
		w.mutex.Unlock()

		w.logger.Debug(context.Background(), "Watching path", "path", abs)
	}

	return nil
}

// Remove drops a registration and any pending event for it.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return herrors.NewWatchError("resolving watch path", err).WithPath(path)
	}

	w.mutex.Lock()
	if _, ok := w.paths[abs]; !ok {
		w.mutex.Unlock()
		return nil
	}
	delete(w.paths, abs)
	if p, ok := w.timers[abs]; ok {
		p.timer.Stop()
		delete(w.timers, abs)
	}
	w.mutex.Unlock()

	if err := w.strategy.Unwatch(abs); err != nil {
		return herrors.NewWatchError("unwatching path", err).WithPath(abs)
	}

	return nil
}

// Paths returns the registered paths, sorted.
func (w *Watcher) Paths() []string {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	paths := make([]string, 0, len(w.paths))
	for p := range w.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	return paths
}

// Events returns the debounced event stream. The stream ends on Dispose.
func (w *Watcher) Events() *channel.Receiver[Event] {
	return w.receiver
}

// Dispose stops watching and ends the event stream. No event is delivered
// after Dispose returns.
func (w *Watcher) Dispose() error {
	var err error
	w.once.Do(func() {
		w.mutex.Lock()
		w.disposed = true
		for path, p := range w.timers {
			p.timer.Stop()
			delete(w.timers, path)
		}
		w.mutex.Unlock()

		// The strategy may be inside notify; close it without holding the lock.
		if closeErr := w.strategy.Close(); closeErr != nil {
			err = herrors.NewWatchError("closing watch strategy", closeErr)
		}
		w.sender.End()
	})

	return err
}

// pending is one armed quiet window.
type pending struct {
	timer *time.Timer
}

// notify restarts the quiet window for a registered path.
func (w *Watcher) notify(path string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.disposed {
		return
	}
	if _, ok := w.paths[path]; !ok {
		return
	}

	if p, ok := w.timers[path]; ok {
		p.timer.Stop()
	}
	p := &pending{}
	p.timer = time.AfterFunc(w.debounce, func() {
		w.emit(path, p)
	})
	w.timers[path] = p
}

// emit sends the event for p unless a later change re-armed the window.
func (w *Watcher) emit(path string, p *pending) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.disposed || w.timers[path] != p {
		return
	}
	delete(w.timers, path)
	w.sender.Send(Event{Path: path, Time: time.Now()})
}
