// Package pipeline ties resolution, diffing and compilation together. A pass
// resolves the entry points, diffs the result against the previous pass and
// hands the resulting actions to a builder. In watch mode passes are driven
// by file changes and never overlap.
package pipeline

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/hammer/internal/build"
	"github.com/conneroisu/hammer/internal/cache"
	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/resolver"
	"github.com/conneroisu/hammer/internal/watcher"
)

// Options names what a pipeline builds.
type Options struct {
	// Entries are the files or folders resolution starts from.
	Entries []string
	// Dist is the output directory.
	Dist string
}

// Report summarises one pass.
type Report struct {
	Duration time.Duration
	Assets   int
	Inserts  int
	Updates  int
	Deletes  int
	Err      error
}

// Actions returns the number of actions the pass dispatched.
func (r Report) Actions() int {
	return r.Inserts + r.Updates + r.Deletes
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver replaces the default resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithCache replaces the default cache.
func WithCache(c *cache.Cache[resolver.Asset]) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithWatcher sets the watcher used by Watch. The pipeline owns it from then
// on and disposes it.
func WithWatcher(w *watcher.Watcher) Option {
	return func(p *Pipeline) {
		p.watcher = w
	}
}

// WithWatchOptions configures the watcher Watch creates when none was set.
func WithWatchOptions(opts ...watcher.Option) Option {
	return func(p *Pipeline) {
		p.watchOpts = append(p.watchOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records passes and watch events.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithReporter is called after every pass.
func WithReporter(fn func(Report)) Option {
	return func(p *Pipeline) {
		p.reporter = fn
	}
}

// Pipeline runs resolve, diff and dispatch passes.
type Pipeline struct {
	cfg       Options
	resolver  *resolver.Resolver
	cache     *cache.Cache[resolver.Asset]
	builder   build.Builder
	watcher   *watcher.Watcher
	watchOpts []watcher.Option
	logger    logging.Logger
	metrics   *monitoring.Metrics
	reporter  func(Report)

	// pass serialises passes.
	pass sync.Mutex

	mutex    sync.Mutex
	running  bool
	dirty    bool
	sources  map[string]struct{}
	disposed bool
	lastErr  error
	inflight sync.WaitGroup

	disposeOnce sync.Once
	disposeErr  error
}

// New creates a pipeline dispatching to builder.
func New(cfg Options, builder build.Builder, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		builder: builder,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resolver == nil {
		p.resolver = resolver.New(cfg.Dist, resolver.WithLogger(p.logger))
	}
	if p.cache == nil {
		p.cache = cache.New[resolver.Asset]()
	}
	p.logger = p.logger.WithComponent("pipeline")

	return p
}

// Build runs one pass.
func (p *Pipeline) Build(ctx context.Context) error {
	_, err := p.run(ctx)

	return err
}

// LastErr returns the error of the most recent pass, nil when it succeeded.
func (p *Pipeline) LastErr() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.lastErr
}

// Cache returns the asset cache.
func (p *Pipeline) Cache() *cache.Cache[resolver.Asset] {
	return p.cache
}

// run resolves, diffs and dispatches once and returns the resolved assets.
// A resolution failure leaves the cache untouched so the next pass diffs
// against the last good snapshot.
func (p *Pipeline) run(ctx context.Context) ([]resolver.Asset, error) {
	p.pass.Lock()
	defer p.pass.Unlock()

	start := time.Now()
	report := Report{}

	assets, err := resolver.Collect(p.resolver.Resolve(p.cfg.Entries))
	if err == nil {
		report.Assets = len(assets)
		actions := p.cache.Update(assets)
		for _, action := range actions {
			switch action.Type {
			case cache.ActionInsert:
				report.Inserts++
			case cache.ActionUpdate:
				report.Updates++
			case cache.ActionDelete:
				report.Deletes++
			}
		}
		if len(actions) > 0 {
			err = p.builder.Update(ctx, actions)
		}
	}

	report.Duration = time.Since(start)
	report.Err = err
	p.metrics.RecordPass(report.Duration, map[string]int{
		cache.ActionInsert.String(): report.Inserts,
		cache.ActionUpdate.String(): report.Updates,
		cache.ActionDelete.String(): report.Deletes,
	}, err)

	p.mutex.Lock()
	p.lastErr = err
	p.mutex.Unlock()

	if err != nil {
		p.logger.Error(ctx, err, "Pass failed", "duration", report.Duration)
	} else {
		p.logger.Debug(ctx, "Pass complete",
			"duration", report.Duration,
			"assets", report.Assets,
			"actions", report.Actions())
	}
	if p.reporter != nil {
		p.reporter(report)
	}

	return assets, err
}

// Watch runs an initial pass, then a pass after every debounced change to an
// entry or a resolved source. A failing pass is reported and watching goes
// on. Watch returns when ctx is cancelled or the watcher is disposed.
func (p *Pipeline) Watch(ctx context.Context) error {
	assets, err := p.run(ctx)
	if err != nil {
		p.logger.Warn(ctx, err, "Initial pass failed, watching for changes")
	}

	w, err := p.ensureWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(p.cfg.Entries...); err != nil {
		return err
	}
	if err := p.track(ctx, w, assets); err != nil {
		return err
	}

	p.logger.Info(ctx, "Watching for changes", "paths", len(w.Paths()))

	for event := range w.Events().All(ctx) {
		p.metrics.RecordWatchEvent()
		p.logger.Debug(ctx, "Change detected", "path", event.Path)
		p.schedule(ctx, w)
	}
	p.inflight.Wait()

	return nil
}

func (p *Pipeline) ensureWatcher() (*watcher.Watcher, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.watcher != nil {
		return p.watcher, nil
	}
	opts := append([]watcher.Option{watcher.WithLogger(p.logger)}, p.watchOpts...)
	w, err := watcher.New(opts...)
	if err != nil {
		return nil, err
	}
	p.watcher = w

	return w, nil
}

// schedule starts a watch pass unless one is running, in which case exactly
// one follow-up pass runs once it finishes.
func (p *Pipeline) schedule(ctx context.Context, w *watcher.Watcher) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.disposed {
		return
	}
	if p.running {
		p.dirty = true
		return
	}
	p.running = true
	p.inflight.Add(1)

	go func() {
		defer p.inflight.Done()
		for {
			p.watchPass(ctx, w)

			p.mutex.Lock()
			if !p.dirty || p.disposed || ctx.Err() != nil {
				p.running = false
				p.dirty = false
				p.mutex.Unlock()
				return
			}
			p.dirty = false
			p.mutex.Unlock()
		}
	}()
}

func (p *Pipeline) watchPass(ctx context.Context, w *watcher.Watcher) {
	assets, err := p.run(ctx)
	if err != nil {
		return
	}
	if err := p.track(ctx, w, assets); err != nil {
		p.logger.Warn(ctx, err, "Unable to watch new sources")
	}
}

// track watches the sources of assets and stops watching sources the
// previous pass resolved that are gone now. Entries stay watched.
func (p *Pipeline) track(ctx context.Context, w *watcher.Watcher, assets []resolver.Asset) error {
	next := make(map[string]struct{})
	for _, path := range resolver.SourcePaths(assets) {
		if abs, err := filepath.Abs(path); err == nil {
			next[abs] = struct{}{}
		}
	}
	for _, entry := range p.cfg.Entries {
		if abs, err := filepath.Abs(entry); err == nil {
			next[abs] = struct{}{}
		}
	}

	p.mutex.Lock()
	prev := p.sources
	p.sources = next
	p.mutex.Unlock()

	for path := range prev {
		if _, ok := next[path]; ok {
			continue
		}
		if err := w.Remove(path); err != nil {
			p.logger.Warn(ctx, err, "Unable to stop watching source", "path", path)
			continue
		}
		p.logger.Debug(ctx, "Source no longer referenced", "path", path)
	}

	return w.Add(slices.Sorted(maps.Keys(next))...)
}

// Dispose stops watching, waits for a running pass and disposes the builder.
// Calling it more than once is safe.
func (p *Pipeline) Dispose() error {
	p.disposeOnce.Do(func() {
		p.mutex.Lock()
		p.disposed = true
		w := p.watcher
		p.mutex.Unlock()

		if w != nil {
			if err := w.Dispose(); err != nil {
				p.logger.Warn(context.Background(), err, "Unable to dispose watcher")
			}
		}
		p.inflight.Wait()
		p.disposeErr = p.builder.Dispose()
	})

	return p.disposeErr
}
