// Package build applies cache actions to the output tree. Scripts and styles
// are compiled by esbuild, one build context per source; html documents and
// plain files are written or copied.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/hammer/internal/cache"
	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/resolver"
)

// Builder turns the actions of one pass into output files.
type Builder interface {
	Update(ctx context.Context, actions []cache.Action[resolver.Asset]) error
	Dispose() error
}

// Option configures an EsbuildBuilder.
type Option func(*EsbuildBuilder)

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(b *EsbuildBuilder) {
		b.logger = logger
	}
}

// WithMetrics shares a metrics tracker with the builder.
func WithMetrics(metrics *BuildMetrics) Option {
	return func(b *EsbuildBuilder) {
		b.metrics = metrics
	}
}

// WithErrorCollector shares a diagnostics collector with the builder.
func WithErrorCollector(collector *herrors.ErrorCollector) Option {
	return func(b *EsbuildBuilder) {
		b.collector = collector
	}
}

// EsbuildBuilder keeps one esbuild context alive per compiled source so
// rebuilds are incremental.
type EsbuildBuilder struct {
	options   Options
	logger    logging.Logger
	metrics   *BuildMetrics
	collector *herrors.ErrorCollector

	mutex    sync.Mutex
	contexts map[string]api.BuildContext
	disposed bool
}

var _ Builder = (*EsbuildBuilder)(nil)

// NewEsbuildBuilder validates options and creates a builder.
func NewEsbuildBuilder(options Options, opts ...Option) (*EsbuildBuilder, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	b := &EsbuildBuilder{
		options:  options,
		logger:   logging.Nop(),
		contexts: make(map[string]api.BuildContext),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = NewBuildMetrics()
	}
	if b.collector == nil {
		b.collector = herrors.NewErrorCollector()
	}
	b.logger = b.logger.WithComponent("build")

	return b, nil
}

// Update applies actions in order. A failing action does not stop the
// remaining ones; every failure is returned joined.
func (b *EsbuildBuilder) Update(ctx context.Context, actions []cache.Action[resolver.Asset]) error {
	var errs []error
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch action.Type {
		case cache.ActionInsert:
			err = b.insert(ctx, action.Value)
		case cache.ActionUpdate:
			err = b.update(ctx, action.Value)
		case cache.ActionDelete:
			err = b.delete(action.Value)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Dispose stops every build context. Later updates are ignored.
func (b *EsbuildBuilder) Dispose() error {
	b.mutex.Lock()
	if b.disposed {
		b.mutex.Unlock()
		return nil
	}
	b.disposed = true
	contexts := b.contexts
	b.contexts = make(map[string]api.BuildContext)
	b.mutex.Unlock()

	for _, bctx := range contexts {
		bctx.Dispose()
	}

	return nil
}

// Metrics returns a snapshot of compile metrics.
func (b *EsbuildBuilder) Metrics() BuildMetrics {
	return b.metrics.GetSnapshot()
}

// Diagnostics returns the errors and warnings of the latest compile of every
// source.
func (b *EsbuildBuilder) Diagnostics() []herrors.BuildError {
	return b.collector.GetErrors()
}

// Compiling reports whether a build context is alive for source.
func (b *EsbuildBuilder) Compiling(source string) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.contexts[source]

	return ok
}

func (b *EsbuildBuilder) insert(ctx context.Context, asset resolver.Asset) error {
	switch asset.Kind {
	case resolver.KindScript, resolver.KindStyle:
		return b.start(ctx, asset)
	case resolver.KindHTML:
		return writeHTML(asset)
	default:
		return copyFile(asset)
	}
}

func (b *EsbuildBuilder) update(ctx context.Context, asset resolver.Asset) error {
	switch asset.Kind {
	case resolver.KindScript, resolver.KindStyle:
		if b.options.Watch {
			return nil
		}
		return b.rebuild(ctx, asset)
	case resolver.KindHTML:
		return writeHTML(asset)
	default:
		return copyFile(asset)
	}
}

func (b *EsbuildBuilder) delete(asset resolver.Asset) error {
	switch asset.Kind {
	case resolver.KindScript, resolver.KindStyle:
		b.stop(asset.SourcePath)
		b.collector.Clear(asset.SourcePath)
		return nil
	default:
		if err := os.Remove(asset.TargetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return herrors.NewBuildError("unable to remove output", err).WithPath(asset.TargetPath)
		}
		return nil
	}
}

// start creates the build context for asset, replacing any existing one,
// and compiles it once. In watch mode esbuild takes over rebuilding.
func (b *EsbuildBuilder) start(ctx context.Context, asset resolver.Asset) error {
	b.stop(asset.SourcePath)

	opts, err := b.options.buildOptions(asset)
	if err != nil {
		return err
	}
	opts.Plugins = []api.Plugin{b.reporter(asset.SourcePath)}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		diags := diagnostics(cerr.Errors, herrors.ErrorSeverityError)
		b.collector.Set(asset.SourcePath, diags)
		err := failure(asset.SourcePath, diags)
		b.metrics.RecordBuild(Result{Source: asset.SourcePath, Error: err})

		return err
	}

	b.mutex.Lock()
	if b.disposed {
		b.mutex.Unlock()
		bctx.Dispose()
		return nil
	}
	b.contexts[asset.SourcePath] = bctx
	b.mutex.Unlock()

	result := bctx.Rebuild()
	err = failure(asset.SourcePath, diagnostics(result.Errors, herrors.ErrorSeverityError))

	if b.options.Watch {
		if werr := bctx.Watch(api.WatchOptions{}); werr != nil {
			return errors.Join(err, herrors.NewBuildError("unable to watch source", werr).WithPath(asset.SourcePath))
		}
		b.logger.Debug(ctx, "Watching source", "source", asset.SourcePath)
	}

	return err
}

func (b *EsbuildBuilder) rebuild(ctx context.Context, asset resolver.Asset) error {
	b.mutex.Lock()
	bctx, ok := b.contexts[asset.SourcePath]
	b.mutex.Unlock()
	if !ok {
		return b.start(ctx, asset)
	}

	result := bctx.Rebuild()

	return failure(asset.SourcePath, diagnostics(result.Errors, herrors.ErrorSeverityError))
}

func (b *EsbuildBuilder) stop(source string) {
	b.mutex.Lock()
	bctx, ok := b.contexts[source]
	delete(b.contexts, source)
	b.mutex.Unlock()

	if ok {
		bctx.Dispose()
	}
}

// reporter records the outcome of every compile of source, including the
// ones esbuild starts on its own in watch mode.
func (b *EsbuildBuilder) reporter(source string) api.Plugin {
	var started time.Time

	return api.Plugin{
		Name: "hammer-reporter",
		Setup: func(pb api.PluginBuild) {
			pb.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			pb.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				b.report(source, time.Since(started), result)
				return api.OnEndResult{}, nil
			})
		},
	}
}

func (b *EsbuildBuilder) report(source string, duration time.Duration, result *api.BuildResult) {
	errs := diagnostics(result.Errors, herrors.ErrorSeverityError)
	warnings := diagnostics(result.Warnings, herrors.ErrorSeverityWarning)
	b.collector.Set(source, append(errs, warnings...))

	err := failure(source, errs)
	b.metrics.RecordBuild(Result{Source: source, Duration: duration, Error: err})

	ctx := context.Background()
	if err != nil {
		b.logger.Warn(ctx, err, "Compile failed", "source", source, "errors", len(errs))
		return
	}
	for _, w := range warnings {
		b.logger.Debug(ctx, "Compile warning", "source", source, "warning", w.Error())
	}
	b.logger.Debug(ctx, "Compiled", "source", source, "duration", duration)
}

func diagnostics(messages []api.Message, severity herrors.ErrorSeverity) []herrors.BuildError {
	if len(messages) == 0 {
		return nil
	}

	out := make([]herrors.BuildError, 0, len(messages))
	for _, msg := range messages {
		diag := herrors.BuildError{
			Message:  msg.Text,
			Severity: severity,
		}
		if msg.Location != nil {
			diag.File = msg.Location.File
			diag.Line = msg.Location.Line
			diag.Column = msg.Location.Column
		}
		out = append(out, diag)
	}

	return out
}

// failure folds compile errors into one error naming the first diagnostic.
func failure(source string, errs []herrors.BuildError) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]

	return herrors.NewBuildError(fmt.Sprintf("%d error(s) compiling source", len(errs)), &first).WithPath(source)
}

func writeHTML(asset resolver.Asset) error {
	if err := os.MkdirAll(filepath.Dir(asset.TargetPath), 0o755); err != nil {
		return herrors.NewBuildError("unable to create output directory", err).WithPath(asset.TargetPath)
	}
	if err := os.WriteFile(asset.TargetPath, []byte(asset.Content), 0o644); err != nil {
		return herrors.NewBuildError("unable to write html", err).WithPath(asset.TargetPath)
	}

	return nil
}

// copyFile copies the source to the target. A source removed since it was
// resolved is skipped; the next pass deletes it.
func copyFile(asset resolver.Asset) error {
	src, err := os.Open(asset.SourcePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return herrors.NewBuildError("unable to open source", err).WithPath(asset.SourcePath)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(asset.TargetPath), 0o755); err != nil {
		return herrors.NewBuildError("unable to create output directory", err).WithPath(asset.TargetPath)
	}

	dst, err := os.Create(asset.TargetPath)
	if err != nil {
		return herrors.NewBuildError("unable to create output", err).WithPath(asset.TargetPath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return herrors.NewBuildError("unable to copy file", err).WithPath(asset.TargetPath)
	}

	return dst.Close()
}
