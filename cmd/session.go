package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/conneroisu/hammer/internal/build"
	"github.com/conneroisu/hammer/internal/config"
	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/pipeline"
	"github.com/conneroisu/hammer/internal/watcher"
)

// session is the state shared by the building commands.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	out     io.Writer
	metrics *monitoring.Metrics
	builder *build.EsbuildBuilder
}

// newSession loads configuration and a logger for cmd.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

// entries checks that every path exists. Nothing is built when one is
// missing.
func entries(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, herrors.NewConfigError("paths", "missing entry path")
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, herrors.NewConfigError("paths", err.Error())
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, herrors.NewConfigError("paths", fmt.Sprintf("no such file or directory %q", arg))
		}
		paths = append(paths, abs)
	}

	return paths, nil
}

// pipeline creates the compiler and the pipeline over paths.
func (s *session) pipeline(paths []string, watch bool) (*pipeline.Pipeline, error) {
	builder, err := build.NewEsbuildBuilder(s.cfg.Build.Options(watch),
		build.WithLogger(s.logger),
		build.WithMetrics(build.NewBuildMetrics()),
	)
	if err != nil {
		return nil, err
	}
	s.builder = builder

	return pipeline.New(pipeline.Options{Entries: paths, Dist: s.cfg.Build.Dist}, builder,
		pipeline.WithLogger(s.logger),
		pipeline.WithMetrics(s.metrics),
		pipeline.WithWatchOptions(s.watchOptions()...),
		pipeline.WithReporter(s.report),
	), nil
}

// watchOptions configures watchers from the watch section.
func (s *session) watchOptions() []watcher.Option {
	w := s.cfg.Watch
	opts := []watcher.Option{
		watcher.WithDebounce(w.Debounce),
		watcher.WithLogger(s.logger),
		watcher.WithFilters(watcher.IgnoreDirs(w.Ignore...), watcher.IgnoreSuffixes("~", ".swp", ".swx")),
	}
	if w.Poll {
		opts = append(opts, watcher.WithStrategy(watcher.StrategyPoll), watcher.WithPollInterval(w.PollInterval))
	}

	return opts
}

// newWatcher creates a watcher over paths.
func (s *session) newWatcher(paths ...string) (*watcher.Watcher, error) {
	w, err := watcher.New(s.watchOptions()...)
	if err != nil {
		return nil, err
	}
	if err := w.Add(paths...); err != nil {
		_ = w.Dispose()
		return nil, err
	}

	return w, nil
}

// report prints one line per pass that did something.
func (s *session) report(r pipeline.Report) {
	if r.Err != nil {
		fmt.Fprintf(s.out, "❌ Build failed after %v\n", r.Duration.Round(time.Millisecond))
		if s.builder != nil {
			for _, e := range s.builder.Diagnostics() {
				fmt.Fprintf(s.out, "   %s:%d:%d: %s\n", e.File, e.Line, e.Column, e.Message)
			}
		}
		return
	}
	if r.Actions() == 0 {
		return
	}
	fmt.Fprintf(s.out, "🔨 %d added, %d changed, %d removed in %v\n",
		r.Inserts, r.Updates, r.Deletes, r.Duration.Round(time.Millisecond))
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// summary prints the size of the output directory.
func (s *session) summary(start time.Time) {
	files, size := dirSize(s.cfg.Build.Dist)
	p := message.NewPrinter(language.English)
	p.Fprintf(s.out, "✅ Build completed in %v\n", time.Since(start).Round(time.Millisecond))
	p.Fprintf(s.out, "   - %d files, %d bytes written to %s\n", files, size, s.cfg.Build.Dist)
}

func dirSize(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})

	return files, size
}

// dispose releases whatever the session started, logging failures.
func dispose(ctx context.Context, logger logging.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn(ctx, err, "Dispose failed", "component", name)
	}
}
