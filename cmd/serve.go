package cmd

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve <paths...>",
	Short: "Build, watch and serve with live reload",
	Long: `Build the given entry points, watch them, and serve the output directory with
live reload. Pages served as HTML get a reload script injected; every change
to the output directory reloads them.

Endpoints:
  /hammer/reload    Reload client script
  /hammer/signal    Long-lived reload stream
  /hammer/ws        WebSocket reload stream
  /hammer/health    Health report
  /hammer/metrics   Prometheus metrics (server.metrics)

Examples:
  hammer serve index.html                 # Serve dist on :5000
  hammer serve index.html --port 8080     # Serve on :8080
  hammer serve index.html --cors --sab    # Cross-origin and SharedArrayBuffer headers`,
	Aliases: []string{"s"},
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addBuildFlags(serveCmd)
	addWatchFlags(serveCmd)
	addServerFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	paths, err := entries(args)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	if s.cfg.Server.Metrics {
		s.metrics = monitoring.NewMetrics()
	}

	dist := s.cfg.Build.Dist
	if err := os.MkdirAll(dist, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dist, err)
	}

	p, err := s.pipeline(paths, true)
	if err != nil {
		return err
	}

	health := monitoring.NewHealth(s.logger)
	health.Register("output", true, monitoring.OutputDirCheck(dist))
	health.Register("last_pass", false, monitoring.LastPassCheck(p.LastErr))

	srv := server.New(dist,
		server.WithCORS(s.cfg.Server.CORS),
		server.WithSAB(s.cfg.Server.SAB),
		server.WithKeepAlive(s.cfg.Server.KeepAlive),
		server.WithLogger(s.logger),
		server.WithMetrics(s.metrics),
		server.WithHealth(health),
	)

	output, err := s.newWatcher(dist)
	if err != nil {
		_ = p.Dispose()
		return err
	}

	ctx := cmd.Context()
	defer dispose(ctx, s.logger, "server", srv.Dispose)
	defer dispose(ctx, s.logger, "output watcher", output.Dispose)
	defer dispose(ctx, s.logger, "pipeline", p.Dispose)

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.printf("🔨 Serving %s at http://%s\n", dist, addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Watch(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, addr)
	})
	g.Go(func() error {
		srv.WatchRoot(ctx, output)
		return nil
	})

	return g.Wait()
}
