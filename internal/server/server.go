// Package server serves a build output directory over HTTP and tells
// connected browsers to reload when it changes.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/hammer/internal/logging"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/watcher"
)

// DefaultKeepAlive is the interval between ping messages.
const DefaultKeepAlive = 16 * time.Second

//go:embed reload.js
var reloadScript []byte

// Server is a static file server with a live-reload channel. Each Server owns
// its own client registry; several can run in one process.
type Server struct {
	root      string
	cors      bool
	sab       bool
	keepAlive time.Duration
	logger    logging.Logger
	metrics   *monitoring.Metrics
	health    *monitoring.Health

	mutex    sync.Mutex
	clients  map[int64]client
	lastKey  int64
	disposed bool

	httpMutex  sync.Mutex
	httpServer *http.Server

	handler       http.Handler
	stop          chan struct{}
	keepAliveOnce sync.Once
	disposeOnce   sync.Once
	wg            sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithCORS enables cross-origin headers.
func WithCORS(enabled bool) Option {
	return func(s *Server) {
		s.cors = enabled
	}
}

// WithSAB enables the cross-origin isolation headers SharedArrayBuffer needs.
func WithSAB(enabled bool) Option {
	return func(s *Server) {
		s.sab = enabled
	}
}

// WithKeepAlive sets the ping interval. Non-positive values keep the default.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger.WithComponent("server")
	}
}

// WithMetrics exposes metrics at /hammer/metrics and records reload activity.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithHealth serves the given health report at /hammer/health.
func WithHealth(health *monitoring.Health) Option {
	return func(s *Server) {
		s.health = health
	}
}

// New creates a server for the directory root.
func New(root string, opts ...Option) *Server {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}

	s := &Server{
		root:      abs,
		keepAlive: DefaultKeepAlive,
		logger:    logging.Nop(),
		clients:   make(map[int64]client),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = monitoring.NewHealth(s.logger)
	}
	s.health.Register("root", true, s.checkRoot)
	s.handler = s.routes()

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.headers)
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/hammer/reload", s.handleReloadScript)
	r.Get("/hammer/signal", s.handleSignal)
	r.Get("/hammer/ws", s.handleWebSocket)
	r.Get("/hammer/health", s.health.HTTPHandler())
	if s.metrics != nil {
		r.Method(http.MethodGet, "/hammer/metrics", s.metrics.Handler())
	}
	r.HandleFunc("/*", s.handleStatic)

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Root returns the served directory.
func (s *Server) Root() string {
	return s.root
}

// ListenAndServe listens on addr and serves until ctx is cancelled or the
// server is disposed.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the server is disposed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.httpMutex.Lock()
	s.httpServer = srv
	s.httpMutex.Unlock()

	s.logger.Info(ctx, "Serving", "addr", ln.Addr().String(), "root", s.root)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		err := s.Dispose()
		<-errCh
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SignalReload sends reload to every client. Clients whose write fails are
// dropped.
func (s *Server) SignalReload() {
	s.broadcast(msgReload)
	s.metrics.RecordReload()
}

// ClientCount returns the number of connected reload clients.
func (s *Server) ClientCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.clients)
}

// WatchRoot reloads clients whenever w reports a change. It returns when the
// watcher's stream ends or ctx is cancelled.
func (s *Server) WatchRoot(ctx context.Context, w *watcher.Watcher) {
	for event := range w.Events().All(ctx) {
		s.logger.Debug(ctx, "Output changed", "path", event.Path)
		s.SignalReload()
	}
}

// Dispose closes every client, stops the keep-alive and shuts the HTTP
// server down. It is safe to call more than once.
func (s *Server) Dispose() error {
	var err error
	s.disposeOnce.Do(func() {
		s.mutex.Lock()
		s.disposed = true
		clients := s.clients
		s.clients = make(map[int64]client)
		s.mutex.Unlock()

		close(s.stop)
		for _, c := range clients {
			c.close()
		}
		s.metrics.SetClients(0)

		s.httpMutex.Lock()
		srv := s.httpServer
		s.httpMutex.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
				err = errors.Join(shutdownErr, srv.Close())
			}
		}

		s.wg.Wait()
	})

	return err
}

// register tracks c and returns its key. Keys are connection start times in
// nanoseconds, bumped past the previous key on collision.
func (s *Server) register(c client) (int64, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.disposed {
		return 0, false
	}

	key := time.Now().UnixNano()
	if key <= s.lastKey {
		key = s.lastKey + 1
	}
	s.lastKey = key
	s.clients[key] = c
	s.metrics.SetClients(len(s.clients))

	s.startKeepAlive()

	return key, true
}

func (s *Server) unregister(key int64) {
	s.mutex.Lock()
	c, ok := s.clients[key]
	if ok {
		delete(s.clients, key)
		s.metrics.SetClients(len(s.clients))
	}
	s.mutex.Unlock()

	if ok {
		c.close()
	}
}

func (s *Server) broadcast(message string) {
	s.mutex.Lock()
	targets := make(map[int64]client, len(s.clients))
	for key, c := range s.clients {
		targets[key] = c
	}
	s.mutex.Unlock()

	for key, c := range targets {
		if err := c.send(message); err != nil {
			s.logger.Debug(context.Background(), "Dropping reload client", "key", key, "error", err.Error())
			s.unregister(key)
		}
	}
}

// startKeepAlive starts the ping loop on the first connection.
func (s *Server) startKeepAlive() {
	s.keepAliveOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ticker := time.NewTicker(s.keepAlive)
			defer ticker.Stop()

			for {
				select {
				case <-s.stop:
					return
				case <-ticker.C:
					s.broadcast(msgPing)
				}
			}
		}()
	})
}

func (s *Server) handleReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript")
	w.Header().Set("Content-Length", fmt.Sprint(len(reloadScript)))
	_, _ = w.Write(reloadScript)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")

	c := newStreamClient(w)
	w.WriteHeader(http.StatusOK)
	if err := c.send(msgEstablished); err != nil {
		return
	}

	key, ok := s.register(c)
	if !ok {
		return
	}
	defer s.unregister(key)

	select {
	case <-r.Context().Done():
	case <-c.done():
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.cors {
		opts.OriginPatterns = []string{"*"}
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	c := newSocketClient(conn)
	if err := c.send(msgEstablished); err != nil {
		c.close()
		return
	}

	key, ok := s.register(c)
	if !ok {
		c.close()
		return
	}
	defer s.unregister(key)

	// Clients never send; CloseRead handles control frames and reports the
	// peer going away.
	ctx := conn.CloseRead(r.Context())
	select {
	case <-ctx.Done():
	case <-c.done():
	}
}

// headers applies the configured CORS and cross-origin isolation headers.
func (s *Server) headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if s.cors {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET")
		}
		if s.sab {
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Embedder-Policy", "require-corp")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkRoot(context.Context) (monitoring.HealthStatus, string) {
	info, err := os.Stat(s.root)
	if err != nil {
		return monitoring.HealthStatusUnhealthy, err.Error()
	}
	if !info.IsDir() {
		return monitoring.HealthStatusUnhealthy, s.root + " is not a directory"
	}

	return monitoring.HealthStatusHealthy, "serving " + s.root
}
