package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/testutils"
	"github.com/conneroisu/hammer/internal/watcher"
)

type fakeClient struct {
	mutex    sync.Mutex
	messages []string
	fail     bool
	closed   chan struct{}
	once     sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{closed: make(chan struct{})}
}

func (c *fakeClient) send(message string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, message)
	return nil
}

func (c *fakeClient) close() { c.once.Do(func() { close(c.closed) }) }

func (c *fakeClient) done() <-chan struct{} { return c.closed }

func (c *fakeClient) received() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.messages...)
}

func startServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = s.Dispose() })
	return ts
}

func readMessage(t *testing.T, body io.Reader, want string) {
	t.Helper()
	buf := make([]byte, len(want))
	_, err := io.ReadFull(body, buf)
	require.NoError(t, err)
	assert.Equal(t, want, string(buf))
}

func TestSignalStream(t *testing.T) {
	s := New(t.TempDir())
	ts := startServer(t, s)

	resp, err := http.Get(ts.URL + "/hammer/signal")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	assert.Equal(t, "0", resp.Header.Get("Expires"))

	readMessage(t, resp.Body, "established")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.SignalReload()
	readMessage(t, resp.Body, "reload")

	require.NoError(t, s.Dispose())
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, s.ClientCount())
}

func TestSignalKeepAlive(t *testing.T) {
	s := New(t.TempDir(), WithKeepAlive(20*time.Millisecond))
	ts := startServer(t, s)

	resp, err := http.Get(ts.URL + "/hammer/signal")
	require.NoError(t, err)
	defer resp.Body.Close()

	readMessage(t, resp.Body, "established")
	readMessage(t, resp.Body, "ping")
}

func TestClientDisconnectIsUntracked(t *testing.T) {
	s := New(t.TempDir())
	ts := startServer(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/hammer/signal", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	readMessage(t, resp.Body, "established")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	resp.Body.Close()

	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketTransport(t *testing.T) {
	s := New(t.TempDir())
	ts := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/hammer/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "established", string(data))

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.SignalReload()

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reload", string(data))
}

func TestReloadScript(t *testing.T) {
	s := New(t.TempDir())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hammer/reload", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/hammer/signal")
	assert.Equal(t, len(reloadScript), rec.Body.Len())
}

func TestSignalReloadDropsFailedClients(t *testing.T) {
	s := New(t.TempDir())
	defer s.Dispose()

	good := newFakeClient()
	bad := newFakeClient()
	bad.fail = true

	_, ok := s.register(good)
	require.True(t, ok)
	_, ok = s.register(bad)
	require.True(t, ok)
	require.Equal(t, 2, s.ClientCount())

	s.SignalReload()

	assert.Equal(t, []string{"reload"}, good.received())
	assert.Equal(t, 1, s.ClientCount())
	select {
	case <-bad.done():
	default:
		t.Fatal("failed client was not closed")
	}
}

func TestClientKeysAreUnique(t *testing.T) {
	s := New(t.TempDir())
	defer s.Dispose()

	var last int64
	for range 100 {
		key, ok := s.register(newFakeClient())
		require.True(t, ok)
		require.Greater(t, key, last)
		last = key
	}
	assert.Equal(t, 100, s.ClientCount())
}

func TestServersKeepSeparateClients(t *testing.T) {
	a := New(t.TempDir())
	b := New(t.TempDir())
	defer a.Dispose()
	defer b.Dispose()

	c := newFakeClient()
	_, ok := a.register(c)
	require.True(t, ok)

	b.SignalReload()
	assert.Empty(t, c.received())
	assert.Equal(t, 0, b.ClientCount())
}

func TestDisposeClosesClientsAndIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	c := newFakeClient()
	_, ok := s.register(c)
	require.True(t, ok)

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose())

	select {
	case <-c.done():
	default:
		t.Fatal("client not closed on dispose")
	}
	_, ok = s.register(newFakeClient())
	assert.False(t, ok)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	s := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWatchRootSignalsReload(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	defer s.Dispose()

	c := newFakeClient()
	_, ok := s.register(c)
	require.True(t, ok)

	w, err := watcher.New(watcher.WithDebounce(20 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(root))

	done := make(chan struct{})
	go func() {
		s.WatchRoot(context.Background(), w)
		close(done)
	}()

	testutils.WriteFile(t, root, "index.html", "<html></html>")
	assert.Eventually(t, func() bool {
		return len(c.received()) > 0 && c.received()[0] == "reload"
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Dispose())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchRoot did not return after the watcher ended")
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	metrics := monitoring.NewMetrics(monitoring.WithRegistry(prometheus.NewRegistry()))
	s := New(t.TempDir(), WithMetrics(metrics))
	defer s.Dispose()

	s.SignalReload()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hammer/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hammer_reloads_total 1")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hammer/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status": "healthy"`)
}

func TestMetricsRouteAbsentWithoutMetrics(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	defer s.Dispose()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hammer/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
