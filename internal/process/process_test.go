//go:build !windows

package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hammer/internal/channel"
	herrors "github.com/conneroisu/hammer/internal/errors"
	"github.com/conneroisu/hammer/internal/monitoring"
	"github.com/conneroisu/hammer/internal/watcher"
)

func waitExit(t *testing.T, p *Process) int {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	code, err := p.Wait()
	require.NoError(t, err)
	return code
}

func TestExitCode(t *testing.T) {
	p, err := Start(context.Background(), "exit 3")
	require.NoError(t, err)

	assert.Equal(t, 3, waitExit(t, p))
	assert.False(t, p.Terminated())
	assert.NoError(t, p.Dispose())
}

func TestOutputAndEnvironment(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()

	p, err := Start(context.Background(), "echo $HAMMER_GREETING; pwd; echo oops >&2",
		WithOutput(&stdout, &stderr),
		WithEnv("HAMMER_GREETING=hello"),
		WithDir(dir),
	)
	require.NoError(t, err)
	require.Equal(t, 0, waitExit(t, p))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[1])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "oops\n", stderr.String())
}

func TestStartRejectsInvalidCommand(t *testing.T) {
	_, err := Start(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, herrors.IsConfigError(err))
}

func TestDisposeTerminatesProcessTree(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")

	p, err := Start(context.Background(), "sleep 30 & echo $! > "+pidFile+"; wait", WithOutput(nil, nil))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(pidFile)
		return err == nil && len(bytes.TrimSpace(data)) > 0
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Dispose())
	assert.Less(t, time.Since(start), DefaultGracePeriod)
	assert.True(t, p.Terminated())

	code, err := p.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)

	require.NoError(t, p.Dispose())
}

func TestDisposeEscalatesAfterGrace(t *testing.T) {
	p, err := Start(context.Background(), "trap '' TERM; sleep 30", WithGracePeriod(100*time.Millisecond), WithOutput(nil, nil))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = p.Dispose()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispose did not force the process tree down")
	}
	code, _ := p.Wait()
	assert.Equal(t, -1, code)
}

type failingTerminator struct{}

func (failingTerminator) Terminate(*os.Process, <-chan struct{}, time.Duration) error {
	return errors.New("permission denied")
}

func TestDisposeFallsBackWhenTerminationFails(t *testing.T) {
	p, err := Start(context.Background(), "sleep 30", WithTerminator(failingTerminator{}), WithOutput(nil, nil))
	require.NoError(t, err)

	require.NoError(t, p.Dispose())
	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after dispose")
	}
}

func TestContextCancelDisposes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Start(ctx, "sleep 30", WithOutput(nil, nil))
	require.NoError(t, err)

	cancel()
	waitExitAny(t, p)
	assert.True(t, p.Terminated())
}

func waitExitAny(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func TestSupervisorRestartsOnEvents(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "runs.log")
	metrics := monitoring.NewMetrics(monitoring.WithRegistry(prometheus.NewRegistry()))

	s := NewSupervisor("echo run >> "+log+"; sleep 30", WithOutput(nil, nil), WithMetrics(metrics))
	sender, events := channel.New[watcher.Event]()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), events) }()

	require.Eventually(t, func() bool { return countLines(t, log) == 1 }, 5*time.Second, 10*time.Millisecond)
	first := s.Current()
	require.NotNil(t, first)

	sender.Send(watcher.Event{Path: dir, Time: time.Now()})
	require.Eventually(t, func() bool { return countLines(t, log) == 2 }, 5*time.Second, 10*time.Millisecond)

	assert.True(t, first.Terminated())
	waitExitAny(t, first)
	assert.Equal(t, 1, s.Restarts())

	sender.End()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop when events ended")
	}

	assert.Nil(t, s.Current())
	assert.NoError(t, s.Restart(context.Background()))
	assert.Nil(t, s.Current())
}

func TestSupervisorKeepsWaitingAfterExit(t *testing.T) {
	s := NewSupervisor("exit 1", WithOutput(nil, nil))
	sender, events := channel.New[watcher.Event]()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), events) }()

	require.Eventually(t, func() bool {
		p := s.Current()
		if p == nil {
			return false
		}
		select {
		case <-p.Done():
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	sender.Send(watcher.Event{Path: "x"})
	require.Eventually(t, func() bool { return s.Restarts() == 1 }, 5*time.Second, 10*time.Millisecond)

	sender.End()
	require.NoError(t, <-done)
}
