package watcher

import (
	"io/fs"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/hammer/internal/logging"
)

type fileState struct {
	modTime time.Time
	size    int64
}

type snapshot map[string]fileState

func (a snapshot) equal(b snapshot) bool {
	return maps.EqualFunc(a, b, func(x, y fileState) bool {
		return x.size == y.size && x.modTime.Equal(y.modTime)
	})
}

// pollStrategy stats every registered tree each interval and reports the
// registrations whose snapshot changed. It works where fsnotify cannot, such
// as network mounts and container volumes.
type pollStrategy struct {
	interval time.Duration
	notify   func(path string)
	ignore   Filter
	logger   logging.Logger

	mutex         sync.Mutex
	registrations map[string]snapshot

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newPollStrategy(cfg strategyConfig) *pollStrategy {
	interval := cfg.pollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s := &pollStrategy{
		interval:      interval,
		notify:        cfg.notify,
		ignore:        cfg.ignore,
		logger:        cfg.logger,
		registrations: make(map[string]snapshot),
		done:          make(chan struct{}),
	}

	s.wg.Add(1)
	go s.loop()

	return s
}

func (s *pollStrategy) Name() StrategyKind {
	return StrategyPoll
}

func (s *pollStrategy) Watch(path string) error {
	snap := s.scan(path)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.registrations[path]; !ok {
		s.registrations[path] = snap
	}

	return nil
}

func (s *pollStrategy) Unwatch(path string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.registrations, path)

	return nil
}

func (s *pollStrategy) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})

	return nil
}

func (s *pollStrategy) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *pollStrategy) poll() {
	s.mutex.Lock()
	paths := make([]string, 0, len(s.registrations))
	for path := range s.registrations {
		paths = append(paths, path)
	}
	s.mutex.Unlock()

	var changed []string
	for _, path := range paths {
		snap := s.scan(path)

		s.mutex.Lock()
		previous, ok := s.registrations[path]
		if ok && !previous.equal(snap) {
			s.registrations[path] = snap
			changed = append(changed, path)
		}
		s.mutex.Unlock()
	}

	for _, path := range changed {
		s.notify(path)
	}
}

// scan records every file under root. A missing root yields an empty
// snapshot, so deleting a registered path counts as a change.
func (s *pollStrategy) scan(root string) snapshot {
	snap := make(snapshot)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root {
			if rel, relErr := filepath.Rel(root, path); relErr == nil && s.ignore(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if d.IsDir() {
			// Directory mtimes catch creations and removals of empty entries.
			snap[path] = fileState{modTime: info.ModTime()}
			return nil
		}
		snap[path] = fileState{modTime: info.ModTime(), size: info.Size()}

		return nil
	})

	return snap
}
