package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/hammer/internal/logging"
)

// notifyStrategy emulates recursive watching on top of fsnotify. A registered
// directory gets one handle per directory in its tree; a registered file is
// observed through its parent directory. Handles shared by several
// registrations are reference counted.
type notifyStrategy struct {
	fsw    *fsnotify.Watcher
	notify func(path string)
	ignore Filter
	logger logging.Logger

	mutex         sync.Mutex
	registrations map[string]*registration
	handles       map[string]int

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type registration struct {
	path    string
	dir     bool
	handles map[string]struct{}
}

func newNotifyStrategy(cfg strategyConfig) (*notifyStrategy, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &notifyStrategy{
		fsw:           fsw,
		notify:        cfg.notify,
		ignore:        cfg.ignore,
		logger:        cfg.logger,
		registrations: make(map[string]*registration),
		handles:       make(map[string]int),
		done:          make(chan struct{}),
	}

	s.wg.Add(1)
	go s.loop()

	return s, nil
}

func (s *notifyStrategy) Name() StrategyKind {
	return StrategyFSNotify
}

func (s *notifyStrategy) Watch(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.registrations[path]; ok {
		return nil
	}

	reg := &registration{
		path:    path,
		dir:     info.IsDir(),
		handles: make(map[string]struct{}),
	}

	if reg.dir {
		err = s.scan(reg)
	} else {
		err = s.addHandle(reg, filepath.Dir(path))
	}
	if err != nil {
		s.release(reg)
		return err
	}

	s.registrations[path] = reg

	return nil
}

func (s *notifyStrategy) Unwatch(path string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	reg, ok := s.registrations[path]
	if !ok {
		return nil
	}
	delete(s.registrations, path)
	s.release(reg)

	return nil
}

func (s *notifyStrategy) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.fsw.Close()
		s.wg.Wait()
	})

	return err
}

// scan adds a handle for every directory under reg not yet watched. Called
// on registration and again whenever something is created inside the tree.
func (s *notifyStrategy) scan(reg *registration) error {
	return filepath.WalkDir(reg.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish between listing and visiting.
			if path == reg.path {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != reg.path && s.ignored(reg, path) {
			return filepath.SkipDir
		}

		return s.addHandle(reg, path)
	})
}

func (s *notifyStrategy) addHandle(reg *registration, dir string) error {
	if _, ok := reg.handles[dir]; ok {
		return nil
	}
	if s.handles[dir] == 0 {
		if err := s.fsw.Add(dir); err != nil {
			return err
		}
	}
	s.handles[dir]++
	reg.handles[dir] = struct{}{}

	return nil
}

func (s *notifyStrategy) dropHandle(reg *registration, dir string) {
	if _, ok := reg.handles[dir]; !ok {
		return
	}
	delete(reg.handles, dir)

	s.handles[dir]--
	if s.handles[dir] > 0 {
		return
	}
	delete(s.handles, dir)
	// fsnotify drops handles of removed directories on its own.
	_ = s.fsw.Remove(dir)
}

func (s *notifyStrategy) release(reg *registration) {
	for dir := range reg.handles {
		s.dropHandle(reg, dir)
	}
}

func (s *notifyStrategy) ignored(reg *registration, path string) bool {
	rel, err := filepath.Rel(reg.path, path)
	if err != nil {
		return false
	}

	return s.ignore(rel)
}

func (s *notifyStrategy) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn(context.Background(), err, "File watcher error")
		}
	}
}

func (s *notifyStrategy) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	var affected []string

	s.mutex.Lock()
	for _, reg := range s.registrations {
		if !reg.dir {
			if event.Name == reg.path {
				affected = append(affected, reg.path)
			}
			continue
		}

		if !isWithin(reg.path, event.Name) || s.ignored(reg, event.Name) {
			continue
		}
		affected = append(affected, reg.path)

		switch {
		case event.Has(fsnotify.Create):
			if err := s.scan(reg); err != nil {
				s.logger.Warn(context.Background(), err, "Rescanning watch tree", "path", reg.path)
			}
		case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
			s.dropHandle(reg, event.Name)
		}
	}
	s.mutex.Unlock()

	for _, path := range affected {
		s.notify(path)
	}
}
