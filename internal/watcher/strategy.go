package watcher

import (
	"fmt"
	"time"

	"github.com/conneroisu/hammer/internal/logging"
)

// StrategyKind names a way of observing the file system.
type StrategyKind string

const (
	// StrategyFSNotify emulates recursive watching with one fsnotify handle per
	// directory.
	StrategyFSNotify StrategyKind = "fsnotify"
	// StrategyPoll stats every registered tree on an interval.
	StrategyPoll StrategyKind = "poll"
)

// DefaultPollInterval is the scan interval of the poll strategy.
const DefaultPollInterval = 500 * time.Millisecond

// Strategy observes registered paths and calls the notify function it was
// built with, passing the registered path, for every raw change beneath it.
type Strategy interface {
	Name() StrategyKind
	Watch(path string) error
	Unwatch(path string) error
	Close() error
}

type strategyConfig struct {
	notify       func(path string)
	ignore       Filter
	logger       logging.Logger
	pollInterval time.Duration
}

func newStrategy(kind StrategyKind, cfg strategyConfig) (Strategy, error) {
	switch kind {
	case StrategyFSNotify:
		return newNotifyStrategy(cfg)
	case StrategyPoll:
		return newPollStrategy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown watch strategy %q", kind)
	}
}
