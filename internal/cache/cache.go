// Package cache turns successive snapshots of resolved assets into the minimal
// ordered set of insert, update and delete actions between them.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a value the cache can diff. Key identifies the value across
// snapshots and Fingerprint decides whether it changed.
type Entry interface {
	Key() string
	Fingerprint() time.Time
}

// ActionType is the kind of change an Action describes.
type ActionType int

const (
	ActionDelete ActionType = iota
	ActionInsert
	ActionUpdate
)

// String returns the string representation of the ActionType
func (a ActionType) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Action is one diff outcome. Actions are consumed once and not retained.
type Action[T Entry] struct {
	Type  ActionType
	Value T
}

// Stats reports how much work the cache has produced.
type Stats struct {
	Passes  int64
	Inserts int64
	Updates int64
	Deletes int64
	Size    int
}

// Cache is a single-generation snapshot store. Each Update replaces the
// stored snapshot with the one passed in.
type Cache[T Entry] struct {
	mutex   sync.Mutex
	order   []string
	entries map[string]T

	passes  atomic.Int64
	inserts atomic.Int64
	updates atomic.Int64
	deletes atomic.Int64
}

// New creates an empty cache.
func New[T Entry]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]T),
	}
}

// Update diffs values against the stored snapshot and returns all deletes,
// then all inserts, then all updates. Deletes follow the stored order;
// inserts and updates follow the order of values. Two values sharing a key
// collapse to the first one.
//
// Fingerprints are compared with time.Time.Equal, so a file touched without a
// content change still produces an update.
func (c *Cache[T]) Update(values []T) []Action[T] {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	next := make(map[string]T, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		key := v.Key()
		if _, dup := next[key]; dup {
			continue
		}
		next[key] = v
		order = append(order, key)
	}

	var deletes, inserts, updates []Action[T]

	for _, key := range c.order {
		if _, ok := next[key]; !ok {
			deletes = append(deletes, Action[T]{Type: ActionDelete, Value: c.entries[key]})
		}
	}

	for _, key := range order {
		current := next[key]
		previous, ok := c.entries[key]
		switch {
		case !ok:
			inserts = append(inserts, Action[T]{Type: ActionInsert, Value: current})
		case !previous.Fingerprint().Equal(current.Fingerprint()):
			updates = append(updates, Action[T]{Type: ActionUpdate, Value: current})
		}
	}

	c.entries = next
	c.order = order

	c.passes.Add(1)
	c.deletes.Add(int64(len(deletes)))
	c.inserts.Add(int64(len(inserts)))
	c.updates.Add(int64(len(updates)))

	actions := make([]Action[T], 0, len(deletes)+len(inserts)+len(updates))
	actions = append(actions, deletes...)
	actions = append(actions, inserts...)
	actions = append(actions, updates...)

	return actions
}

// Get returns the stored value for key.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	v, ok := c.entries[key]

	return v, ok
}

// Len returns the size of the stored snapshot.
func (c *Cache[T]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.entries)
}

// Reset drops the stored snapshot; the next Update reports every value as an insert.
func (c *Cache[T]) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]T)
	c.order = nil
}

// Stats returns cache statistics
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Passes:  c.passes.Load(),
		Inserts: c.inserts.Load(),
		Updates: c.updates.Load(),
		Deletes: c.deletes.Load(),
		Size:    c.Len(),
	}
}
