// Package channel provides an unbounded single-producer/single-consumer queue
// with an explicit end-of-stream marker, and a fan-in Select over several
// receivers.
//
// Unlike a Go channel, Send never blocks and End is distinct from "no value
// yet": a receiver observes every value sent before End, then observes the end
// exactly once and stays ended.
package channel

import (
	"context"
	"iter"
	"sync"
)

type message[T any] struct {
	value T
	end   bool
}

type queue[T any] struct {
	mu     sync.Mutex
	items  []message[T]
	ready  chan struct{} // signalled on every push
	ended  bool          // end marker has been observed by the receiver
	sealed bool          // End has been called
}

// Sender is the write half of a channel.
type Sender[T any] struct {
	q *queue[T]
}

// Receiver is the read half of a channel.
type Receiver[T any] struct {
	q *queue[T]
}

// New returns a paired sender and receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	q := &queue[T]{ready: make(chan struct{}, 1)}
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

// Send enqueues v. If a receive is waiting it is woken immediately.
// Sending after End is a caller error; such values are never observed.
func (s *Sender[T]) Send(v T) {
	s.q.push(message[T]{value: v})
}

// End enqueues the terminal marker. Calling End more than once is a no-op.
func (s *Sender[T]) End() {
	s.q.mu.Lock()
	if s.q.sealed {
		s.q.mu.Unlock()
		return
	}
	s.q.sealed = true
	s.q.mu.Unlock()

	s.q.push(message[T]{end: true})
}

func (q *queue[T]) push(m message[T]) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop returns the next message without blocking.
func (q *queue[T]) pop() (message[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended {
		return message[T]{end: true}, true
	}
	if len(q.items) == 0 {
		return message[T]{}, false
	}

	m := q.items[0]
	q.items[0] = message[T]{}
	q.items = q.items[1:]
	if m.end {
		q.ended = true
		q.items = nil
	}

	return m, true
}

// TryReceive returns the next value without blocking. ok reports whether a
// value was returned; ended reports whether the stream has finished.
func (r *Receiver[T]) TryReceive() (value T, ok bool, ended bool) {
	m, got := r.q.pop()
	if !got {
		return value, false, false
	}
	if m.end {
		return value, false, true
	}

	return m.value, true, false
}

// Receive blocks until a value is available or the stream ends. ok is false
// once the end marker has been observed. A cancelled ctx returns ctx.Err().
func (r *Receiver[T]) Receive(ctx context.Context) (value T, ok bool, err error) {
	for {
		m, got := r.q.pop()
		if got {
			if m.end {
				return value, false, nil
			}
			return m.value, true, nil
		}

		select {
		case <-ctx.Done():
			return value, false, ctx.Err()
		case <-r.q.ready:
		}
	}
}

// All iterates the stream until the end marker or ctx cancellation.
// The stream is one-shot: a second iteration yields nothing once ended.
func (r *Receiver[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok, err := r.Receive(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Select merges receivers into one. Values are relayed in arrival order and
// the output ends only after every input has ended. Cancelling ctx stops the
// relays and ends the output.
func Select[T any](ctx context.Context, receivers ...*Receiver[T]) *Receiver[T] {
	sender, out := New[T]()

	var wg sync.WaitGroup
	wg.Add(len(receivers))
	for _, r := range receivers {
		go func(r *Receiver[T]) {
			defer wg.Done()
			for v := range r.All(ctx) {
				sender.Send(v)
			}
		}(r)
	}

	go func() {
		wg.Wait()
		sender.End()
	}()

	return out
}
