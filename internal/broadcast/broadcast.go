// Package broadcast is a lossy fan-out hub. Each subscriber owns a bounded
// queue; when it is full the oldest message is dropped and the subscriber
// is told how many it missed on its next receive.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the per-subscriber queue size used when none is given.
const DefaultCapacity = 100

// ErrClosed is returned by Recv once the subscription or hub is closed and
// the queue is drained.
var ErrClosed = errors.New("broadcast: closed")

// LaggedError reports messages dropped because the subscriber fell behind.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, %d messages skipped", e.Skipped)
}

// Broadcaster delivers every published message to every live subscriber.
// Publish never blocks on a slow subscriber.
type Broadcaster[T any] struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func New[T any](capacity int) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster[T]{
		capacity: capacity,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

// Subscribe registers a new subscriber that sees messages published from now on.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{
		hub:    b,
		buf:    make([]T, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish queues msg for all subscribers and returns how many it reached.
// With no subscribers the message is discarded.
func (b *Broadcaster[T]) Publish(msg T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	for sub := range b.subs {
		sub.push(msg)
	}
	return len(b.subs)
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Queued messages remain readable.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.markClosed()
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one subscriber's queue. Recv is intended for a single
// consumer goroutine.
type Subscription[T any] struct {
	hub    *Broadcaster[T]
	notify chan struct{}

	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	lagged uint64
	closed bool
}

func (s *Subscription[T]) push(msg T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.size == len(s.buf) {
		var zero T
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.lagged++
	}
	s.buf[(s.head+s.size)%len(s.buf)] = msg
	s.size++
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a message is available, the subscriber has lagged, the
// subscription is closed, or ctx is done. A *LaggedError is returned once per
// overflow episode; the following calls resume with the oldest retained message.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		msg, ok, err := s.tryRecv()
		if ok {
			return msg, err
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (s *Subscription[T]) tryRecv() (T, bool, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lagged > 0 {
		skipped := s.lagged
		s.lagged = 0
		return zero, true, &LaggedError{Skipped: skipped}
	}
	if s.size > 0 {
		msg := s.buf[s.head]
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		return msg, true, nil
	}
	if s.closed {
		return zero, true, ErrClosed
	}
	return zero, false, nil
}

// Len returns the number of queued messages.
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close unsubscribes. Messages already queued can still be received.
func (s *Subscription[T]) Close() {
	s.hub.remove(s)
	s.markClosed()
}

func (s *Subscription[T]) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}
