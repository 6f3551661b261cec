// Package pausable provides a subscriber that keeps exactly one value in
// flight and stops asking for more whenever its handler says so.
package pausable

import (
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

// Subscriber is Running until receiveValue returns false, then Paused until
// Resume is called.
type Subscriber[T any] struct {
	receiveValue      func(T) bool
	receiveCompletion func(stream.Completion)

	mu     sync.Mutex // protects everything below
	sub    stream.Subscription
	paused bool
	done   bool
}

var _ stream.Subscriber[int] = (*Subscriber[int])(nil)

// New returns a Subscriber. receiveCompletion may be nil.
func New[T any](receiveValue func(T) bool, receiveCompletion func(stream.Completion)) *Subscriber[T] {
	return &Subscriber[T]{
		receiveValue:      receiveValue,
		receiveCompletion: receiveCompletion,
	}
}

// Sink subscribes a new Subscriber to p.
func Sink[T any](p stream.Publisher[T], receiveValue func(T) bool,
	receiveCompletion func(stream.Completion),
) *Subscriber[T] {
	s := New(receiveValue, receiveCompletion)
	p.Subscribe(s)
	return s
}

func (s *Subscriber[T]) OnSubscribe(sub stream.Subscription) {
	s.mu.Lock()
	if s.sub != nil || s.done {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()

	sub.Request(stream.Max(1))
}

// OnNext always returns None. More demand is requested explicitly, one value
// at a time.
func (s *Subscriber[T]) OnNext(v T) stream.Demand {
	if !s.receiveValue(v) {
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
		return stream.None
	}

	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Request(stream.Max(1))
	}
	return stream.None
}

func (s *Subscriber[T]) OnComplete(c stream.Completion) {
	s.mu.Lock()
	s.done = true
	s.sub = nil
	s.mu.Unlock()

	if s.receiveCompletion != nil {
		s.receiveCompletion(c)
	}
}

// Resume requests one more value if the subscriber is paused.
func (s *Subscriber[T]) Resume() {
	s.mu.Lock()
	if !s.paused || s.sub == nil {
		s.mu.Unlock()
		return
	}
	s.paused = false
	sub := s.sub
	s.mu.Unlock()

	sub.Request(stream.Max(1))
}

func (s *Subscriber[T]) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Subscriber[T]) Cancel() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.done = true
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
