package stream

import (
	"sync"
)

// Sequence is a cold publisher of a fixed list of values. Every subscriber
// receives the whole list from the start, as fast as its demand allows, and
// then Finished.
type Sequence[T any] struct {
	values []T
}

func FromSlice[T any](values ...T) *Sequence[T] {
	return &Sequence[T]{values: values}
}

func Just[T any](v T) *Sequence[T] {
	return FromSlice(v)
}

func (s *Sequence[T]) Subscribe(sub Subscriber[T]) {
	if len(s.values) == 0 {
		sub.OnSubscribe(EmptySubscription)
		sub.OnComplete(Finished)
		return
	}
	sub.OnSubscribe(&sequenceSubscription[T]{
		values: s.values,
		sub:    sub,
	})
}

type sequenceSubscription[T any] struct {
	values []T
	sub    Subscriber[T]

	mu       sync.Mutex // protects everything below
	pos      int
	demand   Demand
	emitting bool
	done     bool
}

func (s *sequenceSubscription[T]) Request(d Demand) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.demand = s.demand.Add(d)
	if s.emitting {
		// The active emitter picks up the new demand.
		s.mu.Unlock()
		return
	}
	s.emitting = true
	s.mu.Unlock()

	s.emit()
}

func (s *sequenceSubscription[T]) emit() {
	for {
		s.mu.Lock()
		if s.done {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		if s.pos == len(s.values) {
			s.done = true
			s.emitting = false
			s.mu.Unlock()
			s.sub.OnComplete(Finished)
			return
		}
		if s.demand.IsNone() {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		s.demand = s.demand.Decrement()
		v := s.values[s.pos]
		s.pos++
		s.mu.Unlock()

		more := s.sub.OnNext(v)

		s.mu.Lock()
		if !s.done {
			s.demand = s.demand.Add(more)
		}
		s.mu.Unlock()
	}
}

func (s *sequenceSubscription[T]) Cancel() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

type failed[T any] struct {
	err error
}

// Fail returns a publisher that fails every subscriber immediately with err.
func Fail[T any](err error) Publisher[T] {
	return failed[T]{err: err}
}

func (f failed[T]) Subscribe(sub Subscriber[T]) {
	sub.OnSubscribe(EmptySubscription)
	sub.OnComplete(Failure(f.err))
}

// Empty returns a publisher that finishes every subscriber immediately.
func Empty[T any]() Publisher[T] {
	return FromSlice[T]()
}
