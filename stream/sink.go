package stream

import (
	"sync"
)

// Sink is a Subscriber that requests Unlimited on subscription and hands
// every event to callbacks. Either callback may be nil.
type Sink[T any] struct {
	onValue    func(T)
	onComplete func(Completion)

	mu   sync.Mutex // protects sub and done
	sub  Subscription
	done bool
}

func NewSink[T any](onValue func(T), onComplete func(Completion)) *Sink[T] {
	return &Sink[T]{
		onValue:    onValue,
		onComplete: onComplete,
	}
}

// SinkTo subscribes a new Sink to p.
func SinkTo[T any](p Publisher[T], onValue func(T), onComplete func(Completion)) *Sink[T] {
	s := NewSink(onValue, onComplete)
	p.Subscribe(s)
	return s
}

func (s *Sink[T]) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	if s.sub != nil || s.done {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()

	sub.Request(Unlimited)
}

func (s *Sink[T]) OnNext(v T) Demand {
	if s.onValue != nil {
		s.onValue(v)
	}
	return None
}

func (s *Sink[T]) OnComplete(c Completion) {
	s.mu.Lock()
	s.done = true
	s.sub = nil
	s.mu.Unlock()

	if s.onComplete != nil {
		s.onComplete(c)
	}
}

func (s *Sink[T]) Cancel() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.done = true
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
