// Package feed implements a hot publisher that passes values straight
// through to its current subscribers.
package feed

import (
	"cmp"
	"slices"
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

// Feed delivers every value sent to it to each subscriber that has
// outstanding demand at that moment. Subscribers without demand miss the
// value; nothing is buffered.
//
// Send and Finish are serialized with each other. They must not be called
// from inside a callback of one of this feed's subscribers.
type Feed[T any] struct {
	sendMu sync.Mutex // serializes Send and Finish

	mu       sync.Mutex // protects subs, nextID and finished
	subs     map[uint64]*Subscription[T]
	nextID   uint64
	finished *stream.Completion
}

var _ stream.Publisher[int] = (*Feed[int])(nil)

// Subscription is the subscription behind one Feed subscriber.
type Subscription[T any] struct {
	f         *Feed[T]
	sub       stream.Subscriber[T]
	id        uint64
	unsubOnce sync.Once

	mu     sync.Mutex // protects demand and done
	demand stream.Demand
	done   bool
}

func (s *Subscription[T]) Request(d stream.Demand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.demand = s.demand.Add(d)
	}
}

// Cancel removes the subscriber from the feed. Cancelling twice is ok.
func (s *Subscription[T]) Cancel() {
	s.unsubOnce.Do(func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()

		s.f.mu.Lock()
		defer s.f.mu.Unlock()
		delete(s.f.subs, s.id)
	})
}

// take reserves one unit of demand.
func (s *Subscription[T]) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.demand.IsNone() {
		return false
	}
	s.demand = s.demand.Decrement()
	return true
}

// finish marks s done and reports whether it was still live.
func (s *Subscription[T]) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

func New[T any]() *Feed[T] {
	return &Feed[T]{
		subs: make(map[uint64]*Subscription[T], 0),
	}
}

// Subscribe registers sub. Once the feed has finished, sub is completed at once.
func (f *Feed[T]) Subscribe(sub stream.Subscriber[T]) {
	f.mu.Lock()
	if f.finished != nil {
		c := *f.finished
		f.mu.Unlock()
		sub.OnSubscribe(stream.EmptySubscription)
		sub.OnComplete(c)
		return
	}
	s := &Subscription[T]{
		f:   f,
		sub: sub,
		id:  f.nextID,
	}
	f.nextID++
	f.subs[s.id] = s
	f.mu.Unlock()

	sub.OnSubscribe(s)
}

// snapshot returns the live subscriptions in subscription order.
func (f *Feed[T]) snapshot() []*Subscription[T] {
	subs := make([]*Subscription[T], 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	slices.SortFunc(subs, func(a, b *Subscription[T]) int {
		return cmp.Compare(a.id, b.id)
	})
	return subs
}

// Send broadcasts v to all subscribers with demand. Send will skip subscribers
// that have not requested anything. Sending without subscribers is ok.
func (f *Feed[T]) Send(v T) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	if f.finished != nil {
		f.mu.Unlock()
		return
	}
	subs := f.snapshot()
	f.mu.Unlock()

	for _, s := range subs {
		if !s.take() {
			continue
		}
		if more := s.sub.OnNext(v); !more.IsNone() {
			s.Request(more)
		}
	}
}

// Finish completes every subscriber with c. Later calls are no-ops.
func (f *Feed[T]) Finish(c stream.Completion) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	if f.finished != nil {
		f.mu.Unlock()
		return
	}
	f.finished = &c
	subs := f.snapshot()
	clear(f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if s.finish() {
			s.sub.OnComplete(c)
		}
	}
}

// Len returns the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Tee forwards all values and the completion of p to f, requesting Unlimited.
// It stops tee-ing values when the returned handle is cancelled.
func Tee[T any](p stream.Publisher[T], f *Feed[T]) stream.Cancellable {
	return stream.SinkTo(p, f.Send, f.Finish)
}
