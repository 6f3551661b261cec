// Package streamtest contains helpers for testing publishers.
package streamtest

import (
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

// Recorder is a Subscriber that records everything it receives.
// It requests Initial on subscription and returns PerValue from every OnNext.
type Recorder[T any] struct {
	Initial  stream.Demand
	PerValue stream.Demand

	mu          sync.Mutex
	sub         stream.Subscription
	subscribed  int
	values      []T
	completion  *stream.Completion
	completions int
	done        chan struct{}
}

func NewRecorder[T any](initial stream.Demand) *Recorder[T] {
	return &Recorder[T]{
		Initial: initial,
		done:    make(chan struct{}),
	}
}

func (r *Recorder[T]) OnSubscribe(sub stream.Subscription) {
	r.mu.Lock()
	r.sub = sub
	r.subscribed++
	r.mu.Unlock()

	if !r.Initial.IsNone() {
		sub.Request(r.Initial)
	}
}

func (r *Recorder[T]) OnNext(v T) stream.Demand {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	return r.PerValue
}

func (r *Recorder[T]) OnComplete(c stream.Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
	if r.completion == nil {
		r.completion = &c
		close(r.done)
	}
}

// Request forwards d to the recorded subscription.
func (r *Recorder[T]) Request(d stream.Demand) {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	sub.Request(d)
}

func (r *Recorder[T]) Cancel() {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Completion returns the first completion received, if any.
func (r *Recorder[T]) Completion() (stream.Completion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completion == nil {
		return stream.Completion{}, false
	}
	return *r.completion, true
}

// Completions counts OnComplete calls; anything above one is a protocol violation.
func (r *Recorder[T]) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions
}

func (r *Recorder[T]) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribed
}

// Done is closed on the first completion.
func (r *Recorder[T]) Done() <-chan struct{} {
	return r.done
}
