package stream

import (
	"sync"
)

// Subscribe attaches s to p and returns a handle that cancels the resulting
// subscription. The handle may be used before p has delivered the
// subscription; the cancel is then applied as soon as it arrives.
func Subscribe[T any](p Publisher[T], s Subscriber[T]) Cancellable {
	h := &handle[T]{inner: s}
	p.Subscribe(h)
	return h
}

type handle[T any] struct {
	inner Subscriber[T]

	mu        sync.Mutex // protects sub and cancelled
	sub       Subscription
	cancelled bool
}

func (h *handle[T]) OnSubscribe(sub Subscription) {
	h.mu.Lock()
	if h.sub != nil {
		h.mu.Unlock()
		panic(ProtocolViolationError{Err: ErrAlreadySubscribed, Op: "OnSubscribe"})
	}
	h.sub = sub
	cancelled := h.cancelled
	h.mu.Unlock()

	if cancelled {
		sub.Cancel()
		return
	}
	h.inner.OnSubscribe(sub)
}

func (h *handle[T]) OnNext(v T) Demand {
	return h.inner.OnNext(v)
}

func (h *handle[T]) OnComplete(c Completion) {
	h.inner.OnComplete(c)
}

func (h *handle[T]) Cancel() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	sub := h.sub
	h.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
