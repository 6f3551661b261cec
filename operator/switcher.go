// Package operator contains publishers that wrap other publishers: retry,
// error recovery and side-effect hooks.
package operator

import (
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

// switcher is the downstream subscription of an operator that moves between
// a sequence of upstream publishers. It remembers the downstream demand not
// yet satisfied and hands it to every new upstream. Callbacks from an
// upstream that has been switched away from are ignored.
type switcher[T any] struct {
	down stream.Subscriber[T]
	// next picks the publisher to continue with once the current upstream
	// completes with c. A nil publisher passes c downstream.
	next func(c stream.Completion) stream.Publisher[T]

	mu        sync.Mutex // protects everything below
	up        stream.Subscription
	gen       uint64
	demand    stream.Demand
	cancelled bool
	done      bool
}

func subscribeSwitcher[T any](p stream.Publisher[T], down stream.Subscriber[T],
	next func(c stream.Completion) stream.Publisher[T],
) {
	sw := &switcher[T]{down: down, next: next}
	down.OnSubscribe(sw)
	sw.switchTo(p)
}

func (sw *switcher[T]) switchTo(p stream.Publisher[T]) {
	sw.mu.Lock()
	if sw.cancelled || sw.done {
		sw.mu.Unlock()
		return
	}
	sw.gen++
	u := &upstream[T]{sw: sw, gen: sw.gen}
	sw.mu.Unlock()

	p.Subscribe(u)
}

func (sw *switcher[T]) Request(d stream.Demand) {
	sw.mu.Lock()
	if sw.cancelled || sw.done {
		sw.mu.Unlock()
		return
	}
	sw.demand = sw.demand.Add(d)
	up := sw.up
	sw.mu.Unlock()

	if up != nil {
		up.Request(d)
	}
}

func (sw *switcher[T]) Cancel() {
	sw.mu.Lock()
	if sw.cancelled {
		sw.mu.Unlock()
		return
	}
	sw.cancelled = true
	up := sw.up
	sw.up = nil
	sw.mu.Unlock()

	if up != nil {
		up.Cancel()
	}
}

// current reports whether gen is the live upstream. It must be called with sw.mu held.
func (sw *switcher[T]) current(gen uint64) bool {
	return gen == sw.gen && !sw.cancelled && !sw.done
}

func (sw *switcher[T]) finish(c stream.Completion) {
	sw.mu.Lock()
	if sw.cancelled || sw.done {
		sw.mu.Unlock()
		return
	}
	sw.done = true
	sw.mu.Unlock()

	sw.down.OnComplete(c)
}

// upstream is the subscriber given to one upstream publisher.
type upstream[T any] struct {
	sw  *switcher[T]
	gen uint64
}

func (u *upstream[T]) OnSubscribe(sub stream.Subscription) {
	sw := u.sw
	sw.mu.Lock()
	if !sw.current(u.gen) || sw.up != nil {
		sw.mu.Unlock()
		sub.Cancel()
		return
	}
	sw.up = sub
	d := sw.demand
	sw.mu.Unlock()

	if !d.IsNone() {
		sub.Request(d)
	}
}

func (u *upstream[T]) OnNext(v T) stream.Demand {
	sw := u.sw
	sw.mu.Lock()
	if !sw.current(u.gen) {
		sw.mu.Unlock()
		return stream.None
	}
	sw.demand = sw.demand.Decrement()
	sw.mu.Unlock()

	more := sw.down.OnNext(v)
	if !more.IsNone() {
		sw.mu.Lock()
		if sw.current(u.gen) {
			sw.demand = sw.demand.Add(more)
		}
		sw.mu.Unlock()
	}
	return more
}

func (u *upstream[T]) OnComplete(c stream.Completion) {
	sw := u.sw
	sw.mu.Lock()
	if !sw.current(u.gen) {
		sw.mu.Unlock()
		return
	}
	sw.up = nil
	sw.mu.Unlock()

	if p := sw.next(c); p != nil {
		sw.switchTo(p)
		return
	}
	sw.finish(c)
}
