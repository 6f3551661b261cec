package operator

import (
	"github.com/NethermindEth/demandflow/stream"
)

// Events holds optional hooks run as the corresponding events pass through
// a publisher. Nil hooks are skipped.
type Events[T any] struct {
	Subscribe func(stream.Subscription)
	Value     func(T)
	Complete  func(stream.Completion)
	Cancel    func()
	Request   func(stream.Demand)
}

type handleEvents[T any] struct {
	p      stream.Publisher[T]
	events Events[T]
}

// HandleEvents returns p with hooks attached to every subscription.
func HandleEvents[T any](p stream.Publisher[T], events Events[T]) stream.Publisher[T] {
	return handleEvents[T]{p: p, events: events}
}

func (h handleEvents[T]) Subscribe(s stream.Subscriber[T]) {
	h.p.Subscribe(&eventsSubscriber[T]{down: s, events: &h.events})
}

type eventsSubscriber[T any] struct {
	down   stream.Subscriber[T]
	events *Events[T]
	up     stream.Subscription
}

func (e *eventsSubscriber[T]) OnSubscribe(sub stream.Subscription) {
	e.up = sub
	if e.events.Subscribe != nil {
		e.events.Subscribe(sub)
	}
	e.down.OnSubscribe(e)
}

func (e *eventsSubscriber[T]) OnNext(v T) stream.Demand {
	if e.events.Value != nil {
		e.events.Value(v)
	}
	return e.down.OnNext(v)
}

func (e *eventsSubscriber[T]) OnComplete(c stream.Completion) {
	if e.events.Complete != nil {
		e.events.Complete(c)
	}
	e.down.OnComplete(c)
}

func (e *eventsSubscriber[T]) Request(d stream.Demand) {
	if e.events.Request != nil {
		e.events.Request(d)
	}
	e.up.Request(d)
}

func (e *eventsSubscriber[T]) Cancel() {
	if e.events.Cancel != nil {
		e.events.Cancel()
	}
	e.up.Cancel()
}
