package operator

import (
	"github.com/NethermindEth/demandflow/stream"
)

type mapped[In, Out any] struct {
	p  stream.Publisher[In]
	fn func(In) Out
}

// Map applies fn to every value of p. Demand and cancellation pass straight
// through to p.
func Map[In, Out any](p stream.Publisher[In], fn func(In) Out) stream.Publisher[Out] {
	return mapped[In, Out]{p: p, fn: fn}
}

func (m mapped[In, Out]) Subscribe(s stream.Subscriber[Out]) {
	m.p.Subscribe(mapSubscriber[In, Out]{down: s, fn: m.fn})
}

type mapSubscriber[In, Out any] struct {
	down stream.Subscriber[Out]
	fn   func(In) Out
}

func (m mapSubscriber[In, Out]) OnSubscribe(sub stream.Subscription) {
	m.down.OnSubscribe(sub)
}

func (m mapSubscriber[In, Out]) OnNext(v In) stream.Demand {
	return m.down.OnNext(m.fn(v))
}

func (m mapSubscriber[In, Out]) OnComplete(c stream.Completion) {
	m.down.OnComplete(c)
}
