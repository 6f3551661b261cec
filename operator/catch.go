package operator

import (
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

type catch[T any] struct {
	p       stream.Publisher[T]
	handler func(error) stream.Publisher[T]
}

// Catch continues with the publisher returned by handler when p fails.
// Failures of the fallback itself are passed downstream.
func Catch[T any](p stream.Publisher[T], handler func(error) stream.Publisher[T]) stream.Publisher[T] {
	return catch[T]{p: p, handler: handler}
}

func (c catch[T]) Subscribe(s stream.Subscriber[T]) {
	var once sync.Once
	subscribeSwitcher(c.p, s, func(completion stream.Completion) stream.Publisher[T] {
		var next stream.Publisher[T]
		if completion.IsFailure() {
			once.Do(func() {
				next = c.handler(completion.Err())
			})
		}
		return next
	})
}

// ReplaceError emits v and finishes in place of a failure of p.
func ReplaceError[T any](p stream.Publisher[T], v T) stream.Publisher[T] {
	return Catch(p, func(error) stream.Publisher[T] {
		return stream.Just(v)
	})
}
