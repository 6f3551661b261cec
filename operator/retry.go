package operator

import (
	"sync"

	"github.com/NethermindEth/demandflow/stream"
)

type retry[T any] struct {
	p stream.Publisher[T]
	n int
}

// Retry resubscribes to p each time it fails, at most n times per
// subscriber. The failure after the last retry is passed downstream.
// Outstanding demand carries over to every new subscription of p.
func Retry[T any](p stream.Publisher[T], n int) stream.Publisher[T] {
	return retry[T]{p: p, n: n}
}

func (r retry[T]) Subscribe(s stream.Subscriber[T]) {
	var mu sync.Mutex
	left := r.n
	subscribeSwitcher(r.p, s, func(c stream.Completion) stream.Publisher[T] {
		mu.Lock()
		defer mu.Unlock()
		if !c.IsFailure() || left <= 0 {
			return nil
		}
		left--
		return r.p
	})
}
