// Package stream defines the demand-based producer/consumer protocol.
//
// A Subscriber attaches to a Publisher and is handed exactly one
// Subscription. Through it the subscriber requests a bounded or unbounded
// number of future values and may cancel at any time. The publisher must
// never deliver more values than the net demand it has been granted, and
// delivers at most one terminal Completion.
//
// Call order on a Subscriber is always
//
//	OnSubscribe (OnNext)* [OnComplete]
//
// and no call happens after OnComplete or after Cancel has returned.
// Calls on one Subscriber are never concurrent with each other.
package stream

//go:generate mockgen -destination=../mocks/mock_subscription.go -package=mocks github.com/NethermindEth/demandflow/stream Subscription

// Subscription is the control channel of a single publisher/subscriber edge.
// Request and Cancel are safe to call from any goroutine, including from
// inside the subscriber's own OnSubscribe and OnNext.
type Subscription interface {
	// Request adds d to the outstanding demand of the edge.
	Request(d Demand)
	// Cancel stops delivery. It is idempotent, and a no-op after completion.
	Cancel()
}

type Subscriber[T any] interface {
	OnSubscribe(sub Subscription)
	// OnNext receives one value and returns the additional demand granted
	// by this call, which may be None.
	OnNext(v T) Demand
	OnComplete(c Completion)
}

// Publisher creates a new Subscription for every Subscriber it is given.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

type Cancellable interface {
	Cancel()
}

// CancelFunc adapts a function to Cancellable.
type CancelFunc func()

func (f CancelFunc) Cancel() { f() }

// EmptySubscription ignores every request. Publishers hand it to subscribers
// that are completed before any value could be produced.
var EmptySubscription Subscription = emptySubscription{}

type emptySubscription struct{}

func (emptySubscription) Request(Demand) {}
func (emptySubscription) Cancel()        {}
