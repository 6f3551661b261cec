package pubsub

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/utils"
)

var ErrNotFound = errors.New("subscription not found")

// Registry keeps cancel handles alive under random ids until they are
// deleted, their context ends, or the registry is cancelled as a whole.
type Registry struct {
	log utils.SimpleLogger

	mu            sync.Mutex // protects subscriptions
	subscriptions map[uint64]entry
}

type entry struct {
	c    stream.Cancellable
	stop func() bool
}

func New(log utils.SimpleLogger) *Registry {
	return &Registry{
		subscriptions: make(map[uint64]entry),
		log:           log,
	}
}

func getRandomID() uint64 {
	var n uint64
	for err := binary.Read(rand.Reader, binary.LittleEndian, &n); err != nil; {
	}
	return n
}

// Add stores c and returns its id. When ctx is done, c is cancelled and removed.
func (r *Registry) Add(ctx context.Context, c stream.Cancellable) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := getRandomID()
	for _, taken := r.subscriptions[id]; taken; _, taken = r.subscriptions[id] {
		id = getRandomID()
	}
	stop := context.AfterFunc(ctx, func() {
		if err := r.Delete(id); err == nil {
			r.log.Debugw("Subscription removed on context end", "id", id, "err", ctx.Err())
		}
	})
	r.subscriptions[id] = entry{c: c, stop: stop}
	return id
}

// Delete cancels and removes the subscription with the given id.
func (r *Registry) Delete(id uint64) error {
	r.mu.Lock()
	e, ok := r.subscriptions[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.subscriptions, id)
	r.mu.Unlock()

	e.stop()
	e.c.Cancel()
	return nil
}

// CancelAll cancels and removes every subscription.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := r.subscriptions
	r.subscriptions = make(map[uint64]entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.stop()
		e.c.Cancel()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscriptions)
}
