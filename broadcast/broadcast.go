// Package broadcast implements a multicast hub that fans one upstream
// publisher out to any number of downstream subscribers and replays the
// most recent values to subscribers that attach late.
//
// Notes:
//   - The hub connects to its upstream lazily, on the first Attach, and
//     requests Unlimited. Upstream values are never throttled by slow
//     subscribers; instead every edge keeps its own bounded backlog and
//     overwrites its oldest entry when full.
//   - Each downstream edge honours its own demand. A value is delivered to
//     an edge only while that edge has outstanding demand.
//   - Subscribers may call back into the hub (Attach, Request, Cancel,
//     Disconnect) from inside their callbacks. No lock is held while a
//     subscriber callback runs.
//   - Detaching the last subscriber does not cancel the upstream; use
//     Disconnect for that.
package broadcast

import (
	"slices"
	"strconv"
	"sync"

	"github.com/NethermindEth/demandflow/metrics"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/utils"
)

// edge is one downstream subscriber of the hub.
// - backlog: values accepted for this edge but not yet delivered.
// - ready:   OnSubscribe has returned, so delivery may start.
// - draining: a goroutine is delivering from the backlog.
// - closed:  the edge has been cancelled or completed.
type edge[T any] struct {
	id       uint64
	sub      stream.Subscriber[T]
	demand   stream.Demand
	backlog  *ringBuffer[T]
	ready    bool
	draining bool
	closed   bool
}

type hubMetrics struct {
	edges     metrics.Gauge
	relayed   metrics.Counter
	delivered metrics.Counter
	dropped   metrics.Counter
}

type options struct {
	log     utils.SimpleLogger
	factory metrics.Factory
	name    string
}

type Option func(*options)

func WithLogger(log utils.SimpleLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithMetrics registers the hub's instruments with factory, labelled hub=name.
func WithMetrics(factory metrics.Factory, name string) Option {
	return func(o *options) {
		o.factory = factory
		o.name = name
	}
}

// Hub multicasts one upstream publisher. It implements stream.Publisher.
type Hub[T any] struct {
	upstream stream.Publisher[T]
	capacity int
	log      utils.SimpleLogger
	metrics  hubMetrics

	mu           sync.Mutex // protects everything below
	replay       *ringBuffer[T]
	edges        map[uint64]*edge[T]
	order        []uint64 // edge ids in registration order
	nextID       uint64
	connected    bool
	disconnected bool
	upstreamSub  stream.Subscription
	completion   *stream.Completion
}

var _ stream.Publisher[int] = (*Hub[int])(nil)

// New creates a hub over upstream that replays the last capacity values to
// late subscribers. Capacity also bounds every edge's backlog; a capacity of
// zero disables replay, and an edge without demand then loses live values.
func New[T any](upstream stream.Publisher[T], capacity int, opts ...Option) *Hub[T] {
	if capacity < 0 {
		panic(stream.ProtocolViolationError{Err: ErrNegativeCapacity, Op: "broadcast.New"})
	}
	o := options{
		log:     utils.NewNopZapLogger(),
		factory: metrics.VoidFactory(),
		name:    "default",
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Hub[T]{
		upstream: upstream,
		capacity: capacity,
		log:      o.log,
		metrics:  newHubMetrics(o.factory, o.name),
		replay:   newRingBuffer[T](capacity),
		edges:    make(map[uint64]*edge[T]),
	}
}

func newHubMetrics(factory metrics.Factory, name string) hubMetrics {
	labels := []string{"hub"}
	opts := func(n, help string) metrics.Opts {
		return metrics.Opts{Namespace: "demandflow", Subsystem: "broadcast", Name: n, Help: help}
	}
	return hubMetrics{
		edges: factory.NewGaugeVec(metrics.GaugeOpts(opts("edges", "Attached downstream subscribers.")),
			labels).WithLabelValues(name),
		relayed: factory.NewCounterVec(metrics.CounterOpts(opts("relayed_total", "Values received from upstream.")),
			labels).WithLabelValues(name),
		delivered: factory.NewCounterVec(metrics.CounterOpts(opts("delivered_total", "Values delivered downstream.")),
			labels).WithLabelValues(name),
		dropped: factory.NewCounterVec(metrics.CounterOpts(opts("dropped_total", "Values overwritten in a full edge backlog.")),
			labels).WithLabelValues(name),
	}
}

func (h *Hub[T]) Subscribe(s stream.Subscriber[T]) {
	h.Attach(s)
}

// Attach registers s as a downstream edge. The edge starts with a backlog
// holding a copy of the replay buffer and no demand. If the hub has already
// completed, s is handed an empty subscription and the recorded completion at
// once.
func (h *Hub[T]) Attach(s stream.Subscriber[T]) stream.Cancellable {
	h.mu.Lock()
	if h.completion != nil {
		c := *h.completion
		h.mu.Unlock()
		s.OnSubscribe(stream.EmptySubscription)
		s.OnComplete(c)
		return stream.CancelFunc(func() {})
	}

	id := h.nextID
	h.nextID++
	e := &edge[T]{
		id:      id,
		sub:     s,
		backlog: newRingBuffer[T](max(h.capacity, 1)),
	}
	for _, v := range h.replay.Snapshot() {
		e.backlog.Push(v)
	}
	h.edges[id] = e
	h.order = append(h.order, id)
	h.metrics.edges.Inc()
	connect := !h.connected
	h.connected = true
	h.mu.Unlock()

	tok := &token[T]{hub: h, id: id}
	s.OnSubscribe(tok)

	h.mu.Lock()
	e.ready = true
	h.drain(e)
	h.mu.Unlock()

	if connect {
		h.log.Debugw("Connecting hub to upstream", "capacity", h.capacity)
		h.upstream.Subscribe(&relay[T]{hub: h})
	}
	return tok
}

// Disconnect cancels the upstream subscription and finishes every attached
// edge. It is a no-op once the hub has completed.
func (h *Hub[T]) Disconnect() {
	h.mu.Lock()
	if h.completion != nil {
		h.mu.Unlock()
		return
	}
	h.disconnected = true
	sub := h.upstreamSub
	h.upstreamSub = nil
	h.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	h.log.Debugw("Hub disconnected from upstream")
	h.complete(stream.Finished)
}

// Edges returns the number of attached downstream subscribers.
func (h *Hub[T]) Edges() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.edges)
}

// Completion returns the terminal event received from upstream, if any.
func (h *Hub[T]) Completion() (stream.Completion, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completion == nil {
		return stream.Completion{}, false
	}
	return *h.completion, true
}

func (h *Hub[T]) onUpstreamSubscribe(sub stream.Subscription) {
	h.mu.Lock()
	if h.disconnected || h.completion != nil || h.upstreamSub != nil {
		h.mu.Unlock()
		sub.Cancel()
		return
	}
	h.upstreamSub = sub
	h.mu.Unlock()

	sub.Request(stream.Unlimited)
}

// publish records v in the replay buffer and in every edge's backlog, then
// drains the edges in registration order.
func (h *Hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completion != nil {
		return
	}
	h.metrics.relayed.Inc()
	h.replay.Push(v)

	ids := slices.Clone(h.order)
	for _, id := range ids {
		if h.edges[id].backlog.Push(v) {
			h.metrics.dropped.Inc()
		}
	}
	for _, id := range ids {
		if e, ok := h.edges[id]; ok {
			h.drain(e)
		}
	}
}

func (h *Hub[T]) complete(c stream.Completion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completion != nil {
		return
	}
	h.completion = &c
	h.upstreamSub = nil
	if c.IsFailure() {
		h.log.Debugw("Hub upstream failed", "err", c.Err())
	}

	for _, id := range slices.Clone(h.order) {
		if e, ok := h.edges[id]; ok {
			h.drain(e)
		}
	}
	h.replay.Clear()
}

// drain delivers from e's backlog while e has demand, then completes e if the
// hub has completed. It must be called with h.mu held and releases it around
// every subscriber callback. Only one drain runs per edge; a concurrent call
// returns at once and the running one picks up any demand added meanwhile.
func (h *Hub[T]) drain(e *edge[T]) {
	if !e.ready || e.draining || e.closed {
		return
	}
	e.draining = true
	for !e.closed && !e.demand.IsNone() {
		v, ok := e.backlog.Pop()
		if !ok {
			break
		}
		e.demand = e.demand.Decrement()
		h.mu.Unlock()
		more := e.sub.OnNext(v)
		h.mu.Lock()
		h.metrics.delivered.Inc()
		if !e.closed {
			e.demand = e.demand.Add(more)
		}
	}
	e.draining = false

	if e.closed || h.completion == nil {
		return
	}
	// Values the edge never asked for are discarded.
	c := *h.completion
	h.remove(e)
	h.mu.Unlock()
	e.sub.OnComplete(c)
	h.mu.Lock()
}

// remove must be called with h.mu held.
func (h *Hub[T]) remove(e *edge[T]) {
	e.closed = true
	e.backlog.Clear()
	if _, ok := h.edges[e.id]; !ok {
		return
	}
	delete(h.edges, e.id)
	h.order = slices.DeleteFunc(h.order, func(id uint64) bool { return id == e.id })
	h.metrics.edges.Dec()
}

// token is the Subscription handed to a downstream subscriber. It refers to its
// edge by id, so it turns inert once the edge has been removed.
type token[T any] struct {
	hub *Hub[T]
	id  uint64
}

func (t *token[T]) Request(d stream.Demand) {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.edges[t.id]
	if !ok {
		return
	}
	e.demand = e.demand.Add(d)
	h.drain(e)
}

func (t *token[T]) Cancel() {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.edges[t.id]; ok {
		h.remove(e)
	}
}

func (t *token[T]) String() string {
	return "edge#" + strconv.FormatUint(t.id, 10)
}

// relay is the hub's subscriber on the upstream.
type relay[T any] struct {
	hub *Hub[T]
}

func (r *relay[T]) OnSubscribe(sub stream.Subscription) {
	r.hub.onUpstreamSubscribe(sub)
}

func (r *relay[T]) OnNext(v T) stream.Demand {
	r.hub.publish(v)
	return stream.None
}

func (r *relay[T]) OnComplete(c stream.Completion) {
	r.hub.complete(c)
}
