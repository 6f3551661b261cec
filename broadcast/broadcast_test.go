package broadcast_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/NethermindEth/demandflow/broadcast"
	"github.com/NethermindEth/demandflow/metrics"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/stream/streamtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// source is a hand-driven upstream. It ignores demand, which is fine for the
// hub because the hub always requests Unlimited.
type source struct {
	mu         sync.Mutex
	sub        stream.Subscriber[int]
	subscribes int
	requested  stream.Demand
	cancelled  bool
}

func (s *source) Subscribe(sub stream.Subscriber[int]) {
	s.mu.Lock()
	s.sub = sub
	s.subscribes++
	s.mu.Unlock()
	sub.OnSubscribe(s)
}

func (s *source) Request(d stream.Demand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = s.requested.Add(d)
}

func (s *source) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *source) send(values ...int) {
	for _, v := range values {
		s.sub.OnNext(v)
	}
}

func (s *source) finish(c stream.Completion) {
	s.sub.OnComplete(c)
}

func TestHubLateSubscriberReplay(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 2)

	first := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(first)
	require.Equal(t, 1, src.subscribes)
	require.Equal(t, stream.Unlimited, src.requested)

	src.send(0, 1, 2, 3)

	late := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(late)
	assert.Equal(t, []int{2, 3}, late.Values())

	src.send(4)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, first.Values())
	assert.Equal(t, []int{2, 3, 4}, late.Values())

	// Attaching more subscribers never resubscribes upstream.
	assert.Equal(t, 1, src.subscribes)
}

func TestHubPerEdgeDemand(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 4)

	slow := streamtest.NewRecorder[int](stream.Max(1))
	fast := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(fast)
	hub.Attach(slow)

	src.send(1, 2, 3)
	assert.Equal(t, []int{1, 2, 3}, fast.Values())
	assert.Equal(t, []int{1}, slow.Values())

	slow.Request(stream.Max(1))
	assert.Equal(t, []int{1, 2}, slow.Values())

	slow.Request(stream.Unlimited)
	assert.Equal(t, []int{1, 2, 3}, slow.Values())
}

func TestHubBacklogOverflowDropsOldest(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 2)

	idle := streamtest.NewRecorder[int](stream.None)
	hub.Attach(idle)
	src.send(1, 2, 3, 4)

	idle.Request(stream.Unlimited)
	assert.Equal(t, []int{3, 4}, idle.Values())
}

func TestHubZeroCapacity(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 0)

	rec := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(rec)
	src.send(1, 2)

	late := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(late)
	assert.Empty(t, late.Values())

	src.send(3)
	assert.Equal(t, []int{1, 2, 3}, rec.Values())
	assert.Equal(t, []int{3}, late.Values())
}

func TestHubNegativeCapacityPanics(t *testing.T) {
	require.Panics(t, func() {
		broadcast.New[int](new(source), -1)
	})
}

func TestHubCompletion(t *testing.T) {
	t.Run("finished reaches every edge once", func(t *testing.T) {
		src := new(source)
		hub := broadcast.New[int](src, 2)
		a := streamtest.NewRecorder[int](stream.Unlimited)
		b := streamtest.NewRecorder[int](stream.Unlimited)
		hub.Attach(a)
		hub.Attach(b)

		src.send(1)
		src.finish(stream.Finished)
		src.send(2)

		for _, rec := range []*streamtest.Recorder[int]{a, b} {
			assert.Equal(t, []int{1}, rec.Values())
			assert.Equal(t, 1, rec.Completions())
		}
		assert.Equal(t, 0, hub.Edges())
	})

	t.Run("failure is forwarded verbatim", func(t *testing.T) {
		errBoom := errors.New("boom")
		src := new(source)
		hub := broadcast.New[int](src, 2)
		rec := streamtest.NewRecorder[int](stream.Unlimited)
		hub.Attach(rec)

		src.finish(stream.Failure(errBoom))
		c, done := rec.Completion()
		require.True(t, done)
		assert.Same(t, errBoom, c.Err())
	})

	t.Run("attach after completion completes at once", func(t *testing.T) {
		src := new(source)
		hub := broadcast.New[int](src, 2)
		hub.Attach(streamtest.NewRecorder[int](stream.Unlimited))
		src.send(1, 2)
		src.finish(stream.Finished)

		late := streamtest.NewRecorder[int](stream.Unlimited)
		hub.Attach(late)
		assert.Empty(t, late.Values())
		assert.Equal(t, 1, late.Subscriptions())
		c, done := late.Completion()
		require.True(t, done)
		assert.Equal(t, stream.Finished, c)
		assert.Equal(t, 1, src.subscribes)
	})

	t.Run("undelivered backlog is discarded", func(t *testing.T) {
		src := new(source)
		hub := broadcast.New[int](src, 4)
		rec := streamtest.NewRecorder[int](stream.Max(1))
		hub.Attach(rec)

		src.send(1, 2, 3)
		src.finish(stream.Finished)
		assert.Equal(t, []int{1}, rec.Values())
		assert.Equal(t, 1, rec.Completions())
	})
}

func TestHubCancelDetachesEdge(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 2)

	a := streamtest.NewRecorder[int](stream.Unlimited)
	b := streamtest.NewRecorder[int](stream.Unlimited)
	cancelA := hub.Attach(a)
	hub.Attach(b)
	require.Equal(t, 2, hub.Edges())

	src.send(1)
	cancelA.Cancel()
	cancelA.Cancel()
	require.Equal(t, 1, hub.Edges())
	src.send(2)

	assert.Equal(t, []int{1}, a.Values())
	assert.Equal(t, []int{1, 2}, b.Values())
	assert.Equal(t, 0, a.Completions())

	// The last edge leaving does not cancel the upstream.
	b.Cancel()
	assert.Equal(t, 0, hub.Edges())
	assert.False(t, src.cancelled)
}

func TestHubDisconnect(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 2)
	rec := streamtest.NewRecorder[int](stream.Unlimited)
	hub.Attach(rec)

	src.send(1)
	hub.Disconnect()
	hub.Disconnect()

	assert.True(t, src.cancelled)
	assert.Equal(t, 1, rec.Completions())
	c, ok := hub.Completion()
	require.True(t, ok)
	assert.Equal(t, stream.Finished, c)
}

// attacher attaches another recorder to the hub from inside its first OnNext.
type attacher struct {
	*streamtest.Recorder[int]
	hub    *broadcast.Hub[int]
	nested *streamtest.Recorder[int]
	once   sync.Once
}

func (a *attacher) OnNext(v int) stream.Demand {
	d := a.Recorder.OnNext(v)
	a.once.Do(func() {
		a.hub.Attach(a.nested)
	})
	return d
}

func TestHubReentrantAttach(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 1)
	a := &attacher{
		Recorder: streamtest.NewRecorder[int](stream.Unlimited),
		hub:      hub,
		nested:   streamtest.NewRecorder[int](stream.Unlimited),
	}
	hub.Attach(a)

	src.send(1, 2)
	assert.Equal(t, []int{1, 2}, a.Values())
	// The nested edge saw the replayed 1 and then the live 2.
	assert.Equal(t, []int{1, 2}, a.nested.Values())
}

// requester asks for one more value from inside every OnNext.
type requester struct {
	*streamtest.Recorder[int]
}

func (r requester) OnNext(v int) stream.Demand {
	r.Recorder.OnNext(v)
	r.Request(stream.Max(1))
	return stream.None
}

func TestHubReentrantRequest(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 4)
	idle := streamtest.NewRecorder[int](stream.None)
	hub.Attach(idle)
	src.send(1, 2, 3)

	rec := requester{streamtest.NewRecorder[int](stream.Max(1))}
	hub.Attach(rec)
	assert.Equal(t, []int{1, 2, 3}, rec.Values())
}

func TestHubNeverOverDelivers(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 16)

	recs := make([]*streamtest.Recorder[int], 4)
	for i := range recs {
		recs[i] = streamtest.NewRecorder[int](stream.Max(uint64(i)))
		hub.Attach(recs[i])
	}
	src.send(1, 2, 3, 4, 5)

	for i, rec := range recs {
		assert.Len(t, rec.Values(), i)
	}
}

func TestHubConcurrentRequests(t *testing.T) {
	src := new(source)
	hub := broadcast.New[int](src, 64)
	rec := streamtest.NewRecorder[int](stream.None)
	hub.Attach(rec)

	values := make([]int, 64)
	for i := range values {
		values[i] = i
	}
	src.send(values...)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 8 {
				rec.Request(stream.Max(1))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, values, rec.Values())
}

func TestHubMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	src := new(source)
	hub := broadcast.New[int](src, 1, broadcast.WithMetrics(metrics.PrometheusFactory(registry), "test"))

	hub.Attach(streamtest.NewRecorder[int](stream.Unlimited))
	hub.Attach(streamtest.NewRecorder[int](stream.None))
	src.send(1, 2)

	got := gather(t, registry)
	assert.Equal(t, 2.0, got["demandflow_broadcast_edges"])
	assert.Equal(t, 2.0, got["demandflow_broadcast_relayed_total"])
	assert.Equal(t, 2.0, got["demandflow_broadcast_delivered_total"])
	assert.Equal(t, 1.0, got["demandflow_broadcast_dropped_total"])
}

func gather(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[f.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[f.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	return out
}
