package timer_test

import (
	"testing"
	"time"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/stream/streamtest"
	"github.com/NethermindEth/demandflow/timer"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = time.Second

func newSource(t *testing.T, maxCount stream.Demand) (*timer.Source, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	src, err := timer.New(timer.Config{Interval: interval, MaxCount: maxCount}, clk, utils.NewNopZapLogger())
	require.NoError(t, err)
	return src, clk
}

// advance moves the clock one interval at a time and waits for the ticker
// goroutine to consume every tick, so that ticks are not lost to the mock
// ticker's non-blocking send.
func advance(t *testing.T, clk *clock.Mock, rec *streamtest.Recorder[time.Time], ticks int, wantLen func(i int) int) {
	t.Helper()
	for i := 1; i <= ticks; i++ {
		clk.Add(interval)
		want := wantLen(i)
		require.Eventually(t, func() bool { return rec.Len() == want }, time.Second, time.Millisecond)
	}
}

func TestTimerBoundedDemand(t *testing.T) {
	src, clk := newSource(t, stream.Max(5))
	rec := streamtest.NewRecorder[time.Time](stream.Max(3))
	src.Subscribe(rec)

	advance(t, clk, rec, 3, func(i int) int { return i })

	// Ticks without demand are skipped, not queued.
	clk.Add(interval)
	clk.Add(interval)
	assert.Equal(t, 3, rec.Len())
	_, done := rec.Completion()
	assert.False(t, done)

	rec.Request(stream.Max(1))
	advance(t, clk, rec, 1, func(int) int { return 4 })
}

func TestTimerDemandEqualToMaxCount(t *testing.T) {
	src, clk := newSource(t, stream.Max(3))
	rec := streamtest.NewRecorder[time.Time](stream.Max(3))
	src.Subscribe(rec)

	advance(t, clk, rec, 3, func(i int) int { return i })
	require.Eventually(t, func() bool { return rec.Completions() == 1 }, time.Second, time.Millisecond)
}

func TestTimerUnlimitedDemand(t *testing.T) {
	src, clk := newSource(t, stream.Max(4))
	rec := streamtest.NewRecorder[time.Time](stream.Unlimited)
	src.Subscribe(rec)

	advance(t, clk, rec, 4, func(i int) int { return i })
	<-rec.Done()
	c, _ := rec.Completion()
	assert.Equal(t, stream.Finished, c)

	clk.Add(interval)
	assert.Equal(t, 4, rec.Len())
	assert.Equal(t, 1, rec.Completions())

	values := rec.Values()
	for i := 1; i < len(values); i++ {
		assert.Equal(t, interval, values[i].Sub(values[i-1]))
	}
}

func TestTimerZeroMaxCountCompletesOnRequest(t *testing.T) {
	src, _ := newSource(t, stream.None)
	rec := streamtest.NewRecorder[time.Time](stream.Max(1))
	src.Subscribe(rec)

	assert.Equal(t, 1, rec.Completions())
	assert.Empty(t, rec.Values())
}

func TestTimerCancel(t *testing.T) {
	src, clk := newSource(t, stream.Unlimited)
	rec := streamtest.NewRecorder[time.Time](stream.Unlimited)
	src.Subscribe(rec)

	advance(t, clk, rec, 2, func(i int) int { return i })
	rec.Cancel()
	rec.Cancel()

	clk.Add(interval)
	clk.Add(interval)
	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, 0, rec.Completions())

	rec.Request(stream.Max(1))
	clk.Add(interval)
	assert.Equal(t, 2, rec.Len())
}

func TestTimerIndependentSubscriptions(t *testing.T) {
	src, clk := newSource(t, stream.Max(2))
	first := streamtest.NewRecorder[time.Time](stream.Unlimited)
	src.Subscribe(first)
	advance(t, clk, first, 2, func(i int) int { return i })

	second := streamtest.NewRecorder[time.Time](stream.Unlimited)
	src.Subscribe(second)
	advance(t, clk, second, 2, func(i int) int { return i })

	assert.Equal(t, 1, first.Completions())
	require.Eventually(t, func() bool { return second.Completions() == 1 }, time.Second, time.Millisecond)
}

func TestTimerConfigValidation(t *testing.T) {
	tests := map[string]timer.Config{
		"zero interval":    {Interval: 0, MaxCount: stream.Max(1)},
		"negative leeway":  {Interval: time.Second, Leeway: -time.Millisecond},
		"leeway too large": {Interval: time.Second, Leeway: 2 * time.Second},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := timer.New(cfg, clock.NewMock(), utils.NewNopZapLogger())
			require.Error(t, err)
		})
	}

	_, err := timer.New(timer.Config{Interval: time.Second, Leeway: time.Second}, clock.NewMock(), utils.NewNopZapLogger())
	require.NoError(t, err)
}
