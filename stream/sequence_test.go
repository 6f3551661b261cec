package stream_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/stream/streamtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceHonoursDemand(t *testing.T) {
	seq := stream.FromSlice(1, 2, 3, 4, 5)
	rec := streamtest.NewRecorder[int](stream.Max(2))
	seq.Subscribe(rec)

	require.Equal(t, []int{1, 2}, rec.Values())
	_, done := rec.Completion()
	require.False(t, done)

	rec.Request(stream.Max(2))
	require.Equal(t, []int{1, 2, 3, 4}, rec.Values())

	rec.Request(stream.Max(1))
	require.Equal(t, []int{1, 2, 3, 4, 5}, rec.Values())
	c, done := rec.Completion()
	require.True(t, done)
	assert.Equal(t, stream.Finished, c)
}

func TestSequenceDemandFromOnNext(t *testing.T) {
	seq := stream.FromSlice("a", "b", "c")
	rec := streamtest.NewRecorder[string](stream.Max(1))
	rec.PerValue = stream.Max(1)
	seq.Subscribe(rec)

	require.Equal(t, []string{"a", "b", "c"}, rec.Values())
	assert.Equal(t, 1, rec.Completions())
}

type reentrant struct {
	*streamtest.Recorder[int]
}

// OnNext requests synchronously from inside the value handler.
func (r reentrant) OnNext(v int) stream.Demand {
	r.Recorder.OnNext(v)
	r.Request(stream.Max(1))
	return stream.None
}

func TestSequenceReentrantRequest(t *testing.T) {
	rec := reentrant{streamtest.NewRecorder[int](stream.Max(1))}
	stream.FromSlice(1, 2, 3).Subscribe(rec)

	require.Equal(t, []int{1, 2, 3}, rec.Values())
	assert.Equal(t, 1, rec.Completions())
}

func TestSequenceCancel(t *testing.T) {
	rec := streamtest.NewRecorder[int](stream.Max(1))
	stream.FromSlice(1, 2, 3).Subscribe(rec)

	rec.Cancel()
	rec.Request(stream.Unlimited)

	assert.Equal(t, []int{1}, rec.Values())
	assert.Equal(t, 0, rec.Completions())
}

func TestEmptyAndFail(t *testing.T) {
	rec := streamtest.NewRecorder[int](stream.None)
	stream.Empty[int]().Subscribe(rec)
	c, done := rec.Completion()
	require.True(t, done)
	assert.False(t, c.IsFailure())
	assert.Equal(t, 1, rec.Subscriptions())

	errBoom := errors.New("boom")
	rec = streamtest.NewRecorder[int](stream.Unlimited)
	stream.Fail[int](errBoom).Subscribe(rec)
	c, done = rec.Completion()
	require.True(t, done)
	require.ErrorIs(t, c.Err(), errBoom)
	assert.Empty(t, rec.Values())
}

func TestJust(t *testing.T) {
	var got []int
	var completion stream.Completion
	stream.SinkTo[int](stream.Just(42), func(v int) { got = append(got, v) }, func(c stream.Completion) { completion = c })

	assert.Equal(t, []int{42}, got)
	assert.Equal(t, stream.Finished, completion)
}
