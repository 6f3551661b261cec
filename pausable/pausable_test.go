package pausable_test

import (
	"testing"

	"github.com/NethermindEth/demandflow/mocks"
	"github.com/NethermindEth/demandflow/pausable"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPausableOddValues(t *testing.T) {
	var got []int
	var completions int
	p := pausable.Sink[int](stream.FromSlice(1, 2, 3, 4), func(v int) bool {
		got = append(got, v)
		return v%2 == 0
	}, func(stream.Completion) { completions++ })

	require.Equal(t, []int{1}, got)
	require.True(t, p.Paused())

	p.Resume()
	require.Equal(t, []int{1, 2, 3}, got)
	require.True(t, p.Paused())

	p.Resume()
	require.Equal(t, []int{1, 2, 3, 4}, got)
	assert.False(t, p.Paused())
	assert.Equal(t, 1, completions)
}

func TestPausableResumeWhileRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	sub.EXPECT().Request(stream.Max(1)).Times(2)

	p := pausable.New[int](func(int) bool { return true }, nil)
	p.OnSubscribe(sub)
	p.Resume()
	assert.Equal(t, stream.None, p.OnNext(1))
}

func TestPausableKeepsOneInFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	gomock.InOrder(
		sub.EXPECT().Request(stream.Max(1)),
		sub.EXPECT().Request(stream.Max(1)),
		sub.EXPECT().Request(stream.Max(1)),
	)

	p := pausable.New[string](func(v string) bool { return v != "stop" }, nil)
	p.OnSubscribe(sub)
	p.OnNext("a")
	p.OnNext("stop")
	require.True(t, p.Paused())
	p.Resume()
	p.Resume()
	assert.False(t, p.Paused())
}

func TestPausableCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	sub.EXPECT().Request(stream.Max(1))
	sub.EXPECT().Cancel().Times(1)

	p := pausable.New[int](func(int) bool { return false }, nil)
	p.OnSubscribe(sub)
	p.OnNext(1)
	p.Cancel()
	p.Cancel()
	p.Resume()
}

func TestPausableRejectsSecondSubscription(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockSubscription(ctrl)
	first.EXPECT().Request(stream.Max(1))
	second := mocks.NewMockSubscription(ctrl)
	second.EXPECT().Cancel()

	p := pausable.New[int](func(int) bool { return true }, nil)
	p.OnSubscribe(first)
	p.OnSubscribe(second)
}
