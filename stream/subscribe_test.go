package stream_test

import (
	"testing"

	"github.com/NethermindEth/demandflow/mocks"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/stream/streamtest"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

// deferred hands out its subscription only when release is called.
type deferred struct {
	sub  stream.Subscription
	subs []stream.Subscriber[int]
}

func (d *deferred) Subscribe(s stream.Subscriber[int]) {
	d.subs = append(d.subs, s)
}

func (d *deferred) release() {
	for _, s := range d.subs {
		s.OnSubscribe(d.sub)
	}
}

func TestSubscribeCancelBeforeSubscription(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	sub.EXPECT().Cancel().Times(1)

	pub := &deferred{sub: sub}
	rec := streamtest.NewRecorder[int](stream.Unlimited)
	cancel := stream.Subscribe[int](pub, rec)

	cancel.Cancel()
	cancel.Cancel()
	pub.release()

	// The inner subscriber never sees a cancelled subscription.
	assert.Equal(t, 0, rec.Subscriptions())
}

func TestSubscribeCancelAfterSubscription(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	gomock.InOrder(
		sub.EXPECT().Request(stream.Unlimited),
		sub.EXPECT().Cancel().Times(1),
	)

	pub := &deferred{sub: sub}
	rec := streamtest.NewRecorder[int](stream.Unlimited)
	cancel := stream.Subscribe[int](pub, rec)
	pub.release()

	cancel.Cancel()
	cancel.Cancel()
	assert.Equal(t, 1, rec.Subscriptions())
}

func TestSinkCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	sub := mocks.NewMockSubscription(ctrl)
	sub.EXPECT().Request(stream.Unlimited)
	sub.EXPECT().Cancel().Times(1)

	sink := stream.NewSink[int](nil, nil)
	sink.OnSubscribe(sub)
	sink.Cancel()
	sink.Cancel()
}
