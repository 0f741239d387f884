package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	model "auction-house/internal/models"
)

func newBidEvent(auctionID string, price int64) model.Event {
	return model.Event{
		Type:            model.EventNewBid,
		AuctionID:       auctionID,
		CurrentPrice:    decimal.NewFromInt(price),
		HighestBidderID: "bidder-1",
		At:              time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHub_PublishReachesOnlyChannelSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a1 := hub.Subscribe(AuctionChannel("a1"))
	a1Again := hub.Subscribe(AuctionChannel("a1"))
	a2 := hub.Subscribe(AuctionChannel("a2"))
	user := hub.Subscribe(UserChannel("a1"))

	hub.Publish(AuctionChannel("a1"), newBidEvent("a1", 1050))

	for _, sub := range []*Subscription{a1, a1Again} {
		select {
		case evt := <-sub.Events():
			require.Equal(t, model.EventNewBid, evt.Type)
			require.True(t, decimal.NewFromInt(1050).Equal(evt.CurrentPrice))
		default:
			t.Fatalf("subscriber on %s received nothing", sub.Channel())
		}
	}
	require.Empty(t, a2.Events())
	require.Empty(t, user.Events())
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	require.NotPanics(t, func() { hub.Publish(UserChannel("nobody"), newBidEvent("x", 1)) })
	require.Zero(t, hub.Dropped())
}

func TestHub_UnsubscribeClosesAndStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe(AuctionChannel("a1"))
	require.Equal(t, 1, hub.Subscribers(AuctionChannel("a1")))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)
	require.Equal(t, 0, hub.Subscribers(AuctionChannel("a1")))

	hub.Publish(AuctionChannel("a1"), newBidEvent("a1", 1))
	_, open := <-sub.Events()
	require.False(t, open)
}

// A slow subscriber loses events instead of blocking the publisher
func TestHub_FullQueueDropsEvents(t *testing.T) {
	t.Parallel()

	hub := NewHubWithBuffer(2)
	slow := hub.Subscribe(AuctionChannel("a1"))

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			hub.Publish(AuctionChannel("a1"), newBidEvent("a1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Len(t, slow.Events(), 2)
	require.Equal(t, uint64(3), hub.Dropped())
	first := <-slow.Events()
	require.True(t, decimal.NewFromInt(1).Equal(first.CurrentPrice))
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	t.Parallel()

	hub := NewHubWithBuffer(1000)
	var wg sync.WaitGroup
	subs := make(chan *Subscription, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subs <- hub.Subscribe(AuctionChannel("hot"))
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Publish(AuctionChannel("hot"), newBidEvent("hot", int64(i)))
		}(i)
	}
	wg.Wait()
	close(subs)

	for sub := range subs {
		require.LessOrEqual(t, len(sub.Events()), 20)
		hub.Unsubscribe(sub)
	}
	require.Equal(t, 0, hub.Subscribers(AuctionChannel("hot")))
}

func TestChannelNames(t *testing.T) {
	require.Equal(t, "auction:42", AuctionChannel("42"))
	require.Equal(t, "user:42", UserChannel("42"))
	require.NotEqual(t, AuctionChannel("42"), UserChannel("42"))
}
