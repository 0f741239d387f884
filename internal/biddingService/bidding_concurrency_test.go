package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
	"auction-house/internal/repository/storetest"
	"auction-house/internal/sweeper"
)

func setupLive(t *testing.T, startingPrice int64) (*BiddingService, *repository.MemoryRepo, *notify.Hub, *clock.Manual, model.Auction) {
	t.Helper()

	repo := repository.NewMemoryRepo()
	hub := notify.NewHubWithBuffer(1024)
	clk := clock.NewManual(now)
	a := storetest.NewAuction("seller1", startingPrice, now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)
	require.NoError(t, repo.CreateAuction(context.Background(), a))
	return NewBiddingService(repo, repo, hub, clk), repo, hub, clk, a
}

func TestPlaceBid_ConcurrentBiddersHighestWins(t *testing.T) {
	t.Parallel()

	svc, repo, hub, _, a := setupLive(t, 100)
	events := hub.Subscribe(notify.AuctionChannel(a.ID))

	const bidders = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []decimal.Decimal
		rejected []error
		start    = make(chan struct{})
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			amount := decimal.NewFromInt(int64(101 + (i*13)%bidders))
			bid, err := svc.PlaceBid(context.Background(), a.ID, fmt.Sprintf("bidder-%d", i), amount)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected = append(rejected, err)
				return
			}
			accepted = append(accepted, bid.Amount)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range rejected {
		require.True(t,
			errors.Is(err, biddingerrors.ErrBidTooLow) || errors.Is(err, biddingerrors.ErrConcurrentBidConflict),
			"unexpected rejection: %v", err)
	}

	got, err := repo.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)

	maxAccepted := decimal.Zero
	for _, amt := range accepted {
		maxAccepted = decimal.Max(maxAccepted, amt)
	}
	require.True(t, maxAccepted.Equal(got.CurrentPrice))
	require.True(t, decimal.NewFromInt(100+bidders).Equal(got.CurrentPrice), "the highest amount always ends up winning")

	bids, err := repo.ListBidsByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, len(accepted))
	for i := len(bids) - 1; i > 0; i-- {
		require.True(t, bids[i-1].Amount.GreaterThan(bids[i].Amount), "accepted amounts must strictly increase")
		require.False(t, bids[i-1].CreatedAt.Before(bids[i].CreatedAt), "stamps follow the ledger order")
	}
	require.Equal(t, *got.HighestBidderID, bids[0].BidderID)
	require.Len(t, events.Events(), len(accepted), "one newBid event per accepted bid")
}

// Two bidders race: 1050 and 1100 on a 1000 auction
func TestPlaceBid_TwoBidderRace(t *testing.T) {
	t.Parallel()

	for round := 0; round < 50; round++ {
		svc, repo, _, _, a := setupLive(t, 1000)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		amounts := []int64{1050, 1100}
		for i := range amounts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.PlaceBid(context.Background(), a.ID, fmt.Sprintf("bidder-%d", i), decimal.NewFromInt(amounts[i]))
			}(i)
		}
		wg.Wait()

		got, err := repo.GetAuction(context.Background(), a.ID)
		require.NoError(t, err)
		require.True(t, decimal.NewFromInt(1100).Equal(got.CurrentPrice))
		require.NoError(t, errs[1], "the higher bid always succeeds")

		bids, err := repo.ListBidsByAuction(context.Background(), a.ID)
		require.NoError(t, err)
		if errs[0] == nil {
			// 1050 committed first, then 1100 overtook it
			require.Len(t, bids, 2)
		} else {
			require.True(t, errors.Is(errs[0], biddingerrors.ErrBidTooLow) || errors.Is(errs[0], biddingerrors.ErrConcurrentBidConflict))
			require.Len(t, bids, 1)
		}
	}
}

func TestPlaceBid_ExpiredAuctionIsCorrected(t *testing.T) {
	t.Parallel()

	svc, repo, hub, clk, a := setupLive(t, 1000)
	events := hub.Subscribe(notify.AuctionChannel(a.ID))
	seller := hub.Subscribe(notify.UserChannel(a.SellerID))
	clk.Set(a.EndTime.Add(time.Second))

	_, err := svc.PlaceBid(context.Background(), a.ID, "bidder-1", decimal.NewFromInt(2000))
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)

	got, err := repo.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, got.Status)
	require.True(t, decimal.NewFromInt(1000).Equal(got.CurrentPrice))
	require.Nil(t, got.HighestBidderID)
	require.Empty(t, events.Events())

	require.Len(t, seller.Events(), 1)
	evt := <-seller.Events()
	require.Equal(t, model.EventAuctionEnded, evt.Type)
	require.Empty(t, evt.HighestBidderID)
}

func TestPlaceBid_LateBidEndsAuctionAndNotifiesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, repo, hub, clk, a := setupLive(t, 1000)
	_, err := svc.PlaceBid(ctx, a.ID, "bidder-1", decimal.NewFromInt(1200))
	require.NoError(t, err)

	winner := hub.Subscribe(notify.UserChannel("bidder-1"))
	seller := hub.Subscribe(notify.UserChannel(a.SellerID))
	clk.Set(a.EndTime.Add(time.Second))

	_, err = svc.PlaceBid(ctx, a.ID, "bidder-2", decimal.NewFromInt(5000))
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)

	for _, sub := range []*notify.Subscription{winner, seller} {
		require.Len(t, sub.Events(), 1, "auctionEnded on %s", sub.Channel())
		evt := <-sub.Events()
		require.Equal(t, model.EventAuctionEnded, evt.Type)
		require.Equal(t, "bidder-1", evt.HighestBidderID)
		require.True(t, decimal.NewFromInt(1200).Equal(evt.CurrentPrice))
	}

	// the sweeper finds the auction already ended and stays quiet
	report, err := sweeper.New(repo, hub, clk, time.Minute).SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, sweeper.Report{}, report)
	require.Empty(t, winner.Events())
	require.Empty(t, seller.Events())
}

// interleavedStore runs one extra bid while the outer bid is between its
// read and its commit
type interleavedStore struct {
	repository.AuctionStore
	inner func()
	fired bool
}

func (s *interleavedStore) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	a, err := s.AuctionStore.GetAuction(ctx, id)
	if !s.fired && s.inner != nil {
		s.fired = true
		s.inner()
	}
	return a, err
}

func TestPlaceBid_InterleavedBidsKeepLedgerOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := repository.NewMemoryRepo()
	hub := notify.NewHubWithBuffer(16)
	clk := clock.NewManual(now)
	a := storetest.NewAuction("seller1", 1000, now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)
	require.NoError(t, repo.CreateAuction(ctx, a))

	store := &interleavedStore{AuctionStore: repo}
	svc := NewBiddingService(store, repo, hub, clk)
	events := hub.Subscribe(notify.AuctionChannel(a.ID))

	var innerErr error
	store.inner = func() {
		clk.Advance(time.Second)
		_, innerErr = svc.PlaceBid(ctx, a.ID, "bidder-inner", decimal.NewFromInt(1200))
	}

	outer, err := svc.PlaceBid(ctx, a.ID, "bidder-outer", decimal.NewFromInt(1500))
	require.NoError(t, err)
	require.NoError(t, innerErr)
	require.Equal(t, now.Add(time.Second), outer.CreatedAt, "stamped no earlier than the bid it outbid")

	bids, err := repo.ListBidsByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, "bidder-outer", bids[0].BidderID)
	require.False(t, bids[0].CreatedAt.Before(bids[1].CreatedAt))
	require.True(t, bids[0].Amount.GreaterThan(bids[1].Amount))

	require.Len(t, events.Events(), 2)
	<-events.Events()
	last := <-events.Events()
	require.Equal(t, "bidder-outer", last.HighestBidderID)
	require.Equal(t, outer.CreatedAt, last.At)
}

func TestPlaceBid_SelfBidRejectedRegardlessOfAmount(t *testing.T) {
	t.Parallel()

	svc, repo, _, _, a := setupLive(t, 1000)
	for _, amount := range []int64{1, 1000, 1001, 999_999_999} {
		_, err := svc.PlaceBid(context.Background(), a.ID, a.SellerID, decimal.NewFromInt(amount))
		require.ErrorIs(t, err, biddingerrors.ErrSelfBidForbidden)
	}

	bids, err := repo.ListBidsByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Empty(t, bids)
}

func TestPlaceBid_SequentialBidsRaisePrice(t *testing.T) {
	t.Parallel()

	svc, repo, _, clk, a := setupLive(t, 1000)

	_, err := svc.PlaceBid(context.Background(), a.ID, "bidder-1", decimal.NewFromInt(1050))
	require.NoError(t, err)
	clk.Advance(time.Second)

	_, err = svc.PlaceBid(context.Background(), a.ID, "bidder-2", decimal.NewFromInt(1050))
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)

	_, err = svc.PlaceBid(context.Background(), a.ID, "bidder-2", decimal.RequireFromString("1050.01"))
	require.NoError(t, err)

	got, err := repo.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, "bidder-2", *got.HighestBidderID)
	require.Equal(t, "1050.01", got.CurrentPrice.StringFixed(2))
	require.True(t, got.CurrentPrice.GreaterThanOrEqual(got.StartingPrice))
}
