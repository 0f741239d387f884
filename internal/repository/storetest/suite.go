// Package storetest holds behaviour tests shared by every AuctionDB
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) repository.AuctionDB

// Base is the reference time used by the suite
var Base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// NewAuction builds an auction owned by sellerID starting at startingPrice
func NewAuction(sellerID string, startingPrice int64, start, end time.Time, status model.Status) model.Auction {
	price := decimal.NewFromInt(startingPrice)
	return model.Auction{
		ID:            utils.GenerateID(),
		Title:         "Vintage camera",
		Description:   "Working rangefinder with leather case",
		StartingPrice: price,
		CurrentPrice:  price,
		StartTime:     start,
		EndTime:       end,
		SellerID:      sellerID,
		Images:        []model.Image{},
		Status:        status,
		CreatedAt:     Base,
		UpdatedAt:     Base,
	}
}

// NewBid builds a bid for auctionID
func NewBid(auctionID, bidderID string, amount int64, at time.Time) model.Bid {
	return model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: at,
	}
}

// Run executes the whole suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("auction_crud", func(t *testing.T) { testAuctionCRUD(t, newStore(t)) })
	t.Run("list_filters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("details_guards", func(t *testing.T) { testDetailsGuards(t, newStore(t)) })
	t.Run("append_images", func(t *testing.T) { testAppendImages(t, newStore(t)) })
	t.Run("commit_bid", func(t *testing.T) { testCommitBid(t, newStore(t)) })
	t.Run("commit_bid_ended", func(t *testing.T) { testCommitBidEnded(t, newStore(t)) })
	t.Run("commit_bid_stamp", func(t *testing.T) { testCommitBidStamp(t, newStore(t)) })
	t.Run("concurrent_commits", func(t *testing.T) { testConcurrentCommits(t, newStore(t)) })
	t.Run("transition_status", func(t *testing.T) { testTransitionStatus(t, newStore(t)) })
	t.Run("stale_auctions", func(t *testing.T) { testStaleAuctions(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func testAuctionCRUD(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 1000, Base, Base.Add(24*time.Hour), model.StatusActive)
	a.Images = []model.Image{{URL: "/uploads/a.png", StorageKey: "a.png"}}
	require.NoError(t, store.CreateAuction(ctx, a))

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Title, got.Title)
	require.True(t, a.StartingPrice.Equal(got.StartingPrice))
	require.True(t, a.CurrentPrice.Equal(got.CurrentPrice))
	require.True(t, a.EndTime.Equal(got.EndTime))
	require.Nil(t, got.HighestBidderID)
	require.Equal(t, a.Images, got.Images)

	a.Title = "Rangefinder camera"
	a.EndTime = Base.Add(48 * time.Hour)
	a.Images = nil
	a.CurrentPrice = decimal.NewFromInt(999999)
	ok, err := store.UpdateAuctionDetails(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Rangefinder camera", got.Title)
	require.True(t, a.EndTime.Equal(got.EndTime))
	require.Len(t, got.Images, 1, "details update must not touch images")
	require.True(t, decimal.NewFromInt(1000).Equal(got.CurrentPrice), "details update must not touch price")

	require.NoError(t, store.DeleteAuction(ctx, a.ID))
	_, err = store.GetAuction(ctx, a.ID)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
	require.ErrorIs(t, store.DeleteAuction(ctx, a.ID), biddingerrors.ErrNotFound)
	_, err = store.UpdateAuctionDetails(ctx, a)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func testDetailsGuards(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()

	upcoming := NewAuction("seller-1", 100, Base.Add(time.Hour), Base.Add(3*time.Hour), model.StatusUpcoming)
	active := NewAuction("seller-1", 100, Base, Base.Add(3*time.Hour), model.StatusActive)
	bid := NewAuction("seller-1", 100, Base.Add(time.Hour), Base.Add(3*time.Hour), model.StatusUpcoming)
	ended := NewAuction("seller-1", 100, Base, Base.Add(time.Hour), model.StatusEnded)
	for _, a := range []model.Auction{upcoming, active, bid, ended} {
		require.NoError(t, store.CreateAuction(ctx, a))
	}
	// a bid recorded while still upcoming pins the start time
	_, committed, err := store.CommitBid(ctx, NewBid(bid.ID, "bidder-1", 150, Base))
	require.NoError(t, err)
	require.True(t, committed)

	tests := []struct {
		name    string
		auction model.Auction
		mutate  func(a *model.Auction)
		want    bool
	}{
		{
			name:    "upcoming start moves",
			auction: upcoming,
			mutate:  func(a *model.Auction) { a.StartTime = Base.Add(2 * time.Hour) },
			want:    true,
		},
		{
			name:    "active title edit",
			auction: active,
			mutate:  func(a *model.Auction) { a.Title = "Rangefinder" },
			want:    true,
		},
		{
			name:    "active start move",
			auction: active,
			mutate:  func(a *model.Auction) { a.StartTime = Base.Add(time.Minute) },
			want:    false,
		},
		{
			name:    "start move after a bid",
			auction: bid,
			mutate:  func(a *model.Auction) { a.StartTime = Base.Add(2 * time.Hour) },
			want:    false,
		},
		{
			name:    "ended auction",
			auction: ended,
			mutate:  func(a *model.Auction) { a.Title = "Too late" },
			want:    false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before, err := store.GetAuction(ctx, tc.auction.ID)
			require.NoError(t, err)

			changed := before
			tc.mutate(&changed)
			ok, err := store.UpdateAuctionDetails(ctx, changed)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)

			after, err := store.GetAuction(ctx, tc.auction.ID)
			require.NoError(t, err)
			if tc.want {
				require.Equal(t, changed.Title, after.Title)
				require.True(t, changed.StartTime.Equal(after.StartTime))
				return
			}
			require.Equal(t, before.Title, after.Title)
			require.True(t, before.StartTime.Equal(after.StartTime))
		})
	}
}

func testAppendImages(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 100, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	batch := func(prefix string, n int) []model.Image {
		out := make([]model.Image, 0, n)
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("%s-%d.png", prefix, i)
			out = append(out, model.Image{URL: "/uploads/" + key, StorageKey: key})
		}
		return out
	}

	first := batch("a", 3)
	got, ok, err := store.AppendImages(ctx, a.ID, first, 5, Base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, got.Images)

	got, ok, err = store.AppendImages(ctx, a.ID, batch("b", 3), 5, Base.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "six images exceed the limit")
	require.Empty(t, got.Images)

	second := batch("c", 2)
	got, ok, err = store.AppendImages(ctx, a.ID, second, 5, Base.Add(3*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, append(append([]model.Image{}, first...), second...), got.Images)

	stored, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Images, 5)

	_, _, err = store.AppendImages(ctx, "missing", batch("d", 1), 5, Base)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func testListFilters(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	late := NewAuction("seller-1", 10, Base.Add(2*time.Hour), Base.Add(5*time.Hour), model.StatusUpcoming)
	late.Title = "Oak desk"
	early := NewAuction("seller-2", 10, Base, Base.Add(5*time.Hour), model.StatusActive)
	early.Description = "Solid OAK chair"
	other := NewAuction("seller-2", 10, Base.Add(time.Hour), Base.Add(5*time.Hour), model.StatusActive)
	for _, a := range []model.Auction{late, early, other} {
		require.NoError(t, store.CreateAuction(ctx, a))
	}

	all, err := store.ListAuctions(ctx, model.AuctionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{early.ID, other.ID, late.ID}, ids(all))

	byKeyword, err := store.ListAuctions(ctx, model.AuctionFilter{Keyword: "oak"})
	require.NoError(t, err)
	require.Equal(t, []string{early.ID, late.ID}, ids(byKeyword))

	byStatus, err := store.ListAuctions(ctx, model.AuctionFilter{Status: model.StatusActive, SellerID: "seller-2"})
	require.NoError(t, err)
	require.Equal(t, []string{early.ID, other.ID}, ids(byStatus))

	none, err := store.ListAuctions(ctx, model.AuctionFilter{Keyword: "piano"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func testCommitBid(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 1000, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	_, ok, err := store.CommitBid(ctx, NewBid(a.ID, "bidder-1", 1000, Base.Add(time.Minute)))
	require.NoError(t, err)
	require.False(t, ok, "equal to current price must not commit")

	first := NewBid(a.ID, "bidder-1", 1050, Base.Add(2*time.Minute))
	committed, ok, err := store.CommitBid(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.BidID, committed.BidID)
	require.True(t, first.CreatedAt.Equal(committed.CreatedAt))

	second := NewBid(a.ID, "bidder-2", 1100, Base.Add(3*time.Minute))
	_, ok, err = store.CommitBid(ctx, second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.CommitBid(ctx, NewBid(a.ID, "bidder-1", 1075, Base.Add(4*time.Minute)))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(1100).Equal(got.CurrentPrice))
	require.NotNil(t, got.HighestBidderID)
	require.Equal(t, "bidder-2", *got.HighestBidderID)

	bids, err := store.ListBidsByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, second.BidID, bids[0].BidID, "newest first")
	require.Equal(t, first.BidID, bids[1].BidID)

	highest, err := store.GetHighestBid(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, second.BidID, highest.BidID)

	won, err := store.ListAuctionsByBidder(ctx, "bidder-1")
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, ids(won))

	_, err = store.GetHighestBid(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)

	_, _, err = store.CommitBid(ctx, NewBid("missing", "bidder-1", 5, Base))
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func testCommitBidEnded(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 100, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	_, ok, err := store.TransitionStatus(ctx, a.ID, model.StatusActive, model.StatusEnded, Base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.CommitBid(ctx, NewBid(a.ID, "bidder-1", 500, Base.Add(30*time.Minute)))
	require.NoError(t, err)
	require.False(t, ok, "an ended auction takes no bids")

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100).Equal(got.CurrentPrice))
	require.Nil(t, got.HighestBidderID)

	bids, err := store.ListBidsByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, bids)
}

func testCommitBidStamp(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 100, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	// the higher bid was stamped earlier but commits second
	_, ok, err := store.CommitBid(ctx, NewBid(a.ID, "bidder-1", 150, Base.Add(2*time.Second)))
	require.NoError(t, err)
	require.True(t, ok)
	late, ok, err := store.CommitBid(ctx, NewBid(a.ID, "bidder-2", 200, Base.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, late.CreatedAt.Before(Base.Add(2*time.Second)), "stamp never precedes the previous bid")

	bids, err := store.ListBidsByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.True(t, bids[0].Amount.GreaterThan(bids[1].Amount))
	require.False(t, bids[0].CreatedAt.Before(bids[1].CreatedAt))
}

func testConcurrentCommits(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 100, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	const bidders = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []int64
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(101 + (i*7)%bidders)
			_, ok, err := store.CommitBid(ctx, NewBid(a.ID, fmt.Sprintf("bidder-%d", i), amount, Base.Add(time.Duration(i)*time.Millisecond)))
			if !assert.NoError(t, err) {
				return
			}
			if ok {
				mu.Lock()
				accepted = append(accepted, amount)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(100+bidders).Equal(got.CurrentPrice))

	bids, err := store.ListBidsByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, len(accepted), "one ledger entry per accepted amount")

	// Oldest first, amounts strictly increase and stamps never go back.
	for i := len(bids) - 1; i > 0; i-- {
		require.True(t, bids[i-1].Amount.GreaterThan(bids[i].Amount))
		require.False(t, bids[i-1].CreatedAt.Before(bids[i].CreatedAt))
	}
}

func testTransitionStatus(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	a := NewAuction("seller-1", 10, Base, Base.Add(time.Hour), model.StatusActive)
	require.NoError(t, store.CreateAuction(ctx, a))

	_, ok, err := store.TransitionStatus(ctx, a.ID, model.StatusUpcoming, model.StatusEnded, Base)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.CommitBid(ctx, NewBid(a.ID, "bidder-1", 25, Base.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, ok)

	ended, ok, err := store.TransitionStatus(ctx, a.ID, model.StatusActive, model.StatusEnded, Base.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID, ended.ID)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.True(t, decimal.NewFromInt(25).Equal(ended.CurrentPrice), "returns the row as written")
	require.NotNil(t, ended.HighestBidderID)
	require.Equal(t, "bidder-1", *ended.HighestBidderID)

	got, err := store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, got.Status)

	_, ok, err = store.TransitionStatus(ctx, a.ID, model.StatusActive, model.StatusEnded, Base.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = store.TransitionStatus(ctx, "missing", model.StatusActive, model.StatusEnded, Base)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func testStaleAuctions(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	now := Base.Add(10 * time.Hour)

	expiredActive := NewAuction("s", 10, Base, now.Add(-time.Minute), model.StatusActive)
	expiredUpcoming := NewAuction("s", 10, Base.Add(time.Hour), now.Add(-time.Minute), model.StatusUpcoming)
	dueUpcoming := NewAuction("s", 10, now.Add(-time.Hour), now.Add(time.Hour), model.StatusUpcoming)
	running := NewAuction("s", 10, Base, now.Add(time.Hour), model.StatusActive)
	future := NewAuction("s", 10, now.Add(time.Hour), now.Add(2*time.Hour), model.StatusUpcoming)
	ended := NewAuction("s", 10, Base, now.Add(-time.Hour), model.StatusEnded)
	for _, a := range []model.Auction{expiredActive, expiredUpcoming, dueUpcoming, running, future, ended} {
		require.NoError(t, store.CreateAuction(ctx, a))
	}

	stale, err := store.ListStaleAuctions(ctx, now)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{expiredActive.ID, expiredUpcoming.ID, dueUpcoming.ID}, ids(stale))
}

func testUsers(t *testing.T, store repository.AuctionDB) {
	ctx := context.Background()
	u := model.User{
		ID:           utils.GenerateID(),
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Role:         model.RoleSeller,
		CreatedAt:    Base,
		UpdatedAt:    Base,
	}
	require.NoError(t, store.CreateUser(ctx, u))

	dup := u
	dup.ID = utils.GenerateID()
	dup.Email = "ADA@example.com"
	require.ErrorIs(t, store.CreateUser(ctx, dup), biddingerrors.ErrEmailTaken)

	got, err := store.GetUserByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, model.RoleSeller, got.Role)
	require.Equal(t, "hash", got.PasswordHash)

	other := model.User{ID: utils.GenerateID(), Name: "Bob", Email: "bob@example.com", PasswordHash: "h", Role: model.RoleBidder, CreatedAt: Base.Add(time.Minute), UpdatedAt: Base}
	require.NoError(t, store.CreateUser(ctx, other))

	other.Email = "ada@example.com"
	require.ErrorIs(t, store.UpdateUser(ctx, other), biddingerrors.ErrEmailTaken)

	other.Email = "robert@example.com"
	other.Name = "Robert"
	require.NoError(t, store.UpdateUser(ctx, other))
	got, err = store.GetUserByID(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "Robert", got.Name)
	require.Equal(t, "robert@example.com", got.Email)

	_, err = store.GetUserByEmail(ctx, "bob@example.com")
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, u.ID, users[0].ID)

	_, err = store.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

func ids(auctions []model.Auction) []string {
	out := make([]string, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, a.ID)
	}
	return out
}
