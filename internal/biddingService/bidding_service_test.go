package bidding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func activeAuction(price int64) model.Auction {
	return model.Auction{
		ID:            "auction1",
		Title:         "MacBook Pro 2021",
		StartingPrice: decimal.NewFromInt(1000),
		CurrentPrice:  decimal.NewFromInt(price),
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		SellerID:      "seller1",
		Status:        model.StatusActive,
	}
}

// accept echoes the bid back as committed
func accept(_ context.Context, bid model.Bid) (model.Bid, bool, error) {
	return bid, true, nil
}

type mocks struct {
	auctions *repository.MockAuctionStore
	ledger   *repository.MockBidLedger
	notifier *notify.MockPublisher
}

func newTestService(t *testing.T) (*BiddingService, mocks) {
	ctrl := gomock.NewController(t)
	m := mocks{
		auctions: repository.NewMockAuctionStore(ctrl),
		ledger:   repository.NewMockBidLedger(ctrl),
		notifier: notify.NewMockPublisher(ctrl),
	}
	return NewBiddingService(m.auctions, m.ledger, m.notifier, clock.NewManual(now)), m
}

// Tests PlaceBid
func TestBiddingService_PlaceBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		auctionID     string
		bidderID      string
		amount        decimal.Decimal
		mockSetup     func(m mocks)
		expectedError error
	}{
		{
			name:      "valid_bid",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1050),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).DoAndReturn(accept)
				m.notifier.EXPECT().Publish(notify.AuctionChannel("auction1"), gomock.Any())
			},
		},
		{
			name:          "zero_amount",
			auctionID:     "auction1",
			bidderID:      "bidder1",
			amount:        decimal.Zero,
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:          "negative_amount",
			auctionID:     "auction1",
			bidderID:      "bidder1",
			amount:        decimal.NewFromInt(-50),
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:          "sub_cent_amount",
			auctionID:     "auction1",
			bidderID:      "bidder1",
			amount:        decimal.RequireFromString("1050.001"),
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrInvalidAmount,
		},
		{
			name:          "empty_auctionID",
			auctionID:     "",
			bidderID:      "bidder1",
			amount:        decimal.NewFromInt(10),
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrValidation,
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(10),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrNotFound)
			},
			expectedError: biddingerrors.ErrNotFound,
		},
		{
			name:      "self_bid_any_amount",
			auctionID: "auction1",
			bidderID:  "seller1",
			amount:    decimal.NewFromInt(1_000_000),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
			},
			expectedError: biddingerrors.ErrSelfBidForbidden,
		},
		{
			name:      "upcoming_auction",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1050),
			mockSetup: func(m mocks) {
				a := activeAuction(1000)
				a.StartTime = now.Add(time.Hour)
				a.EndTime = now.Add(2 * time.Hour)
				a.Status = model.StatusUpcoming
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "expired_but_stored_active_is_corrected",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(5000),
			mockSetup: func(m mocks) {
				a := activeAuction(1000)
				a.EndTime = now.Add(-time.Second)
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
				ended := a
				ended.Status = model.StatusEnded
				m.auctions.EXPECT().TransitionStatus(gomock.Any(), "auction1", model.StatusActive, model.StatusEnded, now).Return(ended, true, nil)
				m.notifier.EXPECT().Publish(notify.UserChannel("seller1"), gomock.Any())
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "stale_upcoming_is_promoted_and_accepts",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1001),
			mockSetup: func(m mocks) {
				a := activeAuction(1000)
				a.Status = model.StatusUpcoming
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
				opened := a
				opened.Status = model.StatusActive
				m.auctions.EXPECT().TransitionStatus(gomock.Any(), "auction1", model.StatusUpcoming, model.StatusActive, now).Return(opened, true, nil)
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).DoAndReturn(accept)
				m.notifier.EXPECT().Publish(notify.AuctionChannel("auction1"), gomock.Any()).Times(2)
			},
		},
		{
			name:      "status_correction_failure_does_not_block_bid",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1001),
			mockSetup: func(m mocks) {
				a := activeAuction(1000)
				a.Status = model.StatusUpcoming
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
				m.auctions.EXPECT().TransitionStatus(gomock.Any(), "auction1", model.StatusUpcoming, model.StatusActive, now).Return(model.Auction{}, false, errors.New("db down"))
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).DoAndReturn(accept)
				m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any())
			},
		},
		{
			name:      "bid_equal_to_current_price",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1000),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
			},
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "lost_race_at_commit",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1050),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).Return(model.Bid{}, false, nil)
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1100), nil)
			},
			expectedError: biddingerrors.ErrConcurrentBidConflict,
		},
		{
			name:      "auction_ended_before_commit",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1050),
			mockSetup: func(m mocks) {
				ended := activeAuction(1000)
				ended.Status = model.StatusEnded
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).Return(model.Bid{}, false, nil)
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(ended, nil)
			},
			expectedError: biddingerrors.ErrAuctionNotActive,
		},
		{
			name:      "store_fails_at_commit",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    decimal.NewFromInt(1050),
			mockSetup: func(m mocks) {
				m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
				m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).Return(model.Bid{}, false, biddingerrors.Persistence("commit", errors.New("connection reset")))
			},
			expectedError: biddingerrors.ErrPersistence,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, m := newTestService(t)
			tc.mockSetup(m)

			bid, err := service.PlaceBid(context.Background(), tc.auctionID, tc.bidderID, tc.amount)

			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				return
			}
			require.NoError(t, err)

			_, parseErr := uuid.Parse(bid.BidID)
			require.NoError(t, parseErr, "BidID should be a valid UUID")
			require.Equal(t, tc.auctionID, bid.AuctionID)
			require.Equal(t, tc.bidderID, bid.BidderID)
			require.True(t, tc.amount.Equal(bid.Amount))
			require.Equal(t, now, bid.CreatedAt)
		})
	}
}

func TestBiddingService_PlaceBid_PublishesNewBidEvent(t *testing.T) {
	t.Parallel()

	service, m := newTestService(t)
	m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(1000), nil)
	m.auctions.EXPECT().CommitBid(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, bid model.Bid) (model.Bid, bool, error) {
		require.Equal(t, "auction1", bid.AuctionID)
		require.True(t, decimal.NewFromInt(1100).Equal(bid.Amount))
		require.Equal(t, now, bid.CreatedAt)
		// the store clamps the stamp to the previous bid
		bid.CreatedAt = now.Add(time.Second)
		return bid, true, nil
	})
	m.notifier.EXPECT().Publish("auction:auction1", gomock.Any()).Do(func(_ string, evt model.Event) {
		require.Equal(t, model.EventNewBid, evt.Type)
		require.Equal(t, "auction1", evt.AuctionID)
		require.Equal(t, "bidder2", evt.HighestBidderID)
		require.True(t, decimal.NewFromInt(1100).Equal(evt.CurrentPrice))
		require.Equal(t, now.Add(time.Second), evt.At)
	})

	bid, err := service.PlaceBid(context.Background(), "auction1", "bidder2", decimal.NewFromInt(1100))
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Second), bid.CreatedAt)
}

func TestBiddingService_PlaceBid_CancelledBeforeCommit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	service, m := newTestService(t)
	m.auctions.EXPECT().GetAuction(gomock.Any(), "auction1").DoAndReturn(func(context.Context, string) (model.Auction, error) {
		cancel()
		return activeAuction(1000), nil
	})

	_, err := service.PlaceBid(ctx, "auction1", "bidder1", decimal.NewFromInt(1200))
	require.ErrorIs(t, err, context.Canceled)
}

// Tests GetBidsForAuction
func TestBiddingService_GetBidsForAuction(t *testing.T) {
	t.Parallel()

	bidsExample := []model.Bid{
		{BidID: "bid2", AuctionID: "auction1", BidderID: "user2", Amount: decimal.NewFromInt(150), CreatedAt: now.Add(time.Second)},
		{BidID: "bid1", AuctionID: "auction1", BidderID: "user1", Amount: decimal.NewFromInt(100), CreatedAt: now},
	}

	tests := []struct {
		name          string
		auctionID     string
		mockSetup     func(m mocks)
		expectedError error
		expectedBids  []model.Bid
	}{
		{
			name:      "auction_with_bids",
			auctionID: "auction1",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().ListBidsByAuction(gomock.Any(), "auction1").Return(bidsExample, nil)
			},
			expectedBids: bidsExample,
		},
		{
			name:      "auction_without_bids",
			auctionID: "auction2",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().ListBidsByAuction(gomock.Any(), "auction2").Return([]model.Bid{}, nil)
			},
			expectedBids: []model.Bid{},
		},
		{
			name:          "empty_auctionID",
			auctionID:     "",
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrValidation,
		},
		{
			name:      "repo_error",
			auctionID: "auction3",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().ListBidsByAuction(gomock.Any(), "auction3").Return(nil, biddingerrors.Persistence("list", errors.New("db failure")))
			},
			expectedError: biddingerrors.ErrPersistence,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, m := newTestService(t)
			tc.mockSetup(m)

			bids, err := service.GetBidsForAuction(context.Background(), tc.auctionID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedBids, bids)
		})
	}
}

// Test GetHighestBid
func TestBiddingService_GetHighestBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		auctionID   string
		mockSetup   func(m mocks)
		expectError error
	}{
		{
			name:      "auction_with_bids",
			auctionID: "auction1",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().GetHighestBid(gomock.Any(), "auction1").Return(model.Bid{
					BidID: uuid.NewString(), AuctionID: "auction1", BidderID: "user1", Amount: decimal.NewFromInt(100), CreatedAt: now,
				}, nil)
			},
		},
		{
			name:        "empty_auctionID",
			auctionID:   "",
			mockSetup:   func(m mocks) {},
			expectError: biddingerrors.ErrValidation,
		},
		{
			name:      "no_bids",
			auctionID: "auction2",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().GetHighestBid(gomock.Any(), "auction2").Return(model.Bid{}, biddingerrors.ErrNotFound)
			},
			expectError: biddingerrors.ErrNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, m := newTestService(t)
			tc.mockSetup(m)

			bid, err := service.GetHighestBid(context.Background(), tc.auctionID)
			if tc.expectError != nil {
				require.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "user1", bid.BidderID)
			require.True(t, decimal.NewFromInt(100).Equal(bid.Amount))
		})
	}
}

// Test GetAuctionsByBidder
func TestBiddingService_GetAuctionsByBidder(t *testing.T) {
	t.Parallel()

	auctions := []model.Auction{activeAuction(1200)}

	tests := []struct {
		name          string
		userID        string
		mockSetup     func(m mocks)
		expectedError error
		expected      []model.Auction
	}{
		{
			name:   "user_with_auctions",
			userID: "user1",
			mockSetup: func(m mocks) {
				m.ledger.EXPECT().ListAuctionsByBidder(gomock.Any(), "user1").Return(auctions, nil)
			},
			expected: auctions,
		},
		{
			name:          "empty_userID",
			userID:        "",
			mockSetup:     func(m mocks) {},
			expectedError: biddingerrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, m := newTestService(t)
			tc.mockSetup(m)

			got, err := service.GetAuctionsByBidder(context.Background(), tc.userID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestIsRejection(t *testing.T) {
	require.True(t, IsRejection(biddingerrors.ErrBidTooLow))
	require.True(t, IsRejection(biddingerrors.ErrInvalidAmount))
	require.True(t, IsRejection(biddingerrors.ErrConcurrentBidConflict))
	require.False(t, IsRejection(biddingerrors.Persistence("op", errors.New("boom"))))
	require.False(t, IsRejection(errors.New("boom")))
}
