package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// BiddingService decides whether a bid is accepted and applies it.
// Safe for concurrent use: correctness rests on the store's CommitBid
// compare-and-set, not on any lock held here.
type BiddingService struct {
	auctions repository.AuctionStore
	ledger   repository.BidLedger
	notifier notify.Publisher
	clock    clock.Clock
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(auctions repository.AuctionStore, ledger repository.BidLedger, notifier notify.Publisher, clk clock.Clock) *BiddingService {
	return &BiddingService{
		auctions: auctions,
		ledger:   ledger,
		notifier: notifier,
		clock:    clk,
	}
}

// PlaceBid validates a bid against the auction and commits it atomically.
// A lost race is reported as ErrConcurrentBidConflict and never retried here.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error) {
	now := s.clock.Now()

	if !amount.IsPositive() || !amount.Equal(model.RoundMoney(amount)) {
		return model.Bid{}, fmt.Errorf("service: %w - amount %s", biddingerrors.ErrInvalidAmount, amount.String())
	}
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrValidation)
	}

	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	if auction.SellerID == bidderID {
		return model.Bid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrSelfBidForbidden, auctionID)
	}

	status := clock.ResolveStatus(auction.StartTime, auction.EndTime, now)
	if status != auction.Status {
		s.correctStatus(ctx, auction, status, now)
	}
	if status != model.StatusActive {
		return model.Bid{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, auctionID, status)
	}

	if !amount.GreaterThan(auction.CurrentPrice) {
		return model.Bid{}, fmt.Errorf("service: %w - current price is %s", biddingerrors.ErrBidTooLow, auction.CurrentPrice.StringFixed(model.MoneyPlaces))
	}

	if err := ctx.Err(); err != nil {
		return model.Bid{}, fmt.Errorf("service: bid on auction %s abandoned: %w", auctionID, err)
	}

	committed, ok, err := s.auctions.CommitBid(ctx, model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to commit bid on auction %s by user %s: %w", auctionID, bidderID, err)
	}
	if !ok {
		return model.Bid{}, s.lostCommit(ctx, auctionID)
	}

	s.notifier.Publish(notify.AuctionChannel(auctionID), model.Event{
		Type:            model.EventNewBid,
		AuctionID:       auctionID,
		CurrentPrice:    committed.Amount,
		HighestBidderID: bidderID,
		At:              committed.CreatedAt,
	})

	return committed, nil
}

// lostCommit explains a commit whose condition failed: the auction ended in
// the meantime, or a higher bid landed first.
func (s *BiddingService) lostCommit(ctx context.Context, auctionID string) error {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err == nil && auction.Status == model.StatusEnded {
		return fmt.Errorf("service: %w - auction %s ended before the bid landed", biddingerrors.ErrAuctionNotActive, auctionID)
	}
	return fmt.Errorf("service: %w - auction %s", biddingerrors.ErrConcurrentBidConflict, auctionID)
}

// correctStatus persists a recomputed status and announces it. It is
// conditional on the status we read, so it never overwrites or repeats a
// concurrent sweeper transition.
func (s *BiddingService) correctStatus(ctx context.Context, auction model.Auction, status model.Status, now time.Time) {
	corrected, changed, err := s.auctions.TransitionStatus(ctx, auction.ID, auction.Status, status, now)
	if err != nil {
		utils.Warn("service: failed to correct auction status", map[string]any{
			"auction_id": auction.ID,
			"from":       string(auction.Status),
			"to":         string(status),
			"error":      err.Error(),
		})
		return
	}
	if !changed {
		return
	}

	utils.Info("service: auction status corrected", map[string]any{
		"auction_id": auction.ID,
		"from":       string(auction.Status),
		"to":         string(status),
	})
	notify.Transitioned(s.notifier, corrected, now)
}

// GetBidsForAuction returns all bids for an auction, newest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}

	bids, err := s.ledger.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetHighestBid returns the leading bid for an auction
func (s *BiddingService) GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}

	bid, err := s.ledger.GetHighestBid(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get highest bid for auction %s: %w", auctionID, err)
	}

	return bid, nil
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrValidation)
	}

	auctions, err := s.ledger.ListAuctionsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", bidderID, err)
	}

	return auctions, nil
}

// IsRejection reports whether err is a bid rejection the bidder can act on,
// as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		biddingerrors.ErrValidation,
		biddingerrors.ErrNotFound,
		biddingerrors.ErrSelfBidForbidden,
		biddingerrors.ErrAuctionNotActive,
		biddingerrors.ErrBidTooLow,
		biddingerrors.ErrConcurrentBidConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
