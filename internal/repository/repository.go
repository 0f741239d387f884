package repository

import (
	"context"
	"time"

	model "auction-house/internal/models"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-house/internal/repository AuctionStore,BidLedger,UserStore

// AuctionStore persists auctions. CommitBid is the only path that changes the
// current price or the highest bidder.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	// UpdateAuctionDetails writes title, description and window. It reports
	// false without writing when the stored auction has ended, or when the
	// start time would move on an auction that is no longer upcoming or
	// already holds a bid.
	UpdateAuctionDetails(ctx context.Context, auction model.Auction) (bool, error)
	// AppendImages adds images to an auction in one step. It reports false
	// without writing when the auction would then hold more than limit.
	AppendImages(ctx context.Context, id string, images []model.Image, limit int, at time.Time) (model.Auction, bool, error)
	DeleteAuction(ctx context.Context, id string) error
	// CommitBid sets current price and highest bidder to the bid's values and
	// appends the bid, atomically, only if the auction has not ended and its
	// stored current price is below the bid amount. It reports false when the
	// condition did not hold. The committed bid is stamped no earlier than the
	// auction's previous bid.
	CommitBid(ctx context.Context, bid model.Bid) (model.Bid, bool, error)
	// TransitionStatus moves an auction from one status to another only if
	// its stored status still equals from, returning the auction as written.
	TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (model.Auction, bool, error)
	// ListStaleAuctions returns auctions whose stored status lags behind now:
	// not ended with an end time before now, or upcoming with a start time
	// at or before now.
	ListStaleAuctions(ctx context.Context, now time.Time) ([]model.Auction, error)
}

// BidLedger reads the append-only bid history
type BidLedger interface {
	// ListBidsByAuction returns bids newest first
	ListBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
}

// UserStore persists accounts. Emails are compared lower-cased.
type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdateUser(ctx context.Context, user model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
}

// AuctionDB is the full storage surface of the auction system
type AuctionDB interface {
	AuctionStore
	BidLedger
	UserStore
	Close(ctx context.Context) error
}
