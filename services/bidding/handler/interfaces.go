package handler

//go:generate mockgen -destination=mock_services.go -package=handler auction-house/services/bidding/handler BiddingServiceInterface,AuctionServiceInterface,AuthServiceInterface

import (
	"context"

	auction "auction-house/internal/auctionService"
	auth "auction-house/internal/authService"
	model "auction-house/internal/models"
	"auction-house/internal/notify"

	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
}

type AuctionServiceInterface interface {
	Create(ctx context.Context, sellerID string, in auction.CreateInput) (model.Auction, error)
	List(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	Get(ctx context.Context, id string) (model.Auction, error)
	Update(ctx context.Context, actorID, id string, in auction.UpdateInput) (model.Auction, error)
	Delete(ctx context.Context, actorID, id string) error
	AttachImages(ctx context.Context, actorID, id string, uploads []auction.Upload) (model.Auction, error)
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Profile(ctx context.Context, userID string) (model.User, error)
	UpdateProfile(ctx context.Context, userID string, upd auth.ProfileUpdate) (auth.Session, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// EventSource hands out live subscriptions. *notify.Hub satisfies it.
type EventSource interface {
	Subscribe(channel string) *notify.Subscription
	Unsubscribe(sub *notify.Subscription)
}
