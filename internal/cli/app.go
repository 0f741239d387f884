package cli

import (
	"fmt"

	auction "auction-house/internal/auctionService"
	auth "auction-house/internal/authService"
	bidding "auction-house/internal/biddingService"
	"auction-house/internal/clock"
	"auction-house/internal/config"
	"auction-house/internal/imagestore"
	"auction-house/internal/notify"
	"auction-house/internal/sweeper"
)

// app holds the services built on top of one backend
type app struct {
	hub      *notify.Hub
	auth     *auth.AuthService
	auctions *auction.AuctionService
	bidding  *bidding.BiddingService
	sweeper  *sweeper.Sweeper
}

func newApp(cfg config.Config, backend Backend) (*app, error) {
	images, err := imagestore.NewDisk(cfg.UploadDir, cfg.PublicBaseURL+"/uploads")
	if err != nil {
		return nil, fmt.Errorf("cli: %w", err)
	}

	clk := clock.System{}
	hub := notify.NewHub()
	return &app{
		hub:      hub,
		auth:     auth.NewAuthService(backend, clk, cfg.JWTSecret, cfg.JWTExpiry),
		auctions: auction.NewAuctionService(backend, images, hub, clk),
		bidding:  bidding.NewBiddingService(backend, backend, hub, clk),
		sweeper:  sweeper.New(backend, hub, clk, cfg.SweepInterval),
	}, nil
}
