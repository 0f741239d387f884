package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	auction "auction-house/internal/auctionService"
	auth "auction-house/internal/authService"
	"auction-house/internal/biddingerrors"
	"auction-house/internal/config"
	model "auction-house/internal/models"
	"auction-house/utils"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Demo accounts created by seed
const (
	seedSellerEmail = "seller@example.com"
	seedBidderEmail = "bidder@example.com"
	seedPassword    = "123456"
)

// seedCmd loads demo data through the regular services
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo seller, bidder, auction and bid",
	Long: `Create demo data: a seller (seller@example.com) and a bidder
(bidder@example.com), both with password 123456, a 24 hour auction owned by
the seller and an opening bid from the bidder. Existing demo accounts are
reused.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(contextOrBackground(cmd.Context()))
	},
}

func runSeed(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store == config.StoreMemory {
		utils.Warn("seeding the memory store; data is discarded on exit", nil)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	a, err := newApp(cfg, backend)
	if err != nil {
		return err
	}

	_, err = seedDemo(ctx, a, time.Now().UTC())
	return err
}

type seedResult struct {
	Seller  model.User
	Bidder  model.User
	Auction model.Auction
	Bid     model.Bid
}

func seedDemo(ctx context.Context, a *app, now time.Time) (seedResult, error) {
	seller, err := ensureUser(ctx, a.auth, "Test Seller", seedSellerEmail, model.RoleSeller)
	if err != nil {
		return seedResult{}, err
	}
	bidder, err := ensureUser(ctx, a.auth, "Test Bidder", seedBidderEmail, model.RoleBidder)
	if err != nil {
		return seedResult{}, err
	}

	created, err := a.auctions.Create(ctx, seller.ID, auction.CreateInput{
		Title:         "MacBook Pro 2021",
		Description:   "Like new, 16GB RAM, 512GB SSD",
		StartingPrice: decimal.NewFromInt(1000),
		StartTime:     now,
		EndTime:       now.Add(24 * time.Hour),
	})
	if err != nil {
		return seedResult{}, fmt.Errorf("seed: create auction: %w", err)
	}

	bid, err := a.bidding.PlaceBid(ctx, created.ID, bidder.ID, decimal.NewFromInt(1050))
	if err != nil {
		return seedResult{}, fmt.Errorf("seed: place bid: %w", err)
	}

	utils.Info("demo data seeded", map[string]any{
		"seller_id":  seller.ID,
		"bidder_id":  bidder.ID,
		"auction_id": created.ID,
		"bid_id":     bid.BidID,
	})
	return seedResult{Seller: seller, Bidder: bidder, Auction: created, Bid: bid}, nil
}

// ensureUser registers the account or logs into it when it already exists
func ensureUser(ctx context.Context, svc *auth.AuthService, name, email string, role model.Role) (model.User, error) {
	session, err := svc.Register(ctx, auth.RegisterInput{Name: name, Email: email, Password: seedPassword, Role: role})
	if errors.Is(err, biddingerrors.ErrEmailTaken) {
		session, err = svc.Login(ctx, email, seedPassword)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("seed: account %s: %w", email, err)
	}
	return session.User, nil
}
