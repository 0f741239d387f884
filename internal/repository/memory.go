package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// A single write lock makes CommitBid a compare-and-set.
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction // key: auctionID
	bids           map[string][]model.Bid   // key: auctionID -> bids in commit order
	bidderAuctions map[string][]string      // key: bidderID -> auctionIDs the user has bid on
	users          map[string]model.User    // key: userID
	emails         map[string]string        // key: lower-cased email -> userID
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		bidderAuctions: make(map[string][]string),
		users:          make(map[string]model.User),
		emails:         make(map[string]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.ID]; exists {
		return fmt.Errorf("create auction %s: duplicate id: %w", auction.ID, biddingerrors.ErrValidation)
	}
	r.auctions[auction.ID] = cloneAuction(auction)
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, id string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	return cloneAuction(auction), nil
}

// ListAuctions returns auctions matching filter ordered by start time
func (r *MemoryRepo) ListAuctions(_ context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
	out := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.SellerID != "" && a.SellerID != filter.SellerID {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(a.Title), keyword) &&
			!strings.Contains(strings.ToLower(a.Description), keyword) {
			continue
		}
		out = append(out, cloneAuction(a))
	}
	sortByStartTime(out)
	return out, nil
}

// UpdateAuctionDetails overwrites the seller-editable fields of an auction
func (r *MemoryRepo) UpdateAuctionDetails(_ context.Context, auction model.Auction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[auction.ID]
	if !ok {
		return false, fmt.Errorf("update auction %s: %w", auction.ID, biddingerrors.ErrNotFound)
	}
	if stored.Status == model.StatusEnded {
		return false, nil
	}
	startMoves := !stored.StartTime.Equal(auction.StartTime)
	if startMoves && (stored.Status != model.StatusUpcoming || stored.HighestBidderID != nil) {
		return false, nil
	}
	stored.Title = auction.Title
	stored.Description = auction.Description
	stored.StartTime = auction.StartTime
	stored.EndTime = auction.EndTime
	stored.UpdatedAt = auction.UpdatedAt
	r.auctions[auction.ID] = stored
	return true, nil
}

// AppendImages adds images while the auction stays within limit
func (r *MemoryRepo) AppendImages(_ context.Context, id string, images []model.Image, limit int, at time.Time) (model.Auction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, false, fmt.Errorf("append images to auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	if len(stored.Images)+len(images) > limit {
		return model.Auction{}, false, nil
	}
	stored.Images = append(append(make([]model.Image, 0, len(stored.Images)+len(images)), stored.Images...), images...)
	stored.UpdatedAt = at
	r.auctions[id] = stored
	return cloneAuction(stored), true, nil
}

// DeleteAuction removes an auction. Its bids stay in the ledger.
func (r *MemoryRepo) DeleteAuction(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[id]; !ok {
		return fmt.Errorf("delete auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	delete(r.auctions, id)
	return nil
}

// CommitBid applies a bid if the auction is open and the bid still beats the
// stored current price
func (r *MemoryRepo) CommitBid(_ context.Context, bid model.Bid) (model.Bid, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[bid.AuctionID]
	if !ok {
		return model.Bid{}, false, fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrNotFound)
	}
	if auction.Status == model.StatusEnded || !auction.CurrentPrice.LessThan(bid.Amount) {
		return model.Bid{}, false, nil
	}

	ledger := r.bids[bid.AuctionID]
	if n := len(ledger); n > 0 && bid.CreatedAt.Before(ledger[n-1].CreatedAt) {
		bid.CreatedAt = ledger[n-1].CreatedAt
	}

	bidder := bid.BidderID
	auction.CurrentPrice = bid.Amount
	auction.HighestBidderID = &bidder
	auction.UpdatedAt = bid.CreatedAt
	r.auctions[bid.AuctionID] = auction

	r.bids[bid.AuctionID] = append(ledger, bid)
	for _, id := range r.bidderAuctions[bid.BidderID] {
		if id == bid.AuctionID {
			return bid, true, nil
		}
	}
	r.bidderAuctions[bid.BidderID] = append(r.bidderAuctions[bid.BidderID], bid.AuctionID)
	return bid, true, nil
}

// TransitionStatus changes status only when the stored status equals from
func (r *MemoryRepo) TransitionStatus(_ context.Context, id string, from, to model.Status, at time.Time) (model.Auction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, false, fmt.Errorf("transition auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	if auction.Status != from {
		return model.Auction{}, false, nil
	}
	auction.Status = to
	auction.UpdatedAt = at
	r.auctions[id] = auction
	return cloneAuction(auction), true, nil
}

// ListStaleAuctions returns auctions whose stored status is behind now
func (r *MemoryRepo) ListStaleAuctions(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		expired := a.Status != model.StatusEnded && a.EndTime.Before(now)
		due := a.Status == model.StatusUpcoming && !a.StartTime.After(now)
		if expired || due {
			out = append(out, cloneAuction(a))
		}
	}
	sortByStartTime(out)
	return out, nil
}

// ListBidsByAuction returns all bids for an auction, newest first
func (r *MemoryRepo) ListBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	out := make([]model.Bid, len(bids))
	for i, b := range bids {
		out[len(bids)-1-i] = b
	}
	return out, nil
}

// GetHighestBid returns the winning bid so far for an auction
func (r *MemoryRepo) GetHighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	// Commits are strictly increasing, so the last one is the highest.
	return bids[len(bids)-1], nil
}

// ListAuctionsByBidder returns all auctions a user has bid on
func (r *MemoryRepo) ListAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bidderAuctions[bidderID]
	out := make([]model.Auction, 0, len(ids))
	for _, id := range ids {
		if a, exists := r.auctions[id]; exists {
			out = append(out, cloneAuction(a))
		}
	}
	return out, nil
}

// CreateUser stores a new user, rejecting duplicate emails
func (r *MemoryRepo) CreateUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, taken := r.emails[email]; taken {
		return fmt.Errorf("create user %s: %w", email, biddingerrors.ErrEmailTaken)
	}
	user.Email = email
	r.users[user.ID] = user
	r.emails[email] = user.ID
	return nil
}

// GetUserByID returns a user by id
func (r *MemoryRepo) GetUserByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", id, biddingerrors.ErrNotFound)
	}
	return user, nil
}

// GetUserByEmail returns a user by case-insensitive email
func (r *MemoryRepo) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[strings.ToLower(email)]
	if !ok {
		return model.User{}, fmt.Errorf("get user by email: %w", biddingerrors.ErrNotFound)
	}
	return r.users[id], nil
}

// UpdateUser overwrites a user, keeping the email index consistent
func (r *MemoryRepo) UpdateUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return fmt.Errorf("update user %s: %w", user.ID, biddingerrors.ErrNotFound)
	}
	email := strings.ToLower(user.Email)
	if owner, taken := r.emails[email]; taken && owner != user.ID {
		return fmt.Errorf("update user %s: %w", user.ID, biddingerrors.ErrEmailTaken)
	}
	delete(r.emails, stored.Email)
	user.Email = email
	r.emails[email] = user.ID
	r.users[user.ID] = user
	return nil
}

// ListUsers returns every user ordered by creation time
func (r *MemoryRepo) ListUsers(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store
func (r *MemoryRepo) Close(context.Context) error {
	return nil
}

func cloneAuction(a model.Auction) model.Auction {
	if a.HighestBidderID != nil {
		bidder := *a.HighestBidderID
		a.HighestBidderID = &bidder
	}
	a.Images = append(make([]model.Image, 0, len(a.Images)), a.Images...)
	return a
}

func sortByStartTime(auctions []model.Auction) {
	sort.SliceStable(auctions, func(i, j int) bool {
		if auctions[i].StartTime.Equal(auctions[j].StartTime) {
			return auctions[i].ID < auctions[j].ID
		}
		return auctions[i].StartTime.Before(auctions[j].StartTime)
	})
}
