package auction

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"auction-house/internal/biddingerrors"
	"auction-house/internal/clock"
	"auction-house/internal/imagestore"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// CreateInput describes a new listing
type CreateInput struct {
	Title         string
	Description   string
	StartingPrice decimal.Decimal
	StartTime     time.Time
	EndTime       time.Time
}

// UpdateInput carries editable fields. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// Upload is one image file submitted for an auction
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AuctionService manages the auction catalogue. Prices are never written
// here; they change only through accepted bids.
type AuctionService struct {
	auctions repository.AuctionStore
	images   imagestore.Store
	notifier notify.Publisher
	clock    clock.Clock
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(auctions repository.AuctionStore, images imagestore.Store, notifier notify.Publisher, clk clock.Clock) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		images:   images,
		notifier: notifier,
		clock:    clk,
	}
}

// Create lists a new auction for sellerID. The status comes from the time
// window, so a future start yields an upcoming auction.
func (s *AuctionService) Create(ctx context.Context, sellerID string, in CreateInput) (model.Auction, error) {
	now := s.clock.Now()

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	switch {
	case sellerID == "":
		return model.Auction{}, fmt.Errorf("service: %w - missing seller", biddingerrors.ErrValidation)
	case title == "":
		return model.Auction{}, fmt.Errorf("service: %w - title is required", biddingerrors.ErrValidation)
	case description == "":
		return model.Auction{}, fmt.Errorf("service: %w - description is required", biddingerrors.ErrValidation)
	case in.StartingPrice.IsNegative() || !in.StartingPrice.Equal(model.RoundMoney(in.StartingPrice)):
		return model.Auction{}, fmt.Errorf("service: %w - starting price %s", biddingerrors.ErrInvalidAmount, in.StartingPrice.String())
	}
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return model.Auction{}, err
	}

	auction := model.Auction{
		ID:            utils.GenerateID(),
		Title:         title,
		Description:   description,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		StartTime:     in.StartTime.UTC(),
		EndTime:       in.EndTime.UTC(),
		SellerID:      sellerID,
		Images:        []model.Image{},
		Status:        clock.ResolveStatus(in.StartTime, in.EndTime, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.auctions.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}

	utils.Info("service: auction created", map[string]any{
		"auction_id": auction.ID,
		"seller_id":  sellerID,
		"status":     string(auction.Status),
	})
	return auction, nil
}

// List returns auctions matching filter, ordered by start time
func (s *AuctionService) List(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrValidation, filter.Status)
	}
	auctions, err := s.auctions.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// Get returns one auction
func (s *AuctionService) Get(ctx context.Context, id string) (model.Auction, error) {
	if id == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}
	auction, err := s.auctions.GetAuction(ctx, id)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", id, err)
	}
	return auction, nil
}

// Update edits an auction owned by actorID. The starting price is fixed at
// creation and the start time is fixed once bidding has opened. A changed
// window re-resolves the status, and the transition is announced.
func (s *AuctionService) Update(ctx context.Context, actorID, id string, in UpdateInput) (model.Auction, error) {
	now := s.clock.Now()

	auction, err := s.owned(ctx, actorID, id)
	if err != nil {
		return model.Auction{}, err
	}
	if auction.Status == model.StatusEnded {
		return model.Auction{}, errEnded(id)
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return model.Auction{}, fmt.Errorf("service: %w - title cannot be empty", biddingerrors.ErrValidation)
		}
		auction.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return model.Auction{}, fmt.Errorf("service: %w - description cannot be empty", biddingerrors.ErrValidation)
		}
		auction.Description = strings.TrimSpace(*in.Description)
	}
	if in.StartTime != nil && !in.StartTime.Equal(auction.StartTime) {
		if !startMovable(auction, now) {
			return model.Auction{}, errStartFixed(id)
		}
		auction.StartTime = in.StartTime.UTC()
	}
	if in.EndTime != nil {
		auction.EndTime = in.EndTime.UTC()
	}
	if err := validateWindow(auction.StartTime, auction.EndTime); err != nil {
		return model.Auction{}, err
	}
	auction.UpdatedAt = now

	written, err := s.auctions.UpdateAuctionDetails(ctx, auction)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to update auction %s: %w", id, err)
	}
	if !written {
		// the auction ended or took a bid since it was read
		current, err := s.Get(ctx, id)
		if err != nil {
			return model.Auction{}, err
		}
		if current.Status == model.StatusEnded {
			return model.Auction{}, errEnded(id)
		}
		return model.Auction{}, errStartFixed(id)
	}

	if status := clock.ResolveStatus(auction.StartTime, auction.EndTime, now); status != auction.Status {
		moved, changed, err := s.auctions.TransitionStatus(ctx, id, auction.Status, status, now)
		if err != nil {
			utils.Warn("service: failed to re-resolve auction status", map[string]any{
				"auction_id": id,
				"error":      err.Error(),
			})
		} else if changed {
			notify.Transitioned(s.notifier, moved, now)
		}
	}

	return s.Get(ctx, id)
}

// startMovable reports whether the start time of auction may still change:
// it has not opened, by its stored status or by the clock, and holds no bid.
func startMovable(auction model.Auction, now time.Time) bool {
	return auction.Status == model.StatusUpcoming &&
		clock.ResolveStatus(auction.StartTime, auction.EndTime, now) == model.StatusUpcoming &&
		auction.HighestBidderID == nil
}

func errEnded(id string) error {
	return fmt.Errorf("service: %w - auction %s has ended", biddingerrors.ErrAuctionNotActive, id)
}

func errStartFixed(id string) error {
	return fmt.Errorf("service: %w - start time of auction %s is fixed once bidding has opened", biddingerrors.ErrValidation, id)
}

// Delete removes an auction owned by actorID along with its stored images.
// Its bids remain in the ledger.
func (s *AuctionService) Delete(ctx context.Context, actorID, id string) error {
	auction, err := s.owned(ctx, actorID, id)
	if err != nil {
		return err
	}

	if err := s.auctions.DeleteAuction(ctx, id); err != nil {
		return fmt.Errorf("service: failed to delete auction %s: %w", id, err)
	}

	for _, img := range auction.Images {
		if err := s.images.Delete(ctx, img.StorageKey); err != nil {
			utils.Warn("service: failed to delete auction image", map[string]any{
				"auction_id":  id,
				"storage_key": img.StorageKey,
				"error":       err.Error(),
			})
		}
	}

	utils.Info("service: auction deleted", map[string]any{"auction_id": id, "seller_id": actorID})
	return nil
}

// AttachImages stores uploads and appends them to an auction owned by actorID.
// Either every upload is attached or none is; the image cap is enforced by
// the store so concurrent uploads cannot exceed it.
func (s *AuctionService) AttachImages(ctx context.Context, actorID, id string, uploads []Upload) (model.Auction, error) {
	if len(uploads) == 0 {
		return model.Auction{}, fmt.Errorf("service: %w - no images provided", biddingerrors.ErrValidation)
	}

	auction, err := s.owned(ctx, actorID, id)
	if err != nil {
		return model.Auction{}, err
	}
	if len(auction.Images)+len(uploads) > imagestore.MaxImages {
		return model.Auction{}, errTooManyImages()
	}
	for _, up := range uploads {
		if err := imagestore.Validate(up.Filename, up.ContentType, up.Size); err != nil {
			return model.Auction{}, fmt.Errorf("service: %s: %w", up.Filename, err)
		}
	}

	saved := make([]model.Image, 0, len(uploads))
	for _, up := range uploads {
		img, err := s.images.Save(ctx, up.Filename, up.ContentType, up.Body)
		if err != nil {
			s.discard(ctx, saved)
			return model.Auction{}, fmt.Errorf("service: failed to store %s: %w", up.Filename, err)
		}
		saved = append(saved, img)
	}

	updated, appended, err := s.auctions.AppendImages(ctx, id, saved, imagestore.MaxImages, s.clock.Now())
	if err != nil {
		s.discard(ctx, saved)
		return model.Auction{}, fmt.Errorf("service: failed to attach images to auction %s: %w", id, err)
	}
	if !appended {
		s.discard(ctx, saved)
		return model.Auction{}, errTooManyImages()
	}
	return updated, nil
}

func errTooManyImages() error {
	return fmt.Errorf("service: %w - an auction holds at most %d images", biddingerrors.ErrValidation, imagestore.MaxImages)
}

func (s *AuctionService) owned(ctx context.Context, actorID, id string) (model.Auction, error) {
	auction, err := s.Get(ctx, id)
	if err != nil {
		return model.Auction{}, err
	}
	if auction.SellerID != actorID {
		return model.Auction{}, fmt.Errorf("service: %w - auction %s belongs to another seller", biddingerrors.ErrForbidden, id)
	}
	return auction, nil
}

func (s *AuctionService) discard(ctx context.Context, images []model.Image) {
	for _, img := range images {
		if err := s.images.Delete(ctx, img.StorageKey); err != nil {
			utils.Warn("service: failed to discard image", map[string]any{
				"storage_key": img.StorageKey,
				"error":       err.Error(),
			})
		}
	}
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("service: %w - start and end time are required", biddingerrors.ErrValidation)
	}
	if !end.After(start) {
		return fmt.Errorf("service: %w", biddingerrors.ErrInvalidTimeWindow)
	}
	return nil
}
