package mongostore

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	model "auction-house/internal/models"
)

type imageDoc struct {
	URL        string `bson:"url"`
	StorageKey string `bson:"storageKey"`
}

type auctionDoc struct {
	ID              string               `bson:"_id"`
	Title           string               `bson:"title"`
	Description     string               `bson:"description"`
	StartingPrice   primitive.Decimal128 `bson:"startingPrice"`
	CurrentPrice    primitive.Decimal128 `bson:"currentPrice"`
	StartTime       time.Time            `bson:"startTime"`
	EndTime         time.Time            `bson:"endTime"`
	SellerID        string               `bson:"sellerId"`
	HighestBidderID *string              `bson:"highestBidderId,omitempty"`
	Images          []imageDoc           `bson:"images"`
	Status          string               `bson:"status"`
	BidSeq          int64                `bson:"bidSeq"`
	LastBidAt       *time.Time           `bson:"lastBidAt,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

type bidDoc struct {
	ID        string               `bson:"_id"`
	AuctionID string               `bson:"auctionId"`
	BidderID  string               `bson:"bidderId"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Seq       int64                `bson:"seq"`
	CreatedAt time.Time            `bson:"createdAt"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("mongostore: amount %s: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	bi, exp, err := v.BigInt()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("mongostore: decimal %s: %w", v.String(), err)
	}
	return decimal.NewFromBigInt(bi, int32(exp)), nil
}

func toAuctionDoc(a model.Auction) (auctionDoc, error) {
	starting, err := toDecimal128(a.StartingPrice)
	if err != nil {
		return auctionDoc{}, err
	}
	current, err := toDecimal128(a.CurrentPrice)
	if err != nil {
		return auctionDoc{}, err
	}

	images := make([]imageDoc, 0, len(a.Images))
	for _, img := range a.Images {
		images = append(images, imageDoc(img))
	}

	return auctionDoc{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		StartingPrice:   starting,
		CurrentPrice:    current,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		SellerID:        a.SellerID,
		HighestBidderID: a.HighestBidderID,
		Images:          images,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}, nil
}

func (d auctionDoc) toModel() (model.Auction, error) {
	starting, err := fromDecimal128(d.StartingPrice)
	if err != nil {
		return model.Auction{}, err
	}
	current, err := fromDecimal128(d.CurrentPrice)
	if err != nil {
		return model.Auction{}, err
	}

	images := make([]model.Image, 0, len(d.Images))
	for _, img := range d.Images {
		images = append(images, model.Image(img))
	}

	return model.Auction{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		StartingPrice:   starting,
		CurrentPrice:    current,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		SellerID:        d.SellerID,
		HighestBidderID: d.HighestBidderID,
		Images:          images,
		Status:          model.Status(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (d bidDoc) toModel() (model.Bid, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return model.Bid{}, err
	}
	return model.Bid{
		BidID:     d.ID,
		AuctionID: d.AuctionID,
		BidderID:  d.BidderID,
		Amount:    amount,
		CreatedAt: d.CreatedAt,
	}, nil
}

func toUserDoc(u model.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         model.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
