package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places prices are rounded to
const MoneyPlaces int32 = 2

// Status is the lifecycle state of an auction
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusEnded:
		return true
	}
	return false
}

// Role is the capability set of a user
type Role string

const (
	RoleBidder Role = "bidder"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r.In(RoleBidder, RoleSeller, RoleAdmin)
}

// In reports whether r is one of roles
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// User represents a participant in the auction
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Image is an uploaded picture attached to an auction
type Image struct {
	URL        string `json:"url"`
	StorageKey string `json:"storage_key"`
}

// Auction represents an item listed for sale within a time window
type Auction struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	SellerID        string          `json:"seller_id"`
	HighestBidderID *string         `json:"highest_bidder_id,omitempty"`
	Images          []Image         `json:"images"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HasBids reports whether at least one bid has been accepted
func (a Auction) HasBids() bool {
	return a.HighestBidderID != nil
}

// Bid represents a user's accepted bid on an auction
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuctionFilter narrows an auction listing. Zero fields match everything.
type AuctionFilter struct {
	Keyword  string
	Status   Status
	SellerID string
}

// EventType names a real-time notification
type EventType string

const (
	EventNewBid         EventType = "newBid"
	EventAuctionEnded   EventType = "auctionEnded"
	EventAuctionStarted EventType = "auctionStarted"
)

// Event is a state change pushed to subscribers
type Event struct {
	Type            EventType       `json:"type"`
	AuctionID       string          `json:"auction_id"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty"`
	Message         string          `json:"message,omitempty"`
	At              time.Time       `json:"at"`
}

// RoundMoney normalises an amount to MoneyPlaces
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
