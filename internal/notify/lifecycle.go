package notify

import (
	"fmt"
	"time"

	model "auction-house/internal/models"
)

// AuctionEnded announces a finished auction to its winner, if any, and to its
// seller. auction must be the state written by the ending transition so the
// winner named is the one stored.
func AuctionEnded(p Publisher, auction model.Auction, at time.Time) {
	if auction.HighestBidderID != nil {
		p.Publish(UserChannel(*auction.HighestBidderID), model.Event{
			Type:            model.EventAuctionEnded,
			AuctionID:       auction.ID,
			CurrentPrice:    auction.CurrentPrice,
			HighestBidderID: *auction.HighestBidderID,
			Message:         fmt.Sprintf("you won auction %q", auction.Title),
			At:              at,
		})
	}

	evt := model.Event{
		Type:         model.EventAuctionEnded,
		AuctionID:    auction.ID,
		CurrentPrice: auction.CurrentPrice,
		Message:      fmt.Sprintf("your auction %q has ended without bids", auction.Title),
		At:           at,
	}
	if auction.HighestBidderID != nil {
		evt.HighestBidderID = *auction.HighestBidderID
		evt.Message = fmt.Sprintf("your auction %q has ended", auction.Title)
	}
	p.Publish(UserChannel(auction.SellerID), evt)
}

// AuctionStarted announces an auction that opened for bidding
func AuctionStarted(p Publisher, auction model.Auction, at time.Time) {
	p.Publish(AuctionChannel(auction.ID), model.Event{
		Type:         model.EventAuctionStarted,
		AuctionID:    auction.ID,
		CurrentPrice: auction.CurrentPrice,
		At:           at,
	})
}

// Transitioned announces a status change that the caller's conditional
// transition made. Other target statuses publish nothing.
func Transitioned(p Publisher, auction model.Auction, at time.Time) {
	switch auction.Status {
	case model.StatusEnded:
		AuctionEnded(p, auction, at)
	case model.StatusActive:
		AuctionStarted(p, auction, at)
	}
}
