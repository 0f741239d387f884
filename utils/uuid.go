package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a time-ordered UUIDv7 string so primary keys of
// auctions, bids and users insert in roughly ascending order. It falls back
// to a random v4 if the v7 clock source fails.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
