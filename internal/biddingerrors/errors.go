package biddingerrors

import (
	"errors"
	"fmt"
)

// Input errors
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = fmt.Errorf("%w: invalid bid amount", ErrValidation)
	ErrInvalidTimeWindow = fmt.Errorf("%w: end time must be after start time", ErrValidation)
)

// Repository-level errors
var (
	ErrNotFound    = errors.New("not found")
	ErrEmailTaken  = errors.New("email already in use")
	ErrPersistence = errors.New("persistence failure")
)

// Access errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
)

// Bid rejection errors
var (
	ErrAuctionNotActive      = errors.New("auction is not active")
	ErrBidTooLow             = errors.New("bid must be higher than current price")
	ErrSelfBidForbidden      = errors.New("seller cannot bid on own auction")
	ErrConcurrentBidConflict = errors.New("another bid was committed first")
)

// Persistence wraps a store failure so callers can classify it with errors.Is
// while keeping the underlying cause in the chain.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
