package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrItemNotFound        = errors.New("item not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrNoBids              = errors.New("no bids found for listing")
)

// Validation errors, rejected before any state is read
var (
	ErrInvalidBid           = errors.New("invalid bid")
	ErrInvalidListing       = errors.New("invalid listing")
	ErrInvalidItem          = errors.New("invalid item")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidAuctionWindow = errors.New("auction end date must be in the future")
)

// business logic errors
var (
	ErrBidTooLow             = errors.New("bid amount too low")
	ErrAuctionExpired        = errors.New("auction has expired")
	ErrListingNotActive      = errors.New("listing is not active")
	ErrSelfBiddingNotAllowed = errors.New("seller cannot bid on own listing")
	ErrItemNotOwned          = errors.New("item not owned by seller")
	ErrItemAlreadyListed     = errors.New("item already listed")
	ErrNotSeller             = errors.New("caller is not the seller")
	ErrListingFinal          = errors.New("listing already closed")
	ErrListingHasBids        = errors.New("listing has bids")
	ErrNotFixedPrice         = errors.New("listing is a timed auction")
	ErrNotTimedAuction       = errors.New("listing has no auction window")
	ErrAuctionNotEnded       = errors.New("auction has not ended")
	ErrBidNotAcceptable      = errors.New("bid is not the current highest bid")
)

// Resource errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Invariant violations. These indicate an engine bug, never bad input.
var (
	ErrReservationNotHeld = errors.New("reservation not held")
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// BidTooLowError carries the smallest amount the listing would accept
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: minimum acceptable bid is %s", ErrBidTooLow, e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}

// NewBidTooLow builds a BidTooLowError for the given minimum
func NewBidTooLow(minimum decimal.Decimal) error {
	return &BidTooLowError{Minimum: minimum}
}

// IsInvariant reports whether err signals a broken engine contract
func IsInvariant(err error) bool {
	return errors.Is(err, ErrReservationNotHeld) || errors.Is(err, ErrInvariantViolation)
}
