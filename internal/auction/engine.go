package auction

import (
	"errors"
	"time"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/ledger"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"

	"github.com/shopspring/decimal"
)

// MinBidIncrement is the smallest step by which a bid must beat the current highest bid
var MinBidIncrement = decimal.New(1, -2)

// Config carries the fee policy of the engine
type Config struct {
	ListingFee     decimal.Decimal // debited from the seller when a listing is created
	PlatformFee    decimal.Decimal // reserved with every bid and kept when the bid wins
	FeeSinkAccount string          // credited with collected fees; empty burns them
}

// Engine orchestrates listings, bids and settlement over the store and the balance ledger.
// Every mutation of a listing happens inside one unit of work that first locks the
// listing row. Balance rows are locked after it, in ascending user id order.
type Engine struct {
	store  repository.Store
	ledger *ledger.Ledger
	cfg    Config
	now    func() time.Time
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new Engine instance
func NewEngine(store repository.Store, l *ledger.Ledger, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		ledger: l,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateListingInput is what a seller supplies to list an item
type CreateListingInput struct {
	ItemID         string
	MinPrice       decimal.Decimal
	AuctionEndDate *time.Time // nil lists the item at a fixed price
}

// BidReceipt is returned for an admitted bid
type BidReceipt struct {
	Bid            model.Bid       `json:"bid"`
	NextMinimumBid decimal.Decimal `json:"next_minimum_bid"`
}

// Outcome describes how a settle, accept or cancel call left a listing
type Outcome string

const (
	OutcomeSettled       Outcome = "settled"
	OutcomeExpiredNoBids Outcome = "expired_no_bids"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeAlreadyFinal  Outcome = "already_final"
)

// SettlementResult reports the final state of a listing after it was closed
type SettlementResult struct {
	Listing              model.Listing `json:"listing"`
	WinningBid           *model.Bid    `json:"winning_bid,omitempty"`
	Outcome              Outcome       `json:"outcome"`
	ReleasedReservations int           `json:"released_reservations"`
	AlreadyFinal         bool          `json:"already_final"`
}

// bidOutcome labels a PlaceBid result for metrics
func bidOutcome(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, biddingerrors.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, biddingerrors.ErrAuctionExpired):
		return "auction_expired"
	case errors.Is(err, biddingerrors.ErrListingNotActive), errors.Is(err, biddingerrors.ErrListingNotFound):
		return "listing_not_active"
	case errors.Is(err, biddingerrors.ErrSelfBiddingNotAllowed):
		return "self_bid"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return "invalid"
	default:
		return "error"
	}
}
