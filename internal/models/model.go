package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind distinguishes the two marketplace item families
type ItemKind string

const (
	ItemKindNFT  ItemKind = "nft"
	ItemKindMeme ItemKind = "meme"
)

// Valid reports whether k is a known item kind
func (k ItemKind) Valid() bool {
	return k == ItemKindNFT || k == ItemKindMeme
}

// Item is an ownership registry record for an NFT or meme
type Item struct {
	ItemID    string    `json:"item_id"`
	OwnerID   string    `json:"owner_id"`
	Kind      ItemKind  `json:"kind"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Balance is a user's token balance split into spendable and escrowed parts
type Balance struct {
	UserID    string          `json:"user_id"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	USDValue  decimal.Decimal `json:"usd_value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is available plus reserved
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}

// ListingStatus is the state of a listing. Everything but Active is terminal.
type ListingStatus string

const (
	ListingStatusActive        ListingStatus = "active"
	ListingStatusSettled       ListingStatus = "settled"
	ListingStatusCancelled     ListingStatus = "cancelled"
	ListingStatusExpiredNoBids ListingStatus = "expired_no_bids"
)

// Terminal reports whether no further transition may leave s
func (s ListingStatus) Terminal() bool {
	return s != ListingStatusActive
}

// Valid reports whether s is a known listing status
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusSettled, ListingStatusCancelled, ListingStatusExpiredNoBids:
		return true
	}
	return false
}

// Listing represents an item offered for sale, fixed-price or timed auction
type Listing struct {
	ListingID           string          `json:"listing_id"`
	ItemID              string          `json:"item_id"`
	SellerID            string          `json:"seller_id"`
	MinPrice            decimal.Decimal `json:"min_price"`
	AuctionEndDate      *time.Time      `json:"auction_end_date,omitempty"`
	CurrentHighestBidID *string         `json:"current_highest_bid_id,omitempty"`
	Status              ListingStatus   `json:"status"`
	ListingFee          decimal.Decimal `json:"listing_fee"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`
}

// Timed reports whether the listing has an auction window
func (l Listing) Timed() bool {
	return l.AuctionEndDate != nil
}

// Expired reports whether the auction window has elapsed at now
func (l Listing) Expired(now time.Time) bool {
	return l.AuctionEndDate != nil && !now.Before(*l.AuctionEndDate)
}

// BidStatus is the lifecycle state of a bid
type BidStatus string

const (
	BidStatusActive   BidStatus = "active"
	BidStatusOutbid   BidStatus = "outbid"
	BidStatusWon      BidStatus = "won"
	BidStatusReleased BidStatus = "released"
)

// Bid represents a user's bid on a listing
type Bid struct {
	BidID         string          `json:"bid_id"`
	ListingID     string          `json:"listing_id"`
	BidderID      string          `json:"bidder_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	ReservationID string          `json:"reservation_id"`
	Status        BidStatus       `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReservationPurpose says what an escrow hold is for
type ReservationPurpose string

const (
	ReservationPurposeBid ReservationPurpose = "bid"
	ReservationPurposeFee ReservationPurpose = "fee"
)

// ReservationState is the lifecycle state of an escrow hold
type ReservationState string

const (
	ReservationStateHeld      ReservationState = "held"
	ReservationStateCommitted ReservationState = "committed"
	ReservationStateReleased  ReservationState = "released"
)

// Reservation is an escrow hold against a user's balance
type Reservation struct {
	ReservationID string             `json:"reservation_id"`
	UserID        string             `json:"user_id"`
	Amount        decimal.Decimal    `json:"amount"`
	Purpose       ReservationPurpose `json:"purpose"`
	State         ReservationState   `json:"state"`
	ReferenceID   string             `json:"reference_id"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// EntryKind classifies a ledger journal entry
type EntryKind string

const (
	EntryKindDeposit        EntryKind = "deposit"
	EntryKindListingFee     EntryKind = "listing_fee"
	EntryKindReserve        EntryKind = "reserve"
	EntryKindRelease        EntryKind = "release"
	EntryKindCommitDebit    EntryKind = "commit_debit"
	EntryKindCommitCredit   EntryKind = "commit_credit"
	EntryKindFeeCredit      EntryKind = "fee_credit"
	EntryKindFeeBurn        EntryKind = "fee_burn"
	EntryKindImmediateDebit EntryKind = "immediate_debit"
)

// LedgerEntry is one append-only journal line for a balance mutation
type LedgerEntry struct {
	EntryID        string          `json:"entry_id"`
	UserID         string          `json:"user_id"`
	Kind           EntryKind       `json:"kind"`
	AvailableDelta decimal.Decimal `json:"available_delta"`
	ReservedDelta  decimal.Decimal `json:"reserved_delta"`
	ReservationID  string          `json:"reservation_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
