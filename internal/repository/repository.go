package repository

import (
	"context"
	"time"

	model "auction-escrow/internal/models"
)

// ListingFilter narrows ListListings. Zero values mean no restriction.
type ListingFilter struct {
	Status   model.ListingStatus
	SellerID string
	Limit    int
}

// AuctionDB is the read side of the listing, bid and balance storage
type AuctionDB interface {
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error)
	// ListBidsByListing returns bids ordered highest amount first
	ListBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)
	ListBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)
	GetBalance(ctx context.Context, userID string) (model.Balance, error)
	GetItem(ctx context.Context, itemID string) (model.Item, error)
	GetReservation(ctx context.Context, reservationID string) (model.Reservation, error)
	ListLedgerEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)
	// ListDueListingIDs returns active timed listings whose window closed at or before now
	ListDueListingIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Store is the full storage contract. Every write goes through WithTx.
type Store interface {
	AuctionDB
	// WithTx runs fn as one atomic unit of work. If fn returns an error nothing it
	// wrote is kept.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side, valid only inside WithTx
type Tx interface {
	GetItemForUpdate(ctx context.Context, itemID string) (model.Item, error)
	UpsertItem(ctx context.Context, item model.Item) error
	UpdateItemOwner(ctx context.Context, itemID, ownerID string) error

	// GetListingForUpdate locks the listing row until the unit of work ends
	GetListingForUpdate(ctx context.Context, listingID string) (model.Listing, error)
	HasActiveListingForItem(ctx context.Context, itemID string) (bool, error)
	InsertListing(ctx context.Context, listing model.Listing) error
	UpdateListing(ctx context.Context, listing model.Listing) error

	InsertBid(ctx context.Context, bid model.Bid) error
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	UpdateBidStatus(ctx context.Context, bidID string, status model.BidStatus) error
	ListBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)

	// LockBalances locks the balance rows of userIDs in ascending id order,
	// creating zeroed rows for users seen for the first time
	LockBalances(ctx context.Context, userIDs ...string) error
	// GetBalanceForUpdate locks and returns a balance, creating a zeroed row if needed
	GetBalanceForUpdate(ctx context.Context, userID string) (model.Balance, error)
	UpdateBalance(ctx context.Context, balance model.Balance) error

	InsertReservation(ctx context.Context, reservation model.Reservation) error
	GetReservationForUpdate(ctx context.Context, reservationID string) (model.Reservation, error)
	UpdateReservationState(ctx context.Context, reservationID string, state model.ReservationState) error

	InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error
}
