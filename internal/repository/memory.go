package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-escrow/internal/biddingerrors"
	model "auction-escrow/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryRepo is a concurrency-safe in-memory implementation of Store.
//
// A unit of work holds the write lock from start to finish, so units are fully
// serialized. That is only safe with a single server instance. Inside WithTx,
// use the Tx methods only: the read methods on MemoryRepo take the same lock.
type MemoryRepo struct {
	mu           sync.RWMutex
	items        map[string]model.Item
	listings     map[string]model.Listing
	bids         map[string]model.Bid
	bidsByList   map[string][]string // key: listingID -> bid ids in admission order
	bidsByBidder map[string][]string // key: userID -> bid ids in admission order
	balances     map[string]model.Balance
	reservations map[string]model.Reservation
	entries      map[string][]model.LedgerEntry // key: userID -> journal
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:        make(map[string]model.Item),
		listings:     make(map[string]model.Listing),
		bids:         make(map[string]model.Bid),
		bidsByList:   make(map[string][]string),
		bidsByBidder: make(map[string][]string),
		balances:     make(map[string]model.Balance),
		reservations: make(map[string]model.Reservation),
		entries:      make(map[string][]model.LedgerEntry),
	}
}

// WithTx runs fn under the write lock and undoes every write if fn fails or panics
func (r *MemoryRepo) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{r: r}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// GetListing returns a listing by id
func (r *MemoryRepo) GetListing(_ context.Context, listingID string) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return l, nil
}

// ListListings returns listings newest first
func (r *MemoryRepo) ListListings(_ context.Context, filter ListingFilter) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.SellerID != "" && l.SellerID != filter.SellerID {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ListingID < out[j].ListingID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListBidsByListing returns all bids for a listing, highest first
func (r *MemoryRepo) ListBidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return r.bidsForListing(listingID), nil
}

// ListBidsByBidder returns every bid a user has placed, newest first
func (r *MemoryRepo) ListBidsByBidder(_ context.Context, bidderID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bidsByBidder[bidderID]
	out := make([]model.Bid, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.bids[ids[i]])
	}
	return out, nil
}

// GetBalance returns a user's balance; unknown users have a zero balance
func (r *MemoryRepo) GetBalance(_ context.Context, userID string) (model.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.balances[userID]; ok {
		return b, nil
	}
	return model.Balance{UserID: userID, Available: decimal.Zero, Reserved: decimal.Zero}, nil
}

// GetItem returns an ownership registry record
func (r *MemoryRepo) GetItem(_ context.Context, itemID string) (model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return item, nil
}

// GetReservation returns an escrow hold by id
func (r *MemoryRepo) GetReservation(_ context.Context, reservationID string) (model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[reservationID]
	if !ok {
		return model.Reservation{}, fmt.Errorf("get reservation %s: %w", reservationID, biddingerrors.ErrReservationNotFound)
	}
	return res, nil
}

// ListLedgerEntries returns a user's journal, newest first
func (r *MemoryRepo) ListLedgerEntries(_ context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[userID]
	out := make([]model.LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListDueListingIDs returns active timed listings whose window has closed, oldest deadline first
func (r *MemoryRepo) ListDueListingIDs(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]model.Listing, 0)
	for _, l := range r.listings {
		if l.Status == model.ListingStatusActive && l.Expired(now) {
			due = append(due, l)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].AuctionEndDate.Before(*due[j].AuctionEndDate)
	})

	ids := make([]string, 0, len(due))
	for _, l := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, l.ListingID)
	}
	return ids, nil
}

// AddItem adds an item to the ownership registry. This method is intended for tests only.
func (r *MemoryRepo) AddItem(item model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ItemID] = item
}

// bidsForListing must be called with the lock held
func (r *MemoryRepo) bidsForListing(listingID string) []model.Bid {
	ids := r.bidsByList[listingID]
	out := make([]model.Bid, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.bids[id])
	}
	// admission order breaks ties, so the first bid at an amount stays ahead
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}

// memTx is a unit of work over MemoryRepo. The repo write lock is held for its lifetime.
type memTx struct {
	r    *MemoryRepo
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetItemForUpdate(_ context.Context, itemID string) (model.Item, error) {
	item, ok := t.r.items[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return item, nil
}

func (t *memTx) UpsertItem(_ context.Context, item model.Item) error {
	prev, existed := t.r.items[item.ItemID]
	t.r.items[item.ItemID] = item
	t.undo = append(t.undo, func() {
		if existed {
			t.r.items[item.ItemID] = prev
		} else {
			delete(t.r.items, item.ItemID)
		}
	})
	return nil
}

func (t *memTx) UpdateItemOwner(ctx context.Context, itemID, ownerID string) error {
	item, err := t.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return err
	}
	item.OwnerID = ownerID
	return t.UpsertItem(ctx, item)
}

func (t *memTx) GetListingForUpdate(_ context.Context, listingID string) (model.Listing, error) {
	l, ok := t.r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return l, nil
}

func (t *memTx) HasActiveListingForItem(_ context.Context, itemID string) (bool, error) {
	for _, l := range t.r.listings {
		if l.ItemID == itemID && l.Status == model.ListingStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertListing(_ context.Context, listing model.Listing) error {
	if _, exists := t.r.listings[listing.ListingID]; exists {
		return fmt.Errorf("insert listing %s: duplicate id", listing.ListingID)
	}
	t.r.listings[listing.ListingID] = listing
	t.undo = append(t.undo, func() { delete(t.r.listings, listing.ListingID) })
	return nil
}

func (t *memTx) UpdateListing(_ context.Context, listing model.Listing) error {
	prev, ok := t.r.listings[listing.ListingID]
	if !ok {
		return fmt.Errorf("update listing %s: %w", listing.ListingID, biddingerrors.ErrListingNotFound)
	}
	t.r.listings[listing.ListingID] = listing
	t.undo = append(t.undo, func() { t.r.listings[listing.ListingID] = prev })
	return nil
}

func (t *memTx) InsertBid(_ context.Context, bid model.Bid) error {
	if _, ok := t.r.listings[bid.ListingID]; !ok {
		return fmt.Errorf("record bid for listing %s: %w", bid.ListingID, biddingerrors.ErrListingNotFound)
	}
	if _, exists := t.r.bids[bid.BidID]; exists {
		return fmt.Errorf("insert bid %s: duplicate id", bid.BidID)
	}

	t.r.bids[bid.BidID] = bid
	t.r.bidsByList[bid.ListingID] = append(t.r.bidsByList[bid.ListingID], bid.BidID)
	t.r.bidsByBidder[bid.BidderID] = append(t.r.bidsByBidder[bid.BidderID], bid.BidID)

	t.undo = append(t.undo, func() {
		delete(t.r.bids, bid.BidID)
		t.r.bidsByList[bid.ListingID] = dropLast(t.r.bidsByList[bid.ListingID])
		t.r.bidsByBidder[bid.BidderID] = dropLast(t.r.bidsByBidder[bid.BidderID])
	})
	return nil
}

func (t *memTx) GetBid(_ context.Context, bidID string) (model.Bid, error) {
	b, ok := t.r.bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return b, nil
}

func (t *memTx) UpdateBidStatus(_ context.Context, bidID string, status model.BidStatus) error {
	prev, ok := t.r.bids[bidID]
	if !ok {
		return fmt.Errorf("update bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	next := prev
	next.Status = status
	t.r.bids[bidID] = next
	t.undo = append(t.undo, func() { t.r.bids[bidID] = prev })
	return nil
}

func (t *memTx) ListBidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	return t.r.bidsForListing(listingID), nil
}

func (t *memTx) LockBalances(ctx context.Context, userIDs ...string) error {
	for _, id := range sortedUnique(userIDs) {
		if _, err := t.GetBalanceForUpdate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) GetBalanceForUpdate(_ context.Context, userID string) (model.Balance, error) {
	if userID == "" {
		return model.Balance{}, fmt.Errorf("get balance: empty user id: %w", biddingerrors.ErrInvariantViolation)
	}
	if b, ok := t.r.balances[userID]; ok {
		return b, nil
	}

	now := time.Now().UTC()
	b := model.Balance{
		UserID:    userID,
		Available: decimal.Zero,
		Reserved:  decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.r.balances[userID] = b
	t.undo = append(t.undo, func() { delete(t.r.balances, userID) })
	return b, nil
}

func (t *memTx) UpdateBalance(_ context.Context, balance model.Balance) error {
	prev, ok := t.r.balances[balance.UserID]
	if !ok {
		return fmt.Errorf("update balance %s: row not locked: %w", balance.UserID, biddingerrors.ErrInvariantViolation)
	}
	if balance.Available.IsNegative() || balance.Reserved.IsNegative() {
		return fmt.Errorf("update balance %s: negative amount: %w", balance.UserID, biddingerrors.ErrInvariantViolation)
	}
	balance.UpdatedAt = time.Now().UTC()
	t.r.balances[balance.UserID] = balance
	t.undo = append(t.undo, func() { t.r.balances[balance.UserID] = prev })
	return nil
}

func (t *memTx) InsertReservation(_ context.Context, res model.Reservation) error {
	if _, exists := t.r.reservations[res.ReservationID]; exists {
		return fmt.Errorf("insert reservation %s: duplicate id", res.ReservationID)
	}
	t.r.reservations[res.ReservationID] = res
	t.undo = append(t.undo, func() { delete(t.r.reservations, res.ReservationID) })
	return nil
}

func (t *memTx) GetReservationForUpdate(_ context.Context, reservationID string) (model.Reservation, error) {
	res, ok := t.r.reservations[reservationID]
	if !ok {
		return model.Reservation{}, fmt.Errorf("get reservation %s: %w", reservationID, biddingerrors.ErrReservationNotFound)
	}
	return res, nil
}

func (t *memTx) UpdateReservationState(_ context.Context, reservationID string, state model.ReservationState) error {
	prev, ok := t.r.reservations[reservationID]
	if !ok {
		return fmt.Errorf("update reservation %s: %w", reservationID, biddingerrors.ErrReservationNotFound)
	}
	next := prev
	next.State = state
	next.UpdatedAt = time.Now().UTC()
	t.r.reservations[reservationID] = next
	t.undo = append(t.undo, func() { t.r.reservations[reservationID] = prev })
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, entry model.LedgerEntry) error {
	t.r.entries[entry.UserID] = append(t.r.entries[entry.UserID], entry)
	t.undo = append(t.undo, func() {
		t.r.entries[entry.UserID] = t.r.entries[entry.UserID][:len(t.r.entries[entry.UserID])-1]
	})
	return nil
}

func dropLast(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	return ids[:len(ids)-1]
}
