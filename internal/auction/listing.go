package auction

import (
	"context"
	"errors"
	"fmt"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/ledger"
	"auction-escrow/internal/metrics"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
	"auction-escrow/utils"

	"github.com/shopspring/decimal"
)

// CreateListing lists an item the seller owns, charging the flat listing fee
func (e *Engine) CreateListing(ctx context.Context, sellerID string, in CreateListingInput) (model.Listing, error) {
	if sellerID == "" || in.ItemID == "" {
		return model.Listing{}, fmt.Errorf("auction: %w - missing sellerID or itemID", biddingerrors.ErrInvalidListing)
	}
	if !ledger.ValidAmount(in.MinPrice) {
		return model.Listing{}, fmt.Errorf("auction: %w - min price must be positive with at most two decimals", biddingerrors.ErrInvalidListing)
	}

	now := e.now()
	if in.AuctionEndDate != nil && !in.AuctionEndDate.After(now) {
		return model.Listing{}, fmt.Errorf("auction: %w", biddingerrors.ErrInvalidAuctionWindow)
	}

	listing := model.Listing{
		ListingID:  utils.GenerateID(),
		ItemID:     in.ItemID,
		SellerID:   sellerID,
		MinPrice:   in.MinPrice,
		Status:     model.ListingStatusActive,
		ListingFee: e.cfg.ListingFee,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.AuctionEndDate != nil {
		end := in.AuctionEndDate.UTC()
		listing.AuctionEndDate = &end
	}

	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		item, err := tx.GetItemForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if item.OwnerID != sellerID {
			return fmt.Errorf("auction: %w - item %s", biddingerrors.ErrItemNotOwned, in.ItemID)
		}

		listed, err := tx.HasActiveListingForItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if listed {
			return fmt.Errorf("auction: %w - item %s", biddingerrors.ErrItemAlreadyListed, in.ItemID)
		}

		if err := e.ledger.LockUsers(ctx, tx, sellerID, e.cfg.FeeSinkAccount); err != nil {
			return err
		}
		if err := e.collectFee(ctx, tx, sellerID, e.cfg.ListingFee); err != nil {
			return err
		}
		return tx.InsertListing(ctx, listing)
	})
	if err != nil {
		return model.Listing{}, err
	}

	utils.Info("listing created", map[string]any{
		"listing_id": listing.ListingID,
		"item_id":    listing.ItemID,
		"seller_id":  sellerID,
		"timed":      listing.Timed(),
	})
	return listing, nil
}

// collectFee debits a flat fee and routes it to the fee sink
func (e *Engine) collectFee(ctx context.Context, tx repository.Tx, payerID string, fee decimal.Decimal) error {
	if err := e.ledger.DebitImmediate(ctx, tx, payerID, fee, model.EntryKindListingFee); err != nil {
		return err
	}
	if e.cfg.FeeSinkAccount == "" {
		return nil
	}
	return e.ledger.Credit(ctx, tx, e.cfg.FeeSinkAccount, fee, model.EntryKindFeeCredit)
}

// CancelListing lets the seller withdraw a listing that has not received any bid.
// The listing fee is not refunded.
func (e *Engine) CancelListing(ctx context.Context, listingID, sellerID string) (SettlementResult, error) {
	if listingID == "" || sellerID == "" {
		return SettlementResult{}, fmt.Errorf("auction: %w - missing listingID or sellerID", biddingerrors.ErrInvalidListing)
	}

	var result SettlementResult
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return fmt.Errorf("auction: %w", biddingerrors.ErrNotSeller)
		}
		if listing.Status.Terminal() {
			return fmt.Errorf("auction: %w - listing %s is %s", biddingerrors.ErrListingFinal, listingID, listing.Status)
		}
		if listing.CurrentHighestBidID != nil {
			return fmt.Errorf("auction: %w - listing %s", biddingerrors.ErrListingHasBids, listingID)
		}

		result, err = e.closeWithoutWinner(ctx, tx, listing, model.ListingStatusCancelled)
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}

	e.recordClose(result)
	return result, nil
}

// AdminCancelListing cancels an active listing regardless of bids, releasing every
// held reservation. Cancelling a listing that is already final is an error.
func (e *Engine) AdminCancelListing(ctx context.Context, listingID string) (SettlementResult, error) {
	if listingID == "" {
		return SettlementResult{}, fmt.Errorf("auction: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}

	var result SettlementResult
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status.Terminal() {
			return fmt.Errorf("auction: %w - listing %s is %s", biddingerrors.ErrListingFinal, listingID, listing.Status)
		}

		result, err = e.closeWithoutWinner(ctx, tx, listing, model.ListingStatusCancelled)
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}

	e.recordClose(result)
	return result, nil
}

// GetListing returns a listing by id
func (e *Engine) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	if listingID == "" {
		return model.Listing{}, fmt.Errorf("auction: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}

	listing, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		return model.Listing{}, fmt.Errorf("auction: failed to get listing %s: %w", listingID, err)
	}
	return listing, nil
}

// ListListings returns listings newest first, optionally filtered by status or seller
func (e *Engine) ListListings(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("auction: %w - unknown status %q", biddingerrors.ErrInvalidListing, filter.Status)
	}

	listings, err := e.store.ListListings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("auction: failed to list listings: %w", err)
	}
	return listings, nil
}

// RegisterItem records or reassigns an item in the ownership registry.
// An item cannot change hands this way while it is listed.
func (e *Engine) RegisterItem(ctx context.Context, item model.Item) (model.Item, error) {
	if item.ItemID == "" || item.OwnerID == "" {
		return model.Item{}, fmt.Errorf("auction: %w - missing itemID or ownerID", biddingerrors.ErrInvalidItem)
	}
	if !item.Kind.Valid() {
		return model.Item{}, fmt.Errorf("auction: %w - unknown kind %q", biddingerrors.ErrInvalidItem, item.Kind)
	}

	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetItemForUpdate(ctx, item.ItemID)
		switch {
		case err == nil:
			listed, err := tx.HasActiveListingForItem(ctx, item.ItemID)
			if err != nil {
				return err
			}
			if listed && existing.OwnerID != item.OwnerID {
				return fmt.Errorf("auction: %w - item %s", biddingerrors.ErrItemAlreadyListed, item.ItemID)
			}
			item.CreatedAt = existing.CreatedAt
		case errors.Is(err, biddingerrors.ErrItemNotFound):
			item.CreatedAt = e.now()
		default:
			return err
		}
		return tx.UpsertItem(ctx, item)
	})
	if err != nil {
		return model.Item{}, err
	}
	return item, nil
}

// Deposit funds a user's available balance
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (model.Balance, error) {
	bal, err := e.ledger.Deposit(ctx, userID, amount)
	if err != nil {
		return model.Balance{}, err
	}
	utils.Info("deposit credited", map[string]any{"user_id": userID, "amount": amount.String()})
	return bal, nil
}

// Balance returns a user's balance with its USD valuation
func (e *Engine) Balance(ctx context.Context, userID string) (model.Balance, error) {
	return e.ledger.Balance(ctx, userID)
}

// LedgerHistory returns the most recent balance journal entries for a user
func (e *Engine) LedgerHistory(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	return e.ledger.History(ctx, userID, limit)
}

func (e *Engine) recordClose(result SettlementResult) {
	metrics.RecordSettlement(string(result.Outcome))
	utils.Info("listing closed", map[string]any{
		"listing_id":            result.Listing.ListingID,
		"outcome":               result.Outcome,
		"released_reservations": result.ReleasedReservations,
	})
}
