package auction

import (
	"context"
	"fmt"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/metrics"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
	"auction-escrow/utils"

	"github.com/shopspring/decimal"
)

// PlaceBid validates and records a user's bid for a listing, escrowing the
// amount plus the platform fee and releasing the bid it displaces
func (e *Engine) PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (BidReceipt, error) {
	receipt, err := e.placeBid(ctx, listingID, bidderID, amount)
	metrics.RecordBid(bidOutcome(err))
	return receipt, err
}

func (e *Engine) placeBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (BidReceipt, error) {
	if listingID == "" || bidderID == "" {
		return BidReceipt{}, fmt.Errorf("auction: %w - missing listingID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return BidReceipt{}, fmt.Errorf("auction: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	var receipt BidReceipt
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		listing, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}

		// the expiry check runs under the listing lock, so a bid racing the
		// scheduler is either admitted first or rejected here
		now := e.now()
		if listing.Status != model.ListingStatusActive {
			return fmt.Errorf("auction: %w - listing %s is %s", biddingerrors.ErrListingNotActive, listingID, listing.Status)
		}
		if listing.Expired(now) {
			return fmt.Errorf("auction: %w - listing %s closed at %s", biddingerrors.ErrAuctionExpired,
				listingID, listing.AuctionEndDate.Format("2006-01-02T15:04:05Z07:00"))
		}
		if bidderID == listing.SellerID {
			return fmt.Errorf("auction: %w", biddingerrors.ErrSelfBiddingNotAllowed)
		}

		var previous *model.Bid
		if listing.CurrentHighestBidID != nil {
			b, err := tx.GetBid(ctx, *listing.CurrentHighestBidID)
			if err != nil {
				return err
			}
			previous = &b
		}

		minimum := MinimumBid(listing, previous)
		if amount.LessThan(minimum) {
			return fmt.Errorf("auction: %w", biddingerrors.NewBidTooLow(minimum))
		}
		if !amount.Equal(amount.Round(2)) {
			return fmt.Errorf("auction: %w - amount must be a multiple of %s", biddingerrors.ErrInvalidBid, MinBidIncrement)
		}

		lock := []string{bidderID}
		if previous != nil {
			lock = append(lock, previous.BidderID)
		}
		if err := e.ledger.LockUsers(ctx, tx, lock...); err != nil {
			return err
		}

		// releasing first lets a bidder raise their own bid without holding both amounts
		if previous != nil {
			if err := tx.UpdateBidStatus(ctx, previous.BidID, model.BidStatusOutbid); err != nil {
				return err
			}
			if err := e.ledger.Release(ctx, tx, previous.ReservationID); err != nil {
				return err
			}
		}

		bidID := utils.GenerateID()
		res, err := e.ledger.Reserve(ctx, tx, bidderID, amount.Add(e.cfg.PlatformFee), model.ReservationPurposeBid, bidID)
		if err != nil {
			return err
		}

		bid := model.Bid{
			BidID:         bidID,
			ListingID:     listingID,
			BidderID:      bidderID,
			Amount:        amount,
			Fee:           e.cfg.PlatformFee,
			ReservationID: res.ReservationID,
			Status:        model.BidStatusActive,
			CreatedAt:     now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}

		listing.CurrentHighestBidID = &bid.BidID
		listing.UpdatedAt = now
		if err := tx.UpdateListing(ctx, listing); err != nil {
			return err
		}

		receipt = BidReceipt{Bid: bid, NextMinimumBid: amount.Add(MinBidIncrement)}
		return nil
	})
	if err != nil {
		return BidReceipt{}, err
	}
	return receipt, nil
}

// MinimumBid is the smallest amount the listing accepts given its current highest bid
func MinimumBid(listing model.Listing, highest *model.Bid) decimal.Decimal {
	if highest == nil {
		return listing.MinPrice
	}
	return decimal.Max(highest.Amount.Add(MinBidIncrement), listing.MinPrice)
}

// GetBidsForListing returns all bids for a listing, highest first
func (e *Engine) GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if listingID == "" {
		return nil, fmt.Errorf("auction: %w - empty listing ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := e.store.ListBidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("auction: failed to get bids for listing %s: %w", listingID, err)
	}
	return bids, nil
}

// GetWinningBid returns the current highest bid of a listing
func (e *Engine) GetWinningBid(ctx context.Context, listingID string) (model.Bid, error) {
	if listingID == "" {
		return model.Bid{}, fmt.Errorf("auction: %w - empty listing ID", biddingerrors.ErrInvalidBid)
	}

	listing, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("auction: failed to get winning bid for listing %s: %w", listingID, err)
	}
	if listing.CurrentHighestBidID == nil {
		return model.Bid{}, fmt.Errorf("auction: listing %s: %w", listingID, biddingerrors.ErrNoBids)
	}

	bids, err := e.store.ListBidsByListing(ctx, listingID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("auction: failed to get winning bid for listing %s: %w", listingID, err)
	}
	for _, b := range bids {
		if b.BidID == *listing.CurrentHighestBidID {
			return b, nil
		}
	}
	return model.Bid{}, fmt.Errorf("auction: highest bid %s missing: %w", *listing.CurrentHighestBidID, biddingerrors.ErrInvariantViolation)
}

// GetBidsByUser returns every bid a user has placed, newest first
func (e *Engine) GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("auction: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := e.store.ListBidsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auction: failed to get bids for user %s: %w", userID, err)
	}
	return bids, nil
}
