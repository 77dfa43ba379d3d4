package auction

import (
	"context"
	"fmt"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/ledger"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
)

// SettleListing closes a timed auction whose window has elapsed. Settling a
// listing that is already final is a no-op, so the scheduler may run it repeatedly.
func (e *Engine) SettleListing(ctx context.Context, listingID string) (SettlementResult, error) {
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
			result = SettlementResult{Listing: listing, Outcome: OutcomeAlreadyFinal, AlreadyFinal: true}
			return nil
		}
		if !listing.Timed() {
			return fmt.Errorf("auction: %w - listing %s", biddingerrors.ErrNotTimedAuction, listingID)
		}
		if !listing.Expired(e.now()) {
			return fmt.Errorf("auction: %w - listing %s", biddingerrors.ErrAuctionNotEnded, listingID)
		}

		if listing.CurrentHighestBidID == nil {
			result, err = e.closeWithoutWinner(ctx, tx, listing, model.ListingStatusExpiredNoBids)
			return err
		}

		winner, err := tx.GetBid(ctx, *listing.CurrentHighestBidID)
		if err != nil {
			return err
		}
		result, err = e.closeWithWinner(ctx, tx, listing, winner)
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}

	if !result.AlreadyFinal {
		e.recordClose(result)
	}
	return result, nil
}

// AcceptBid lets the seller of a fixed-price listing take the current highest bid
func (e *Engine) AcceptBid(ctx context.Context, listingID, sellerID, bidID string) (SettlementResult, error) {
	if listingID == "" || sellerID == "" || bidID == "" {
		return SettlementResult{}, fmt.Errorf("auction: %w - missing listingID, sellerID or bidID", biddingerrors.ErrInvalidBid)
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
		if listing.Status != model.ListingStatusActive {
			return fmt.Errorf("auction: %w - listing %s is %s", biddingerrors.ErrListingNotActive, listingID, listing.Status)
		}
		if listing.Timed() {
			return fmt.Errorf("auction: %w - listing %s settles at its end date", biddingerrors.ErrNotFixedPrice, listingID)
		}

		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.ListingID != listingID {
			return fmt.Errorf("auction: bid %s on listing %s: %w", bidID, listingID, biddingerrors.ErrBidNotFound)
		}
		if bid.Status != model.BidStatusActive || listing.CurrentHighestBidID == nil || *listing.CurrentHighestBidID != bidID {
			return fmt.Errorf("auction: %w - bid %s is %s", biddingerrors.ErrBidNotAcceptable, bidID, bid.Status)
		}

		result, err = e.closeWithWinner(ctx, tx, listing, bid)
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}

	e.recordClose(result)
	return result, nil
}

// closeWithWinner commits the winning reservation to the seller and the fee sink,
// hands the item over and releases every other bid. Lock order is listing, item,
// then balances.
func (e *Engine) closeWithWinner(ctx context.Context, tx repository.Tx, listing model.Listing, winner model.Bid) (SettlementResult, error) {
	if winner.Status != model.BidStatusActive {
		return SettlementResult{}, fmt.Errorf("auction: winning bid %s is %s: %w",
			winner.BidID, winner.Status, biddingerrors.ErrInvariantViolation)
	}

	item, err := tx.GetItemForUpdate(ctx, listing.ItemID)
	if err != nil {
		return SettlementResult{}, err
	}
	if item.OwnerID != listing.SellerID {
		return SettlementResult{}, fmt.Errorf("auction: item %s changed owner while listed: %w",
			listing.ItemID, biddingerrors.ErrInvariantViolation)
	}

	bids, err := tx.ListBidsByListing(ctx, listing.ListingID)
	if err != nil {
		return SettlementResult{}, err
	}
	users := append(openBidders(bids), listing.SellerID, e.cfg.FeeSinkAccount)
	if err := e.ledger.LockUsers(ctx, tx, users...); err != nil {
		return SettlementResult{}, err
	}

	err = e.ledger.Commit(ctx, tx, winner.ReservationID,
		ledger.Payout{UserID: listing.SellerID, Amount: winner.Amount, Kind: model.EntryKindCommitCredit},
		ledger.Payout{UserID: e.cfg.FeeSinkAccount, Amount: winner.Fee, Kind: model.EntryKindFeeCredit},
	)
	if err != nil {
		return SettlementResult{}, err
	}
	if err := tx.UpdateBidStatus(ctx, winner.BidID, model.BidStatusWon); err != nil {
		return SettlementResult{}, err
	}

	released, err := e.releaseOpenBids(ctx, tx, bids, winner.BidID)
	if err != nil {
		return SettlementResult{}, err
	}

	if err := tx.UpdateItemOwner(ctx, listing.ItemID, winner.BidderID); err != nil {
		return SettlementResult{}, err
	}

	now := e.now()
	listing.Status = model.ListingStatusSettled
	listing.UpdatedAt = now
	listing.ClosedAt = &now
	if err := tx.UpdateListing(ctx, listing); err != nil {
		return SettlementResult{}, err
	}

	winner.Status = model.BidStatusWon
	return SettlementResult{
		Listing:              listing,
		WinningBid:           &winner,
		Outcome:              OutcomeSettled,
		ReleasedReservations: released,
	}, nil
}

// closeWithoutWinner moves a listing to a terminal status with no sale,
// releasing whatever escrow its bids still hold
func (e *Engine) closeWithoutWinner(ctx context.Context, tx repository.Tx, listing model.Listing, status model.ListingStatus) (SettlementResult, error) {
	bids, err := tx.ListBidsByListing(ctx, listing.ListingID)
	if err != nil {
		return SettlementResult{}, err
	}
	if err := e.ledger.LockUsers(ctx, tx, openBidders(bids)...); err != nil {
		return SettlementResult{}, err
	}

	released, err := e.releaseOpenBids(ctx, tx, bids, "")
	if err != nil {
		return SettlementResult{}, err
	}

	now := e.now()
	listing.Status = status
	listing.UpdatedAt = now
	listing.ClosedAt = &now
	if err := tx.UpdateListing(ctx, listing); err != nil {
		return SettlementResult{}, err
	}

	outcome := OutcomeCancelled
	if status == model.ListingStatusExpiredNoBids {
		outcome = OutcomeExpiredNoBids
	}
	return SettlementResult{Listing: listing, Outcome: outcome, ReleasedReservations: released}, nil
}

// releaseOpenBids marks every bid except keepBidID as released and returns any
// reservation among them that is still held
func (e *Engine) releaseOpenBids(ctx context.Context, tx repository.Tx, bids []model.Bid, keepBidID string) (int, error) {
	released := 0
	for _, b := range bids {
		if b.BidID == keepBidID {
			continue
		}
		if b.Status != model.BidStatusActive && b.Status != model.BidStatusOutbid {
			continue
		}

		res, err := tx.GetReservationForUpdate(ctx, b.ReservationID)
		if err != nil {
			return 0, err
		}
		if res.State == model.ReservationStateHeld {
			if err := e.ledger.Release(ctx, tx, res.ReservationID); err != nil {
				return 0, err
			}
			released++
		}
		if err := tx.UpdateBidStatus(ctx, b.BidID, model.BidStatusReleased); err != nil {
			return 0, err
		}
	}
	return released, nil
}

func openBidders(bids []model.Bid) []string {
	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		if b.Status == model.BidStatusActive || b.Status == model.BidStatusOutbid {
			ids = append(ids, b.BidderID)
		}
	}
	return ids
}
