package auction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/ledger"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const treasury = "treasury"

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	repo   *repository.MemoryRepo
	mu     sync.Mutex
	now    time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{repo: repository.NewMemoryRepo(), now: baseTime}
	l := ledger.New(f.repo, ledger.StaticPriceOracle{Price: decimal.NewFromInt(1)})
	f.engine = NewEngine(f.repo, l, cfg, WithClock(f.clock))
	return f
}

func defaultConfig() Config {
	return Config{ListingFee: dec("1"), PlatformFee: dec("1"), FeeSinkAccount: treasury}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, err := f.engine.Deposit(context.Background(), userID, dec(amount))
	require.NoError(t, err)
}

func (f *fixture) item(t *testing.T, itemID, ownerID string) {
	t.Helper()
	_, err := f.engine.RegisterItem(context.Background(), model.Item{ItemID: itemID, OwnerID: ownerID, Kind: model.ItemKindNFT})
	require.NoError(t, err)
}

func (f *fixture) timedListing(t *testing.T, sellerID, itemID, minPrice string, window time.Duration) model.Listing {
	t.Helper()
	end := f.clock().Add(window)
	l, err := f.engine.CreateListing(context.Background(), sellerID, CreateListingInput{
		ItemID:         itemID,
		MinPrice:       dec(minPrice),
		AuctionEndDate: &end,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) fixedListing(t *testing.T, sellerID, itemID, minPrice string) model.Listing {
	t.Helper()
	l, err := f.engine.CreateListing(context.Background(), sellerID, CreateListingInput{ItemID: itemID, MinPrice: dec(minPrice)})
	require.NoError(t, err)
	return l
}

func (f *fixture) requireBalance(t *testing.T, userID, available, reserved string) {
	t.Helper()
	bal, err := f.repo.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, bal.Available.Equal(dec(available)), "%s available: want %s, got %s", userID, available, bal.Available)
	require.True(t, bal.Reserved.Equal(dec(reserved)), "%s reserved: want %s, got %s", userID, reserved, bal.Reserved)
}

func (f *fixture) heldReservations(t *testing.T, listingID string) int {
	t.Helper()
	bids, err := f.repo.ListBidsByListing(context.Background(), listingID)
	require.NoError(t, err)
	held := 0
	for _, b := range bids {
		res, err := f.repo.GetReservation(context.Background(), b.ReservationID)
		require.NoError(t, err)
		if res.State == model.ReservationStateHeld {
			held++
		}
	}
	return held
}

func TestEngine_TimedAuctionSettlement(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "20")
	f.fund(t, "b2", "50")

	listing := f.timedListing(t, "seller", "nft-1", "10", time.Hour)
	f.requireBalance(t, "seller", "4", "0")
	f.requireBalance(t, treasury, "1", "0")

	r1, err := f.engine.PlaceBid(ctx, listing.ListingID, "b1", dec("10"))
	require.NoError(t, err)
	require.Equal(t, "10.01", r1.NextMinimumBid.StringFixed(2))
	f.requireBalance(t, "b1", "9", "11")

	_, err = f.engine.PlaceBid(ctx, listing.ListingID, "b2", dec("10.5"))
	require.NoError(t, err)
	f.requireBalance(t, "b1", "20", "0")
	f.requireBalance(t, "b2", "38.5", "11.5")

	f.advance(time.Hour)
	result, err := f.engine.SettleListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, result.Outcome)
	require.NotNil(t, result.WinningBid)
	require.Equal(t, "b2", result.WinningBid.BidderID)
	require.Equal(t, model.BidStatusWon, result.WinningBid.Status)
	require.Equal(t, model.ListingStatusSettled, result.Listing.Status)
	require.NotNil(t, result.Listing.ClosedAt)

	f.requireBalance(t, "b2", "38.5", "0")
	f.requireBalance(t, "b1", "20", "0")
	f.requireBalance(t, "seller", "14.5", "0")
	f.requireBalance(t, treasury, "2", "0")

	item, err := f.repo.GetItem(ctx, "nft-1")
	require.NoError(t, err)
	require.Equal(t, "b2", item.OwnerID)

	bids, err := f.engine.GetBidsForListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, model.BidStatusWon, bids[0].Status)
	require.Equal(t, model.BidStatusReleased, bids[1].Status)
	require.Zero(t, f.heldReservations(t, listing.ListingID))
}

func TestEngine_ExpiredWithoutBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")

	listing := f.timedListing(t, "seller", "nft-1", "10", time.Minute)
	f.advance(time.Minute)

	result, err := f.engine.SettleListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, OutcomeExpiredNoBids, result.Outcome)
	require.Equal(t, model.ListingStatusExpiredNoBids, result.Listing.Status)
	require.Nil(t, result.WinningBid)

	item, err := f.repo.GetItem(ctx, "nft-1")
	require.NoError(t, err)
	require.Equal(t, "seller", item.OwnerID)
	f.requireBalance(t, "seller", "4", "0")

	// the item can be listed again once the old listing is closed
	f.timedListing(t, "seller", "nft-1", "10", time.Hour)
}

func TestEngine_BidTooLowReportsMinimum(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "100")
	f.fund(t, "b2", "100")

	listing := f.timedListing(t, "seller", "nft-1", "5", time.Hour)
	_, err := f.engine.PlaceBid(ctx, listing.ListingID, "b1", dec("10"))
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, listing.ListingID, "b2", dec("10.005"))
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	var tooLow *biddingerrors.BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	require.Equal(t, "10.01", tooLow.Minimum.StringFixed(2))
	f.requireBalance(t, "b2", "100", "0")
}

func TestEngine_InsufficientBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "poor", "5")

	listing := f.timedListing(t, "seller", "nft-1", "10", time.Hour)
	_, err := f.engine.PlaceBid(ctx, listing.ListingID, "poor", dec("10"))
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientBalance)
	f.requireBalance(t, "poor", "5", "0")

	bids, err := f.engine.GetBidsByUser(ctx, "poor")
	require.NoError(t, err)
	require.Empty(t, bids)

	l, err := f.engine.GetListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Nil(t, l.CurrentHighestBidID)
}

func TestEngine_PlaceBidValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.item(t, "nft-2", "seller")
	f.fund(t, "seller", "10")
	f.fund(t, "b1", "100")

	listing := f.timedListing(t, "seller", "nft-1", "10", time.Hour)
	shortLived := f.timedListing(t, "seller", "nft-2", "10", time.Minute)
	f.advance(time.Minute)

	tests := []struct {
		name      string
		listingID string
		bidderID  string
		amount    string
		wantErr   error
	}{
		{name: "empty_listing", listingID: "", bidderID: "b1", amount: "10", wantErr: biddingerrors.ErrInvalidBid},
		{name: "empty_bidder", listingID: listing.ListingID, bidderID: "", amount: "10", wantErr: biddingerrors.ErrInvalidBid},
		{name: "zero_amount", listingID: listing.ListingID, bidderID: "b1", amount: "0", wantErr: biddingerrors.ErrInvalidBid},
		{name: "negative_amount", listingID: listing.ListingID, bidderID: "b1", amount: "-5", wantErr: biddingerrors.ErrInvalidBid},
		{name: "below_min_price", listingID: listing.ListingID, bidderID: "b1", amount: "9.99", wantErr: biddingerrors.ErrBidTooLow},
		{name: "sub_cent_above_minimum", listingID: listing.ListingID, bidderID: "b1", amount: "10.001", wantErr: biddingerrors.ErrInvalidBid},
		{name: "self_bid", listingID: listing.ListingID, bidderID: "seller", amount: "10", wantErr: biddingerrors.ErrSelfBiddingNotAllowed},
		{name: "unknown_listing", listingID: "missing", bidderID: "b1", amount: "10", wantErr: biddingerrors.ErrListingNotFound},
		{name: "window_closed", listingID: shortLived.ListingID, bidderID: "b1", amount: "10", wantErr: biddingerrors.ErrAuctionExpired},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.engine.PlaceBid(ctx, tc.listingID, tc.bidderID, dec(tc.amount))
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEngine_BidsAreStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "100")
	f.fund(t, "b2", "100")

	listing := f.fixedListing(t, "seller", "nft-1", "10")

	amounts := []struct {
		bidder string
		amount string
		ok     bool
	}{
		{"b1", "10", true},
		{"b2", "10", false},
		{"b2", "10.01", true},
		{"b1", "10.01", false},
		{"b1", "25", true},
		// raising your own bid needs only the new amount, not both
		{"b1", "98", true},
		{"b2", "99.50", false},
	}
	for _, a := range amounts {
		_, err := f.engine.PlaceBid(ctx, listing.ListingID, a.bidder, dec(a.amount))
		if a.ok {
			require.NoError(t, err, "bid %s by %s", a.amount, a.bidder)
		} else {
			require.Error(t, err, "bid %s by %s", a.amount, a.bidder)
		}
	}

	winning, err := f.engine.GetWinningBid(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, "b1", winning.BidderID)
	require.True(t, winning.Amount.Equal(dec("98")))

	f.requireBalance(t, "b1", "1", "99")
	f.requireBalance(t, "b2", "100", "0")
	require.Equal(t, 1, f.heldReservations(t, listing.ListingID))

	mine, err := f.engine.GetBidsByUser(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.True(t, mine[0].Amount.Equal(dec("98")))
	require.Equal(t, model.BidStatusActive, mine[0].Status)
	require.Equal(t, model.BidStatusOutbid, mine[1].Status)
}

func TestEngine_GetWinningBidWithoutBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	listing := f.fixedListing(t, "seller", "nft-1", "10")

	_, err := f.engine.GetWinningBid(ctx, listing.ListingID)
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	_, err = f.engine.GetWinningBid(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

	_, err = f.engine.GetBidsForListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
}

func TestEngine_CreateListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.item(t, "nft-2", "seller")
	f.fund(t, "seller", "1")

	past := baseTime.Add(-time.Second)

	tests := []struct {
		name    string
		seller  string
		in      CreateListingInput
		wantErr error
	}{
		{name: "missing_item", seller: "seller", in: CreateListingInput{MinPrice: dec("1")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "zero_price", seller: "seller", in: CreateListingInput{ItemID: "nft-1", MinPrice: dec("0")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "sub_cent_price", seller: "seller", in: CreateListingInput{ItemID: "nft-1", MinPrice: dec("1.005")}, wantErr: biddingerrors.ErrInvalidListing},
		{name: "past_end_date", seller: "seller", in: CreateListingInput{ItemID: "nft-1", MinPrice: dec("1"), AuctionEndDate: &past}, wantErr: biddingerrors.ErrInvalidAuctionWindow},
		{name: "unknown_item", seller: "seller", in: CreateListingInput{ItemID: "nope", MinPrice: dec("1")}, wantErr: biddingerrors.ErrItemNotFound},
		{name: "not_owner", seller: "mallory", in: CreateListingInput{ItemID: "nft-1", MinPrice: dec("1")}, wantErr: biddingerrors.ErrItemNotOwned},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateListing(ctx, tc.seller, tc.in)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	f.fixedListing(t, "seller", "nft-1", "10")
	f.requireBalance(t, "seller", "0", "0")

	_, err := f.engine.CreateListing(ctx, "seller", CreateListingInput{ItemID: "nft-1", MinPrice: dec("10")})
	require.ErrorIs(t, err, biddingerrors.ErrItemAlreadyListed)

	// the listing fee cannot be paid
	_, err = f.engine.CreateListing(ctx, "seller", CreateListingInput{ItemID: "nft-2", MinPrice: dec("10")})
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientBalance)

	listings, err := f.engine.ListListings(ctx, repository.ListingFilter{SellerID: "seller"})
	require.NoError(t, err)
	require.Len(t, listings, 1)

	_, err = f.engine.ListListings(ctx, repository.ListingFilter{Status: "bogus"})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)
}

func TestEngine_ListingFeeBurnedWithoutSink(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{ListingFee: dec("2"), PlatformFee: dec("1")})
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "2")
	f.fund(t, "b1", "20")

	listing := f.fixedListing(t, "seller", "nft-1", "5")
	f.requireBalance(t, "seller", "0", "0")

	receipt, err := f.engine.PlaceBid(ctx, listing.ListingID, "b1", dec("5"))
	require.NoError(t, err)

	_, err = f.engine.AcceptBid(ctx, listing.ListingID, "seller", receipt.Bid.BidID)
	require.NoError(t, err)
	f.requireBalance(t, "seller", "5", "0")
	f.requireBalance(t, "b1", "14", "0")

	entries, err := f.engine.LedgerHistory(ctx, "b1", 1)
	require.NoError(t, err)
	require.Equal(t, model.EntryKindFeeBurn, entries[0].Kind)
}

func TestEngine_AcceptBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.item(t, "nft-2", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "100")
	f.fund(t, "b2", "100")

	fixed := f.fixedListing(t, "seller", "nft-1", "10")
	timed := f.timedListing(t, "seller", "nft-2", "10", time.Hour)

	first, err := f.engine.PlaceBid(ctx, fixed.ListingID, "b1", dec("10"))
	require.NoError(t, err)
	top, err := f.engine.PlaceBid(ctx, fixed.ListingID, "b2", dec("15"))
	require.NoError(t, err)
	timedBid, err := f.engine.PlaceBid(ctx, timed.ListingID, "b1", dec("10"))
	require.NoError(t, err)

	_, err = f.engine.AcceptBid(ctx, fixed.ListingID, "b1", top.Bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrNotSeller)
	_, err = f.engine.AcceptBid(ctx, fixed.ListingID, "seller", first.Bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrBidNotAcceptable)
	_, err = f.engine.AcceptBid(ctx, fixed.ListingID, "seller", timedBid.Bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	_, err = f.engine.AcceptBid(ctx, timed.ListingID, "seller", timedBid.Bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrNotFixedPrice)

	result, err := f.engine.AcceptBid(ctx, fixed.ListingID, "seller", top.Bid.BidID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, result.Outcome)
	require.Equal(t, top.Bid.BidID, result.WinningBid.BidID)

	f.requireBalance(t, "seller", "18", "0")
	f.requireBalance(t, "b2", "84", "0")
	// b1 still escrows the timed auction bid only
	f.requireBalance(t, "b1", "89", "11")

	_, err = f.engine.AcceptBid(ctx, fixed.ListingID, "seller", top.Bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrListingNotActive)

	_, err = f.engine.SettleListing(ctx, fixed.ListingID)
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, fixed.ListingID, "b1", dec("50"))
	require.ErrorIs(t, err, biddingerrors.ErrListingNotActive)
}

func TestEngine_SettleListingGuards(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.item(t, "nft-2", "seller")
	f.fund(t, "seller", "5")

	fixed := f.fixedListing(t, "seller", "nft-1", "10")
	timed := f.timedListing(t, "seller", "nft-2", "10", time.Hour)

	_, err := f.engine.SettleListing(ctx, fixed.ListingID)
	require.ErrorIs(t, err, biddingerrors.ErrNotTimedAuction)
	_, err = f.engine.SettleListing(ctx, timed.ListingID)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotEnded)
	_, err = f.engine.SettleListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
	_, err = f.engine.SettleListing(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidListing)
}

func TestEngine_SettleIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "50")

	listing := f.timedListing(t, "seller", "nft-1", "10", time.Hour)
	_, err := f.engine.PlaceBid(ctx, listing.ListingID, "b1", dec("20"))
	require.NoError(t, err)
	f.advance(2 * time.Hour)

	first, err := f.engine.SettleListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.False(t, first.AlreadyFinal)

	entriesBefore, err := f.engine.LedgerHistory(ctx, "seller", 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := f.engine.SettleListing(ctx, listing.ListingID)
		require.NoError(t, err)
		require.True(t, again.AlreadyFinal)
		require.Equal(t, OutcomeAlreadyFinal, again.Outcome)
		require.Equal(t, model.ListingStatusSettled, again.Listing.Status)
	}

	entriesAfter, err := f.engine.LedgerHistory(ctx, "seller", 0)
	require.NoError(t, err)
	require.Len(t, entriesAfter, len(entriesBefore))
	f.requireBalance(t, "seller", "24", "0")
	f.requireBalance(t, "b1", "29", "0")
}

func TestEngine_CancelListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.item(t, "nft-1", "seller")
	f.item(t, "nft-2", "seller")
	f.fund(t, "seller", "5")
	f.fund(t, "b1", "50")

	quiet := f.fixedListing(t, "seller", "nft-1", "10")
	busy := f.fixedListing(t, "seller", "nft-2", "10")
	_, err := f.engine.PlaceBid(ctx, busy.ListingID, "b1", dec("10"))
	require.NoError(t, err)

	_, err = f.engine.CancelListing(ctx, quiet.ListingID, "b1")
	require.ErrorIs(t, err, biddingerrors.ErrNotSeller)
	_, err = f.engine.CancelListing(ctx, busy.ListingID, "seller")
	require.ErrorIs(t, err, biddingerrors.ErrListingHasBids)

	result, err := f.engine.CancelListing(ctx, quiet.ListingID, "seller")
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelled, result.Outcome)
	require.Equal(t, model.ListingStatusCancelled, result.Listing.Status)

	_, err = f.engine.CancelListing(ctx, quiet.ListingID, "seller")
	require.ErrorIs(t, err, biddingerrors.ErrListingFinal)

	// listing fees are kept after a cancel
	f.requireBalance(t, "seller", "3", "0")

	// an admin may cancel regardless of bids and every hold is returned
	result, err = f.engine.AdminCancelListing(ctx, busy.ListingID)
	require.NoError(t, err)
	require.Equal(t, 1, result.ReleasedReservations)
	f.requireBalance(t, "b1", "50", "0")
	require.Zero(t, f.heldReservations(t, busy.ListingID))

	item, err := f.repo.GetItem(ctx, "nft-2")
	require.NoError(t, err)
	require.Equal(t, "seller", item.OwnerID)

	_, err = f.engine.AdminCancelListing(ctx, busy.ListingID)
	require.ErrorIs(t, err, biddingerrors.ErrListingFinal)
}

func TestEngine_RegisterItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.fund(t, "alice", "5")

	_, err := f.engine.RegisterItem(ctx, model.Item{ItemID: "x", OwnerID: "alice", Kind: "painting"})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidItem)
	_, err = f.engine.RegisterItem(ctx, model.Item{ItemID: "", OwnerID: "alice", Kind: model.ItemKindMeme})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidItem)

	created, err := f.engine.RegisterItem(ctx, model.Item{ItemID: "meme-1", OwnerID: "alice", Kind: model.ItemKindMeme})
	require.NoError(t, err)
	require.Equal(t, baseTime, created.CreatedAt)

	f.advance(time.Minute)
	moved, err := f.engine.RegisterItem(ctx, model.Item{ItemID: "meme-1", OwnerID: "bob", Kind: model.ItemKindMeme})
	require.NoError(t, err)
	require.Equal(t, baseTime, moved.CreatedAt)

	_, err = f.engine.RegisterItem(ctx, model.Item{ItemID: "meme-1", OwnerID: "alice", Kind: model.ItemKindMeme})
	require.NoError(t, err)
	f.fixedListing(t, "alice", "meme-1", "3")

	_, err = f.engine.RegisterItem(ctx, model.Item{ItemID: "meme-1", OwnerID: "bob", Kind: model.ItemKindMeme})
	require.ErrorIs(t, err, biddingerrors.ErrItemAlreadyListed)
}

func TestEngine_BalanceAndDeposit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	bal, err := f.engine.Deposit(ctx, "alice", dec("12.34"))
	require.NoError(t, err)
	require.Equal(t, "12.34", bal.USDValue.StringFixed(2))

	_, err = f.engine.Deposit(ctx, "alice", dec("-1"))
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAmount)

	bal, err = f.engine.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.Available.Equal(dec("12.34")))

	unknown, err := f.engine.Balance(ctx, "nobody")
	require.NoError(t, err)
	require.True(t, unknown.Total().IsZero())
}

// Concurrent bidders on the same listings must never create or lose tokens,
// and every listing must end with at most one held reservation
func TestEngine_ConcurrentBiddingConservesFunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	const (
		listings = 3
		bidders  = 10
		rounds   = 20
	)

	f.fund(t, "seller", "10")
	ids := make([]string, 0, listings)
	for i := 0; i < listings; i++ {
		itemID := fmt.Sprintf("nft-%d", i)
		f.item(t, itemID, "seller")
		ids = append(ids, f.timedListing(t, "seller", itemID, "1", time.Hour).ListingID)
	}
	users := make([]string, 0, bidders)
	for i := 0; i < bidders; i++ {
		u := fmt.Sprintf("user-%d", i)
		users = append(users, u)
		f.fund(t, u, "500")
	}
	totalSupply := dec("10").Add(dec("500").Mul(decimal.NewFromInt(bidders)))

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				listingID := ids[(i+r)%listings]
				amount := decimal.NewFromInt(int64(r*bidders + i + 1))
				_, _ = f.engine.PlaceBid(ctx, listingID, u, amount)
			}
		}(i, u)
	}
	wg.Wait()

	for _, id := range ids {
		require.LessOrEqual(t, f.heldReservations(t, id), 1)
	}

	f.advance(time.Hour)
	for _, id := range ids {
		_, err := f.engine.SettleListing(ctx, id)
		require.NoError(t, err)
		require.Zero(t, f.heldReservations(t, id))
	}

	sum := decimal.Zero
	for _, u := range append(users, "seller", treasury) {
		bal, err := f.repo.GetBalance(ctx, u)
		require.NoError(t, err)
		require.True(t, bal.Reserved.IsZero(), "%s still holds %s", u, bal.Reserved)
		sum = sum.Add(bal.Total())
	}
	require.True(t, sum.Equal(totalSupply), "supply changed: want %s, got %s", totalSupply, sum)
}
