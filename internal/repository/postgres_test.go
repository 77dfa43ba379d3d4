package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/database/testutil"
	"auction-escrow/internal/ledger"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *repository.PostgresRepo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	td := testutil.SetupTestDatabase(t)
	return repository.NewPostgresRepo(td.DB)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostgresRepo_AuctionLifecycle(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	l := ledger.New(repo, ledger.StaticPriceOracle{Price: dec("2")})
	engine := auction.NewEngine(repo, l, auction.Config{
		ListingFee:     dec("1"),
		PlatformFee:    dec("0.50"),
		FeeSinkAccount: "treasury",
	}, auction.WithClock(func() time.Time { return clock }))

	_, err := engine.RegisterItem(ctx, model.Item{ItemID: "nft-1", OwnerID: "seller", Kind: model.ItemKindNFT, Title: "Ape"})
	require.NoError(t, err)
	for user, amount := range map[string]string{"seller": "5", "alice": "100", "bob": "100"} {
		_, err := engine.Deposit(ctx, user, dec(amount))
		require.NoError(t, err)
	}

	end := now.Add(time.Hour)
	listing, err := engine.CreateListing(ctx, "seller", auction.CreateListingInput{
		ItemID:         "nft-1",
		MinPrice:       dec("10"),
		AuctionEndDate: &end,
	})
	require.NoError(t, err)

	_, err = engine.CreateListing(ctx, "seller", auction.CreateListingInput{ItemID: "nft-1", MinPrice: dec("10")})
	require.ErrorIs(t, err, biddingerrors.ErrItemAlreadyListed)

	_, err = engine.PlaceBid(ctx, listing.ListingID, "alice", dec("10"))
	require.NoError(t, err)
	_, err = engine.PlaceBid(ctx, listing.ListingID, "bob", dec("10"))
	var tooLow *biddingerrors.BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	require.Equal(t, "10.01", tooLow.Minimum.StringFixed(2))

	receipt, err := engine.PlaceBid(ctx, listing.ListingID, "bob", dec("12.50"))
	require.NoError(t, err)

	alice, err := repo.GetBalance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, alice.Available.Equal(dec("100")), "alice available %s", alice.Available)
	require.True(t, alice.Reserved.IsZero())

	bids, err := repo.ListBidsByListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Equal(t, receipt.Bid.BidID, bids[0].BidID)
	require.Equal(t, model.BidStatusOutbid, bids[1].Status)

	_, err = engine.SettleListing(ctx, listing.ListingID)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotEnded)

	clock = end
	due, err := repo.ListDueListingIDs(ctx, clock, 10)
	require.NoError(t, err)
	require.Equal(t, []string{listing.ListingID}, due)

	result, err := engine.SettleListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, auction.OutcomeSettled, result.Outcome)

	again, err := engine.SettleListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.True(t, again.AlreadyFinal)

	item, err := repo.GetItem(ctx, "nft-1")
	require.NoError(t, err)
	require.Equal(t, "bob", item.OwnerID)

	expect := map[string][2]string{
		"seller":   {"16.50", "0"},
		"bob":      {"87.00", "0"},
		"alice":    {"100", "0"},
		"treasury": {"1.50", "0"},
	}
	for user, want := range expect {
		bal, err := repo.GetBalance(ctx, user)
		require.NoError(t, err)
		require.True(t, bal.Available.Equal(dec(want[0])), "%s available %s", user, bal.Available)
		require.True(t, bal.Reserved.Equal(dec(want[1])), "%s reserved %s", user, bal.Reserved)
	}

	entries, err := repo.ListLedgerEntries(ctx, "bob", 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, model.EntryKindCommitDebit, entries[0].Kind)

	res, err := repo.GetReservation(ctx, receipt.Bid.ReservationID)
	require.NoError(t, err)
	require.Equal(t, model.ReservationStateCommitted, res.State)

	listings, err := repo.ListListings(ctx, repository.ListingFilter{Status: model.ListingStatusSettled})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.NotNil(t, listings[0].ClosedAt)
}

func TestPostgresRepo_WithTxRollsBack(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBalanceForUpdate(ctx, "alice")
		if err != nil {
			return err
		}
		b.Available = dec("50")
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		return biddingerrors.ErrInsufficientBalance
	})
	require.ErrorIs(t, err, biddingerrors.ErrInsufficientBalance)

	bal, err := repo.GetBalance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.Available.IsZero())
}

// Many bidders racing on one listing must leave exactly one active bid and no
// stray escrow
func TestPostgresRepo_ConcurrentBids(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	l := ledger.New(repo, nil)
	engine := auction.NewEngine(repo, l, auction.Config{ListingFee: dec("0"), PlatformFee: dec("1")})

	_, err := engine.RegisterItem(ctx, model.Item{ItemID: "meme-1", OwnerID: "seller", Kind: model.ItemKindMeme})
	require.NoError(t, err)
	listing, err := engine.CreateListing(ctx, "seller", auction.CreateListingInput{ItemID: "meme-1", MinPrice: dec("1")})
	require.NoError(t, err)

	bidders := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, u := range bidders {
		_, err := engine.Deposit(ctx, u, dec("1000"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i, u := range bidders {
		wg.Add(1)
		go func(u string, base int64) {
			defer wg.Done()
			for step := int64(0); step < 5; step++ {
				_, _ = engine.PlaceBid(ctx, listing.ListingID, u, decimal.NewFromInt(base+step*10))
			}
		}(u, int64(i+2))
	}
	wg.Wait()

	bids, err := repo.ListBidsByListing(ctx, listing.ListingID)
	require.NoError(t, err)

	active := 0
	for _, b := range bids {
		if b.Status == model.BidStatusActive {
			active++
		}
	}
	require.Equal(t, 1, active)

	held := decimal.Zero
	for _, u := range bidders {
		bal, err := repo.GetBalance(ctx, u)
		require.NoError(t, err)
		held = held.Add(bal.Reserved)
		require.True(t, bal.Total().Equal(dec("1000")), "%s total %s", u, bal.Total())
	}
	require.True(t, held.Equal(bids[0].Amount.Add(dec("1"))), "held %s", held)
}
