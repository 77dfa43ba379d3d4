package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/ledger"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	minPrice    = decimal.NewFromInt(50)
	bidderFunds = decimal.NewFromInt(1_000_000_000)
)

// benchEnv is an engine over the in-memory store with open listings and funded bidders
type benchEnv struct {
	Engine     *auction.Engine
	Repo       *repository.MemoryRepo
	ListingIDs []string
	Bidders    []string
}

func setupEngine(b *testing.B, numListings, numBidders int) *benchEnv {
	b.Helper()
	ctx := context.Background()

	repo := repository.NewMemoryRepo()
	l := ledger.New(repo, ledger.StaticPriceOracle{Price: decimal.NewFromInt(1)})
	engine := auction.NewEngine(repo, l, auction.Config{
		ListingFee:     decimal.Zero,
		PlatformFee:    decimal.NewFromInt(1),
		FeeSinkAccount: "treasury",
	})

	env := &benchEnv{Engine: engine, Repo: repo}
	end := time.Now().Add(24 * time.Hour)
	for i := 0; i < numListings; i++ {
		itemID := fmt.Sprintf("item_%d", i)
		seller := fmt.Sprintf("seller_%d", i)
		if _, err := engine.RegisterItem(ctx, model.Item{ItemID: itemID, OwnerID: seller, Kind: model.ItemKindNFT, Title: itemID}); err != nil {
			b.Fatalf("register item: %v", err)
		}
		listing, err := engine.CreateListing(ctx, seller, auction.CreateListingInput{
			ItemID:         itemID,
			MinPrice:       minPrice,
			AuctionEndDate: &end,
		})
		if err != nil {
			b.Fatalf("create listing: %v", err)
		}
		env.ListingIDs = append(env.ListingIDs, listing.ListingID)
	}
	for i := 0; i < numBidders; i++ {
		user := fmt.Sprintf("user_%d", i)
		if _, err := engine.Deposit(ctx, user, bidderFunds); err != nil {
			b.Fatalf("deposit: %v", err)
		}
		env.Bidders = append(env.Bidders, user)
	}
	return env
}
