package helpers

import (
	"time"

	"auction-escrow/internal/auction"
	model "auction-escrow/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs

// Money fields are pointers so that `required` can tell a missing value from zero.
type CreateListingRequest struct {
	ItemID         string           `json:"item_id" binding:"required"`
	MinPrice       *decimal.Decimal `json:"min_price" binding:"required"`
	AuctionEndDate *time.Time       `json:"auction_end_date,omitempty"`
}

type PlaceBidRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type AcceptBidRequest struct {
	BidID string `json:"bid_id" binding:"required"`
}

type RegisterItemRequest struct {
	ItemID  string `json:"item_id" binding:"required"`
	OwnerID string `json:"owner_id" binding:"required"`
	Kind    string `json:"kind" binding:"required,oneof=nft meme"`
	Title   string `json:"title"`
}

type DepositRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type ListingResponse struct {
	ListingID           string          `json:"listing_id"`
	ItemID              string          `json:"item_id"`
	SellerID            string          `json:"seller_id"`
	MinPrice            decimal.Decimal `json:"min_price"`
	AuctionEndDate      string          `json:"auction_end_date,omitempty"`
	CurrentHighestBidID string          `json:"current_highest_bid_id,omitempty"`
	Status              string          `json:"status"`
	ListingFee          decimal.Decimal `json:"listing_fee"`
	CreatedAt           string          `json:"created_at"`
	ClosedAt            string          `json:"closed_at,omitempty"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	ListingID string          `json:"listing_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

type PlaceBidResponse struct {
	BidResponse
	NextMinimumBid decimal.Decimal `json:"next_minimum_bid"`
}

type SettlementResponse struct {
	Listing              ListingResponse `json:"listing"`
	WinningBid           *BidResponse    `json:"winning_bid,omitempty"`
	Outcome              string          `json:"outcome"`
	ReleasedReservations int             `json:"released_reservations"`
	AlreadyFinal         bool            `json:"already_final"`
}

type BalanceResponse struct {
	UserID    string          `json:"user_id"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	USDValue  decimal.Decimal `json:"usd_value"`
}

func ToListingResponse(l model.Listing) ListingResponse {
	resp := ListingResponse{
		ListingID:  l.ListingID,
		ItemID:     l.ItemID,
		SellerID:   l.SellerID,
		MinPrice:   l.MinPrice,
		Status:     string(l.Status),
		ListingFee: l.ListingFee,
		CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.AuctionEndDate != nil {
		resp.AuctionEndDate = l.AuctionEndDate.UTC().Format(time.RFC3339)
	}
	if l.CurrentHighestBidID != nil {
		resp.CurrentHighestBidID = *l.CurrentHighestBidID
	}
	if l.ClosedAt != nil {
		resp.ClosedAt = l.ClosedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func ToListingResponses(listings []model.Listing) []ListingResponse {
	out := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, ToListingResponse(l))
	}
	return out
}

func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		ListingID: b.ListingID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		Fee:       b.Fee,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

func ToSettlementResponse(r auction.SettlementResult) SettlementResponse {
	resp := SettlementResponse{
		Listing:              ToListingResponse(r.Listing),
		Outcome:              string(r.Outcome),
		ReleasedReservations: r.ReleasedReservations,
		AlreadyFinal:         r.AlreadyFinal,
	}
	if r.WinningBid != nil {
		bid := ToBidResponse(*r.WinningBid)
		resp.WinningBid = &bid
	}
	return resp
}

func ToBalanceResponse(b model.Balance) BalanceResponse {
	return BalanceResponse{
		UserID:    b.UserID,
		Available: b.Available,
		Reserved:  b.Reserved,
		USDValue:  b.USDValue,
	}
}
