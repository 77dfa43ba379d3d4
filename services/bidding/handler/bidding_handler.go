package handler

//go:generate mockgen -destination=mock_service.go -package=handler auction-escrow/services/bidding/handler AuctionServiceInterface

import (
	"context"
	"errors"
	"net/http"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/biddingerrors"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AuctionServiceInterface interface {
	CreateListing(ctx context.Context, sellerID string, in auction.CreateListingInput) (model.Listing, error)
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListListings(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, error)
	CancelListing(ctx context.Context, listingID, sellerID string) (auction.SettlementResult, error)
	AcceptBid(ctx context.Context, listingID, sellerID, bidID string) (auction.SettlementResult, error)

	PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (auction.BidReceipt, error)
	GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, listingID string) (model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)

	Balance(ctx context.Context, userID string) (model.Balance, error)
	LedgerHistory(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)

	RegisterItem(ctx context.Context, item model.Item) (model.Item, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (model.Balance, error)
	SettleListing(ctx context.Context, listingID string) (auction.SettlementResult, error)
	AdminCancelListing(ctx context.Context, listingID string) (auction.SettlementResult, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// PlaceBidHandler handles POST /listings/:id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	listingID := c.Param("id")
	bidderID := helpers.CallerID(c)

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	receipt, err := h.service.PlaceBid(c.Request.Context(), listingID, bidderID, *req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"listing_id": listingID,
			"bidder_id":  bidderID,
			"amount":     req.Amount.String(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		BidResponse:    helpers.ToBidResponse(receipt.Bid),
		NextMinimumBid: receipt.NextMinimumBid,
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     receipt.Bid.BidID,
		"listing_id": listingID,
		"bidder_id":  bidderID,
		"amount":     receipt.Bid.Amount.String(),
	})
}

// GetBidsForListingHandler handles GET /listings/:id/bids
func (h *AuctionHandler) GetBidsForListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	bids, err := h.service.GetBidsForListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetBidsForListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsForListingHandler", "bids retrieved successfully", map[string]any{
		"listing_id": listingID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /listings/:id/winning
func (h *AuctionHandler) GetWinningBidHandler(c *gin.Context) {
	listingID := c.Param("id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONErrorWithCode(c, http.StatusNotFound, err, "NO_BIDS", "no winning bid found", nil)
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"listing_id": listingID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"listing_id": listingID,
		"amount":     bid.Amount.String(),
	})
}

// GetMyBidsHandler handles GET /me/bids
func (h *AuctionHandler) GetMyBidsHandler(c *gin.Context) {
	userID := helpers.CallerID(c)
	bids, err := h.service.GetBidsByUser(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetMyBidsHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetMyBidsHandler", "bids retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(bids),
	})
}
