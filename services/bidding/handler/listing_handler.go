package handler

import (
	"net/http"

	"auction-escrow/internal/auction"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

// CreateListingHandler handles POST /listings
func (h *AuctionHandler) CreateListingHandler(c *gin.Context) {
	sellerID := helpers.CallerID(c)

	var req helpers.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateListingHandler", err)
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), sellerID, auction.CreateListingInput{
		ItemID:         req.ItemID,
		MinPrice:       *req.MinPrice,
		AuctionEndDate: req.AuctionEndDate,
	})
	if err != nil {
		helpers.RespondError(c, "CreateListingHandler", err, map[string]any{
			"item_id":   req.ItemID,
			"seller_id": sellerID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToListingResponse(listing), "listing created successfully")
	helpers.LogSuccess("CreateListingHandler", "listing created successfully", map[string]any{
		"listing_id": listing.ListingID,
		"item_id":    listing.ItemID,
		"seller_id":  sellerID,
	})
}

// ListListingsHandler handles GET /listings
func (h *AuctionHandler) ListListingsHandler(c *gin.Context) {
	filter := repository.ListingFilter{
		Status:   model.ListingStatus(c.Query("status")),
		SellerID: c.Query("seller_id"),
	}

	listings, err := h.service.ListListings(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondError(c, "ListListingsHandler", err, map[string]any{"status": string(filter.Status)})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "listings retrieved successfully")
	helpers.LogSuccess("ListListingsHandler", "listings retrieved successfully", map[string]any{"count": len(listings)})
}

// GetListingHandler handles GET /listings/:id
func (h *AuctionHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	listing, err := h.service.GetListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponse(listing), "listing retrieved successfully")
}

// AcceptBidHandler handles POST /listings/:id/accept
func (h *AuctionHandler) AcceptBidHandler(c *gin.Context) {
	listingID := c.Param("id")
	sellerID := helpers.CallerID(c)

	var req helpers.AcceptBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AcceptBidHandler", err)
		return
	}

	result, err := h.service.AcceptBid(c.Request.Context(), listingID, sellerID, req.BidID)
	if err != nil {
		helpers.RespondError(c, "AcceptBidHandler", err, map[string]any{
			"listing_id": listingID,
			"seller_id":  sellerID,
			"bid_id":     req.BidID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToSettlementResponse(result), "bid accepted successfully")
	helpers.LogSuccess("AcceptBidHandler", "bid accepted successfully", map[string]any{
		"listing_id": listingID,
		"bid_id":     req.BidID,
	})
}

// CancelListingHandler handles POST /listings/:id/cancel
func (h *AuctionHandler) CancelListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	sellerID := helpers.CallerID(c)

	result, err := h.service.CancelListing(c.Request.Context(), listingID, sellerID)
	if err != nil {
		helpers.RespondError(c, "CancelListingHandler", err, map[string]any{
			"listing_id": listingID,
			"seller_id":  sellerID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponse(result.Listing), "listing cancelled successfully")
	helpers.LogSuccess("CancelListingHandler", "listing cancelled successfully", map[string]any{"listing_id": listingID})
}
