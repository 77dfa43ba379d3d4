package handler

import (
	"net/http"

	model "auction-escrow/internal/models"
	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

// RegisterItemHandler handles POST /admin/items
func (h *AuctionHandler) RegisterItemHandler(c *gin.Context) {
	var req helpers.RegisterItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterItemHandler", err)
		return
	}

	item, err := h.service.RegisterItem(c.Request.Context(), model.Item{
		ItemID:  req.ItemID,
		OwnerID: req.OwnerID,
		Kind:    model.ItemKind(req.Kind),
		Title:   req.Title,
	})
	if err != nil {
		helpers.RespondError(c, "RegisterItemHandler", err, map[string]any{"item_id": req.ItemID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, item, "item registered successfully")
	helpers.LogSuccess("RegisterItemHandler", "item registered successfully", map[string]any{
		"item_id":  item.ItemID,
		"owner_id": item.OwnerID,
	})
}

// DepositHandler handles POST /admin/balances/:user_id/deposit
func (h *AuctionHandler) DepositHandler(c *gin.Context) {
	userID := c.Param("user_id")

	var req helpers.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DepositHandler", err)
		return
	}

	bal, err := h.service.Deposit(c.Request.Context(), userID, *req.Amount)
	if err != nil {
		helpers.RespondError(c, "DepositHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBalanceResponse(bal), "deposit credited successfully")
}

// SettleListingHandler handles POST /admin/listings/:id/settle
func (h *AuctionHandler) SettleListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	result, err := h.service.SettleListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "SettleListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToSettlementResponse(result), "listing settled successfully")
	helpers.LogSuccess("SettleListingHandler", "listing settled successfully", map[string]any{
		"listing_id": listingID,
		"outcome":    result.Outcome,
	})
}

// AdminCancelListingHandler handles POST /admin/listings/:id/cancel
func (h *AuctionHandler) AdminCancelListingHandler(c *gin.Context) {
	listingID := c.Param("id")
	result, err := h.service.AdminCancelListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "AdminCancelListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToSettlementResponse(result), "listing cancelled successfully")
	helpers.LogSuccess("AdminCancelListingHandler", "listing cancelled successfully", map[string]any{
		"listing_id":            listingID,
		"released_reservations": result.ReleasedReservations,
	})
}
