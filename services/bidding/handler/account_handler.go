package handler

import (
	"fmt"
	"net/http"
	"strconv"

	model "auction-escrow/internal/models"
	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

// GetMyBalanceHandler handles GET /me/balance
func (h *AuctionHandler) GetMyBalanceHandler(c *gin.Context) {
	userID := helpers.CallerID(c)
	bal, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetMyBalanceHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBalanceResponse(bal), "balance retrieved successfully")
}

// GetMyLedgerHandler handles GET /me/ledger
func (h *AuctionHandler) GetMyLedgerHandler(c *gin.Context) {
	userID := helpers.CallerID(c)

	limit := defaultLedgerLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLedgerLimit {
			utils.JSONErrorWithCode(c, http.StatusBadRequest,
				fmt.Errorf("limit must be between 1 and %d", maxLedgerLimit), "INVALID_QUERY", "invalid query parameters", nil)
			return
		}
		limit = n
	}

	entries, err := h.service.LedgerHistory(c.Request.Context(), userID, limit)
	if err != nil {
		helpers.RespondError(c, "GetMyLedgerHandler", err, map[string]any{"user_id": userID})
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "ledger entries retrieved successfully")
}
