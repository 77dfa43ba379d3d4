package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

// CallerKey is the gin context key holding the authenticated user id
const CallerKey = "caller_id"

// CallerID returns the authenticated user id set by the auth middleware
func CallerID(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONErrorWithCode(c, http.StatusBadRequest, wrappedErr, "INVALID_PAYLOAD", "invalid request payload", nil)
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code, machine-readable code and message
func MapErrorToHTTP(err error) (int, string, string) {
	switch {
	// invariant violations first: they may wrap other sentinels
	case biddingerrors.IsInvariant(err):
		return http.StatusInternalServerError, "INVARIANT_VIOLATION", "internal server error"

	case errors.Is(err, biddingerrors.ErrListingNotFound):
		return http.StatusNotFound, "LISTING_NOT_FOUND", "listing not found"
	case errors.Is(err, biddingerrors.ErrItemNotFound):
		return http.StatusNotFound, "ITEM_NOT_FOUND", "item not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "BID_NOT_FOUND", "bid not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "NO_BIDS", "no bids found for listing"

	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "INVALID_BID", "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidListing):
		return http.StatusBadRequest, "INVALID_LISTING", "invalid listing details"
	case errors.Is(err, biddingerrors.ErrInvalidItem):
		return http.StatusBadRequest, "INVALID_ITEM", "invalid item details"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT", "invalid amount"
	case errors.Is(err, biddingerrors.ErrInvalidAuctionWindow):
		return http.StatusBadRequest, "INVALID_AUCTION_WINDOW", "auction end date must be in the future"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusBadRequest, "BID_TOO_LOW", "bid amount too low"
	case errors.Is(err, biddingerrors.ErrSelfBiddingNotAllowed):
		return http.StatusBadRequest, "SELF_BIDDING_NOT_ALLOWED", "seller cannot bid on own listing"

	case errors.Is(err, biddingerrors.ErrListingNotActive):
		return http.StatusNotFound, "LISTING_NOT_ACTIVE", "listing is not active"
	case errors.Is(err, biddingerrors.ErrAuctionExpired):
		return http.StatusNotFound, "AUCTION_EXPIRED", "auction has expired"

	case errors.Is(err, biddingerrors.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "INSUFFICIENT_BALANCE", "insufficient balance"

	case errors.Is(err, biddingerrors.ErrItemNotOwned):
		return http.StatusForbidden, "ITEM_NOT_OWNED", "item not owned by seller"
	case errors.Is(err, biddingerrors.ErrNotSeller):
		return http.StatusForbidden, "NOT_SELLER", "only the seller can do this"

	case errors.Is(err, biddingerrors.ErrItemAlreadyListed):
		return http.StatusConflict, "ITEM_ALREADY_LISTED", "item already listed"
	case errors.Is(err, biddingerrors.ErrListingFinal):
		return http.StatusConflict, "LISTING_FINAL", "listing already closed"
	case errors.Is(err, biddingerrors.ErrListingHasBids):
		return http.StatusConflict, "LISTING_HAS_BIDS", "listing with bids cannot be cancelled by the seller"
	case errors.Is(err, biddingerrors.ErrNotFixedPrice):
		return http.StatusConflict, "NOT_FIXED_PRICE", "timed auctions settle at their end date"
	case errors.Is(err, biddingerrors.ErrNotTimedAuction):
		return http.StatusConflict, "NOT_TIMED_AUCTION", "fixed-price listings settle by accepting a bid"
	case errors.Is(err, biddingerrors.ErrAuctionNotEnded):
		return http.StatusConflict, "AUCTION_NOT_ENDED", "auction has not ended"
	case errors.Is(err, biddingerrors.ErrBidNotAcceptable):
		return http.StatusConflict, "BID_NOT_ACCEPTABLE", "only the current highest bid can be accepted"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// ErrorDetails returns the constraint a client needs to retry, if err carries one
func ErrorDetails(err error) map[string]any {
	var tooLow *biddingerrors.BidTooLowError
	if errors.As(err, &tooLow) {
		return map[string]any{"minimum_bid": tooLow.Minimum.StringFixed(2)}
	}
	return nil
}

// RespondError writes the error envelope for err and logs it. Server-side
// failures are logged at error level, client errors at warn.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, code, message := MapErrorToHTTP(err)
	utils.JSONErrorWithCode(c, status, fmt.Errorf("%s: %w", message, err), code, message, ErrorDetails(err))

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["code"] = code
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
