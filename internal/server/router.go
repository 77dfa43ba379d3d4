package server

import (
	"context"
	"net/http"
	"time"

	"auction-escrow/internal/metrics"
	handler "auction-escrow/services/bidding/handler"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

// RouterConfig carries the knobs the HTTP layer needs
type RouterConfig struct {
	AdminAPIKey       string
	BidRateLimitRPS   float64
	BidRateLimitBurst int
	// HealthCheck reports whether backing storage is reachable; nil means always healthy
	HealthCheck func(ctx context.Context) error
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(service handler.AuctionServiceInterface, cfg RouterConfig) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(MetricsMiddleware)
	router.Use(SecurityHeadersMiddleware)

	auctionHandler := handler.NewAuctionHandler(service)
	bidLimiter := NewRateLimiter(cfg.BidRateLimitRPS, cfg.BidRateLimitBurst)

	router.GET("/health", healthHandler(cfg.HealthCheck))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	listings := router.Group("/listings")
	{
		listings.GET("", auctionHandler.ListListingsHandler)
		listings.GET("/:id", auctionHandler.GetListingHandler)
		listings.GET("/:id/bids", auctionHandler.GetBidsForListingHandler)
		listings.GET("/:id/winning", auctionHandler.GetWinningBidHandler)
	}

	authed := router.Group("", CallerAuthMiddleware)
	{
		authed.POST("/listings", auctionHandler.CreateListingHandler)
		authed.POST("/listings/:id/bids", bidLimiter.Middleware, auctionHandler.PlaceBidHandler)
		authed.POST("/listings/:id/accept", auctionHandler.AcceptBidHandler)
		authed.POST("/listings/:id/cancel", auctionHandler.CancelListingHandler)

		authed.GET("/me/balance", auctionHandler.GetMyBalanceHandler)
		authed.GET("/me/bids", auctionHandler.GetMyBidsHandler)
		authed.GET("/me/ledger", auctionHandler.GetMyLedgerHandler)
	}

	admin := router.Group("/admin", AdminKeyMiddleware(cfg.AdminAPIKey))
	{
		admin.POST("/items", auctionHandler.RegisterItemHandler)
		admin.POST("/balances/:user_id/deposit", auctionHandler.DepositHandler)
		admin.POST("/listings/:id/settle", auctionHandler.SettleListingHandler)
		admin.POST("/listings/:id/cancel", auctionHandler.AdminCancelListingHandler)
	}

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				utils.JSONError(c, http.StatusServiceUnavailable, err, "storage unavailable")
				return
			}
		}
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	}
}
