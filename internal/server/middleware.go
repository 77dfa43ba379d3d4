package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"auction-escrow/internal/metrics"
	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
)

const (
	userIDHeader   = "X-User-ID"
	adminKeyHeader = "X-Admin-Key"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
		"caller":  helpers.CallerID(c),
	})
}

// MetricsMiddleware records request counts and latency per route template
func MetricsMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
}

// SecurityHeadersMiddleware sets conservative response headers
func SecurityHeadersMiddleware(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Next()
}

// CallerAuthMiddleware trusts the user id supplied by the upstream auth layer
func CallerAuthMiddleware(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		utils.JSONErrorWithCode(c, http.StatusUnauthorized, errors.New("missing "+userIDHeader+" header"),
			"UNAUTHENTICATED", "authentication required", nil)
		c.Abort()
		return
	}
	c.Set(helpers.CallerKey, userID)
	c.Next()
}

// AdminKeyMiddleware guards administrative routes with a shared key. An empty
// key leaves the routes open, which config validation forbids in production.
func AdminKeyMiddleware(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		utils.Warn("admin routes are unauthenticated; set ADMIN_API_KEY", nil)
	}
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			utils.Warn("rejected admin request", map[string]any{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			})
			utils.JSONErrorWithCode(c, http.StatusUnauthorized, errors.New("invalid or missing "+adminKeyHeader+" header"),
				"UNAUTHENTICATED", "admin authentication required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
