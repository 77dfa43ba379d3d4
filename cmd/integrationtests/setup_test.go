package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auction-escrow/internal/auction"
	"auction-escrow/internal/ledger"
	"auction-escrow/internal/repository"
	"auction-escrow/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	adminKey = "test-admin-key"
	treasury = "treasury"
)

// testEnv is the full HTTP stack over an in-memory store with a controllable clock
type testEnv struct {
	Router *gin.Engine
	Repo   *repository.MemoryRepo
	Engine *auction.Engine

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the engine clock forward
func (e *testEnv) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// SetupTestEnv initializes the router with the real engine and an in-memory repository
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{Repo: repository.NewMemoryRepo(), now: time.Now().UTC()}
	l := ledger.New(env.Repo, ledger.StaticPriceOracle{Price: decimal.NewFromInt(2)})
	env.Engine = auction.NewEngine(env.Repo, l, auction.Config{
		ListingFee:     decimal.NewFromInt(1),
		PlatformFee:    decimal.NewFromInt(1),
		FeeSinkAccount: treasury,
	}, auction.WithClock(env.clock))

	env.Router = server.SetupRouter(env.Engine, server.RouterConfig{
		AdminAPIKey:       adminKey,
		BidRateLimitRPS:   0,
		BidRateLimitBurst: 1,
	})
	return env
}

// Do executes an HTTP request as userID (empty for anonymous) and parses the envelope
func (e *testEnv) Do(t *testing.T, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return e.do(t, method, url, map[string]string{"X-User-ID": userID}, body)
}

// Admin executes an HTTP request against an admin route
func (e *testEnv) Admin(t *testing.T, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return e.do(t, method, url, map[string]string{"X-Admin-Key": adminKey}, body)
}

func (e *testEnv) do(t *testing.T, method, url string, headers map[string]string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp, w
}

// Raw executes a request whose response is not a JSON envelope
func (e *testEnv) Raw(t *testing.T, method, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, httptest.NewRequest(method, url, nil))
	return w
}

// Data returns the data object of a successful envelope
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

// Seed registers an item and funds users through the admin API
func (e *testEnv) Seed(t *testing.T, itemID, ownerID string, funds map[string]string) {
	t.Helper()
	if itemID != "" {
		_, w := e.Admin(t, http.MethodPost, "/admin/items", map[string]any{
			"item_id": itemID, "owner_id": ownerID, "kind": "nft", "title": itemID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	for user, amount := range funds {
		_, w := e.Admin(t, http.MethodPost, "/admin/balances/"+user+"/deposit", map[string]any{"amount": amount})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

// Balance fetches a user's balance through the API
func (e *testEnv) Balance(t *testing.T, userID string) (available, reserved decimal.Decimal) {
	t.Helper()
	resp, w := e.Do(t, http.MethodGet, "/me/balance", userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := Data(t, resp)
	return decimal.RequireFromString(data["available"].(string)), decimal.RequireFromString(data["reserved"].(string))
}
