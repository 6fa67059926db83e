package marketplace_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/marketplace"
	"github.com/sudo-init-do/diecasthub/internal/middleware"
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

const secret = "test-secret"

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	store := trade.NewMemoryStore()
	for _, p := range []trade.Product{
		{ID: "p-alice", OwnerID: "alice", Quantity: 1, Status: "active"},
		{ID: "p-alice-2", OwnerID: "alice", Quantity: 1, Status: "active"},
		{ID: "p-bob", OwnerID: "bob", Quantity: 1, Status: "active"},
		{ID: "p-carol", OwnerID: "carol", Quantity: 1, Status: "active"},
	} {
		store.PutProduct(p)
	}

	var seq atomic.Int64
	engine := trade.NewEngine(store, trade.DefaultConfig(), zap.NewNop(),
		trade.WithIDGenerator(func() string { return fmt.Sprintf("t-%d", seq.Add(1)) }),
	)

	e := echo.New()
	e.Validator = middleware.NewValidator()
	h := marketplace.NewHandler(engine, zap.NewNop())
	api := e.Group("", middleware.JWT(secret))
	h.Register(api)
	h.RegisterAdmin(api.Group("/admin", middleware.ModeratorGuard))
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, userID, role string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		tok, err := middleware.IssueToken(secret, userID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func createBody(cash string) map[string]any {
	return map[string]any{
		"receiverId":     "bob",
		"initiatorItems": []map[string]any{{"productId": "p-alice", "quantity": 1}},
		"receiverItems":  []map[string]any{{"productId": "p-bob", "quantity": 1}},
		"cashAmount":     cash,
		"message":        "swap?",
	}
}

func ship(from string) map[string]any {
	return map[string]any{"carrier": "UPS", "fromAddressId": from}
}

func TestTradeLifecycleOverHTTP(t *testing.T) {
	e := newServer(t)

	code, body := do(t, e, http.MethodPost, "/trades", "alice", "user", createBody("10.50"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "t-1", body["id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "10.5", body["cashAmount"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/accept", "bob", "user", map[string]any{"message": "deal"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "accepted", body["status"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/ship", "alice", "user", ship("addr-a"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "initiator_shipped", body["status"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/ship", "bob", "user", ship("addr-b"))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "both_shipped", body["status"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/confirm", "alice", "user", map[string]any{"notes": "mint"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "both_shipped", body["status"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/confirm", "bob", "user", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", body["status"])

	code, body = do(t, e, http.MethodGet, "/trades?role=outgoing", "alice", "user", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["count"])
}

func TestErrorMapping(t *testing.T) {
	e := newServer(t)

	code, _ := do(t, e, http.MethodPost, "/trades", "", "", createBody("0"))
	assert.Equal(t, http.StatusUnauthorized, code)

	self := createBody("0")
	self["receiverId"] = "alice"
	code, body := do(t, e, http.MethodPost, "/trades", "alice", "user", self)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "SelfTradeNotAllowed", body["code"])

	bad := createBody("0")
	bad["receiverItems"] = []map[string]any{}
	code, body = do(t, e, http.MethodPost, "/trades", "alice", "user", bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationFailed", body["code"])

	code, body = do(t, e, http.MethodPost, "/trades", "alice", "user", createBody("0"))
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, e, http.MethodGet, "/trades/t-404", "alice", "user", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "TradeNotFound", body["code"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/accept", "carol", "user", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "InvalidActor", body["code"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/cancel", "alice", "user", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "reason is required", body["error"])

	// p-bob is still committed to t-1.
	other := createBody("0")
	other["initiatorItems"] = []map[string]any{{"productId": "p-carol", "quantity": 1}}
	code, body = do(t, e, http.MethodPost, "/trades", "carol", "user", other)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ItemAlreadyCommitted", body["code"])
	assert.Equal(t, true, body["retryable"])

	code, _ = do(t, e, http.MethodPost, "/trades/t-1/accept", "bob", "user", nil)
	require.Equal(t, http.StatusOK, code)
	code, body = do(t, e, http.MethodPost, "/trades/t-1/accept", "bob", "user", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidStateForAction", body["code"])
	assert.Equal(t, false, body["retryable"])

	req := httptest.NewRequest(http.MethodPost, "/trades", bytes.NewBufferString("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	tok, err := middleware.IssueToken(secret, "alice", "user", time.Hour)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCounterOverHTTP(t *testing.T) {
	e := newServer(t)

	code, body := do(t, e, http.MethodPost, "/trades", "alice", "user", createBody("25"))
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, e, http.MethodPost, "/trades/t-1/counter", "bob", "user", map[string]any{
		"initiatorItems": []map[string]any{{"productId": "p-alice", "quantity": 1}, {"productId": "p-alice-2", "quantity": 1}},
		"receiverItems":  []map[string]any{{"productId": "p-bob", "quantity": 1}},
		"message":        "add the second one",
	})
	require.Equal(t, http.StatusOK, code, body)
	counterID, _ := body["id"].(string)
	require.NotEmpty(t, counterID)
	// Outbox rows draw from their own id source, so trade ids stay consecutive.
	assert.Equal(t, "t-2", counterID)
	assert.Equal(t, "bob", body["initiatorId"])
	assert.Equal(t, "t-1", body["supersedes"])
	assert.Equal(t, "-25", body["cashAmount"])

	code, body = do(t, e, http.MethodGet, "/trades/"+counterID+"/history", "alice", "user", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["count"])
	chain := body["trades"].([]any)
	assert.Equal(t, "t-1", chain[0].(map[string]any)["id"])
	assert.Equal(t, "countered", chain[0].(map[string]any)["status"])
	assert.Equal(t, counterID, chain[1].(map[string]any)["id"])
}

func TestDisputeAndModeratorRoutes(t *testing.T) {
	e := newServer(t)

	do(t, e, http.MethodPost, "/trades", "alice", "user", createBody("10.50"))
	do(t, e, http.MethodPost, "/trades/t-1/accept", "bob", "user", nil)
	do(t, e, http.MethodPost, "/trades/t-1/ship", "alice", "user", ship("addr-a"))

	code, body := do(t, e, http.MethodPost, "/trades/t-1/dispute", "bob", "user", map[string]any{
		"reason":       "bad_vibes",
		"description":  "x",
		"evidenceUrls": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationFailed", body["code"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/dispute", "bob", "user", map[string]any{
		"reason":       "damaged",
		"description":  "box crushed in transit",
		"evidenceUrls": []string{"https://img.example.com/1.jpg"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "disputed", body["status"])

	code, _ = do(t, e, http.MethodGet, "/admin/disputes", "bob", "user", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = do(t, e, http.MethodGet, "/admin/disputes", "mod", "moderator", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["count"])

	resolve := map[string]any{"resolution": "partial_refund", "notes": "split the difference", "refundAmount": "4.25"}
	code, body = do(t, e, http.MethodPost, "/trades/t-1/resolve", "alice", "user", resolve)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "UnauthorizedResolver", body["code"])

	code, body = do(t, e, http.MethodPost, "/trades/t-1/resolve", "mod", "moderator", resolve)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "resolved", body["status"])

	code, body = do(t, e, http.MethodGet, "/admin/stats", "root", "admin", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 0, body["disputed"])
	assert.EqualValues(t, 1, body["by_status"].(map[string]any)["resolved"])
}
