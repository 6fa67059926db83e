package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sudo-init-do/diecasthub/internal/middleware"
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

const secret = "mw-secret"

func ok(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": c.Get("user_id"), "role": c.Get("role")})
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWT_QueryTokenOnlyWhereAllowed(t *testing.T) {
	e := echo.New()
	e.GET("/trades/:id", ok, middleware.JWT(secret))
	e.GET("/trades/:id/ws", ok, middleware.JWT(secret, middleware.AllowQueryToken()))
	tok := token(t, "alice", "user")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/trades/t1?token="+tok, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/trades/t1/ws?token="+tok, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/trades/t1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec = serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"alice"`)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	e := echo.New()
	e.GET("/x", ok, middleware.JWT(secret))

	expired, err := middleware.IssueToken(secret, "alice", "user", -time.Minute)
	require.NoError(t, err)
	foreign, err := middleware.IssueToken("other-secret", "alice", "user", time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing": "",
		"expired": "Bearer " + expired,
		"foreign": "Bearer " + foreign,
		"garbage": "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
		})
	}
}

func TestRequestLogger_OmitsQueryString(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := echo.New()
	e.Use(middleware.RequestLogger(zap.New(core)))
	e.GET("/trades/:id/ws", ok, middleware.JWT(secret, middleware.AllowQueryToken()))
	tok := token(t, "alice", "user")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/trades/t1/ws?token="+tok, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/trades/t1/ws", fields["path"])
	assert.Equal(t, "/trades/:id/ws", fields["route"])
	assert.Equal(t, "alice", fields["user_id"])
	for _, v := range fields {
		if s, isStr := v.(string); isStr {
			assert.NotContains(t, s, tok)
		}
	}
}

func TestRequireRoles(t *testing.T) {
	e := echo.New()
	e.GET("/admin/stats", ok, middleware.JWT(secret), middleware.ModeratorGuard)

	for role, want := range map[trade.Role]int{
		trade.RoleUser:      http.StatusForbidden,
		trade.RoleModerator: http.StatusOK,
		trade.RoleAdmin:     http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, "u1", string(role)))
		assert.Equal(t, want, serve(e, req).Code, role)
	}
}
