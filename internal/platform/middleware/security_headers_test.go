package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSecurityHeaders(t *testing.T, req *http.Request, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return rec, SecurityHeaders()(handler)(c)
}

func TestSecurityHeaders_SetsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec, err := runSecurityHeaders(t, req, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, err)

	for _, kv := range responseHeaders {
		assert.Equal(t, kv[1], rec.Header().Get(kv[0]), kv[0])
	}
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "no HSTS over plain http")
}

func TestSecurityHeaders_HSTSBehindTLSProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec, err := runSecurityHeaders(t, req, func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, err)
	assert.Equal(t, hstsValue, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_PropagatesHandlerError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := runSecurityHeaders(t, req, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected echo.HTTPError, got %T", err)
	assert.Equal(t, http.StatusNotFound, he.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), "headers set on error responses")
}
