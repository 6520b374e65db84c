package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okChecker(name string) Checker {
	return CheckerFunc{Label: name, Fn: func(context.Context) error { return nil }}
}

func TestLive(t *testing.T) {
	e := echo.New()
	NewHandler("1.2.3").RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestReady_AllHealthy(t *testing.T) {
	e := echo.New()
	NewHandler("dev", okChecker("database"), okChecker("cache")).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Len(t, body.Components, 2)
	assert.Equal(t, "ok", body.Components["cache"].Status)
}

func TestReady_OneDown(t *testing.T) {
	e := echo.New()
	down := CheckerFunc{Label: "cache", Fn: func(context.Context) error { return errors.New("connection refused") }}
	NewHandler("dev", okChecker("database"), down).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Components["cache"].Status)
	assert.Equal(t, "connection refused", body.Components["cache"].Error)
	assert.Equal(t, "ok", body.Components["database"].Status)
}
