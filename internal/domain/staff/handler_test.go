package staff

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc), f, e
}

func TestHandler_CreateMember(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"first_name":"Lisa","last_name":"Cuddy","email":"cuddy@example.com","role":"admin","hire_date":"2019-01-01"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.CreateMember(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"employee_id":"EMP`)
}

func TestHandler_CreateMember_Conflict(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"first_name":"Lisa","last_name":"Cuddy","email":"cuddy@example.com","role":"admin","hire_date":"2019-01-01"}`
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		err := h.CreateMember(e.NewContext(req, rec))
		if i == 0 {
			require.NoError(t, err)
			assert.Equal(t, want, rec.Code)
			continue
		}
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, want, he.Code)
	}
}

func TestHandler_SetStatus_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"retired"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("00000000-0000-0000-0000-000000000009")

	err := h.SetStatus(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_ExpiringLicenses(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?days=60", nil), rec)

	require.NoError(t, h.ExpiringLicenses(c))
	assert.Contains(t, rec.Body.String(), `"days":60`)
}
