package laboratory

import (
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture(nil)
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc), f, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(auth.WithUser(req.Context(), uuid.NewString(), "tech@hospital.test",
		[]string{auth.RoleLabTechnician}))
}

func TestHandler_Order(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patientID.String() + `","catalog_id":"` + f.potassium.ID.String() + `","priority":"stat"}`
	rec := httptest.NewRecorder()

	require.NoError(t, h.Order(e.NewContext(jsonRequest(http.MethodPost, body), rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ORDERED"`)
	assert.Contains(t, rec.Body.String(), `"priority":"stat"`)
}

func TestHandler_Order_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	err := h.Order(e.NewContext(jsonRequest(http.MethodPost, `{"priority":"whenever"}`), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "patient_id is required")
	assert.Contains(t, he.Message, "priority must be one of [routine urgent stat]")
}

func TestHandler_RecordQC_RejectsZeroSD(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"instrument_id":"COBAS-1","test_code":"K","control_level":"low","measured_value":3,"target_mean":3,"target_sd":0}`
	err := h.RecordQC(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_SampleLabel(t *testing.T) {
	h, f, e := newTestHandler()
	lt := f.order(t)
	collected, err := f.svc.CollectSample(context.Background(), lt.ID, uuid.New())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("barcode")
	c.SetParamValues(*collected.SampleBarcode)

	require.NoError(t, h.SampleLabel(c))
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, labelWidth, img.Bounds().Dx())
}

func TestHandler_SyncFromLIS_Disabled(t *testing.T) {
	h, f, e := newTestHandler()
	lt := f.order(t)
	c := e.NewContext(jsonRequest(http.MethodPost, `{}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(lt.ID.String())

	err := h.SyncFromLIS(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "LIS integration is disabled", he.Message)
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func asRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithUser(req.Context(), uuid.NewString(), role+"@hospital.test", []string{role})))
			return next(c)
		}
	}
}

func TestHandler_Routes(t *testing.T) {
	h, _, e := newTestHandler()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	h.RegisterRoutes(e.Group("/api/v1", asRole(auth.RoleDoctor)))

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	t.Run("unknown path is not found", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/laboratory/does-not-exist",
			"/api/v1/laboratory/tests/" + uuid.NewString() + "/nope",
		} {
			rec := serve(http.MethodGet, path)
			assert.Equal(t, http.StatusNotFound, rec.Code, path)
			assert.NotContains(t, rec.Body.String(), "requires role")
		}
	})

	t.Run("wrong method is not forbidden", func(t *testing.T) {
		rec := serve(http.MethodDelete, "/api/v1/laboratory/catalog")
		assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code)
	})

	t.Run("guarded route still checks role", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/v1/laboratory/qc")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "requires role lab_technician")
	})
}
