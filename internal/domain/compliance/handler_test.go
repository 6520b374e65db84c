package compliance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

const officerID = "2b1e5a7c-3f0d-4c8e-9d2a-6e4b1c7f9a30"

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc), f, e
}

func newContext(e *echo.Echo, method, target, body string, rec *httptest.ResponseRecorder) echo.Context {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := auth.WithUser(req.Context(), officerID, "privacy@hospital.test", []string{auth.RoleComplianceOfficer})
	return e.NewContext(req.WithContext(ctx), rec)
}

func TestHandler_GrantConsent(t *testing.T) {
	h, f, e := newTestHandler()
	rec := httptest.NewRecorder()
	body := `{"patient_id":"` + f.patientID.String() + `","consent_type":"research"}`

	require.NoError(t, h.GrantConsent(newContext(e, http.MethodPost, "/", body, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"granted_by":"`+officerID+`"`)
}

func TestHandler_GrantConsent_Validation(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":"` + f.patientID.String() + `","consent_type":"gossip"}`

	err := h.GrantConsent(newContext(e, http.MethodPost, "/", body, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "consent_type must be one of [treatment data_sharing research marketing]", he.Message)
}

func TestHandler_CheckConsent(t *testing.T) {
	h, f, e := newTestHandler()

	err := h.CheckConsent(newContext(e, http.MethodGet, "/?type=treatment", "", httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, "patient_id is required", he.Message)

	rec := httptest.NewRecorder()
	target := "/?type=treatment&patient_id=" + f.patientID.String()
	require.NoError(t, h.CheckConsent(newContext(e, http.MethodGet, target, "", rec)))
	assert.Contains(t, rec.Body.String(), `"active":false`)
}

func TestHandler_PHIAccess(t *testing.T) {
	h, f, e := newTestHandler()

	c := newContext(e, http.MethodGet, "/?from=2024-06-01&to=2024-06-15", "", httptest.NewRecorder())
	c.SetParamNames("patientId")
	c.SetParamValues("nope")
	err := h.PHIAccess(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)

	rec := httptest.NewRecorder()
	c = newContext(e, http.MethodGet, "/?from=2024-06-01&to=2024-06-15", "", rec)
	c.SetParamNames("patientId")
	c.SetParamValues(f.patientID.String())
	require.NoError(t, h.PHIAccess(c))
	assert.Contains(t, rec.Body.String(), `"accessors":[]`)
	assert.Contains(t, rec.Body.String(), `"to":"2024-06-16T00:00:00Z"`)
}

func TestHandler_ListAuditLogs_BadDate(t *testing.T) {
	h, _, e := newTestHandler()
	err := h.ListAuditLogs(newContext(e, http.MethodGet, "/?from=yesterday", "", httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, "from must be a date in YYYY-MM-DD format", he.Message)
}

func TestHandler_RetentionPolicies(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	require.NoError(t, h.RetentionPolicies(newContext(e, http.MethodGet, "/", "", rec)))
	assert.Contains(t, rec.Body.String(), `"resource_type":"audit_log"`)
}
