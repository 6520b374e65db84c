package bloodbank

import (
	"context"
	"encoding/json"
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

func jsonContext(e *echo.Echo, body string, rec *httptest.ResponseRecorder) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, rec)
}

func TestHandler_CreateDonor_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"first_name":"Ann","last_name":"Lee","date_of_birth":"01/02/1990","gender":"female","blood_type":"C+","weight_kg":60}`

	err := h.CreateDonor(jsonContext(e, body, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "blood_type must be a valid blood type")
	assert.Contains(t, he.Message, "date_of_birth must match format")
}

func TestHandler_RecordDonation(t *testing.T) {
	h, f, e := newTestHandler()
	d := f.donor(t, "AB-")

	rec := httptest.NewRecorder()
	body := `{"donor_id":"` + d.ID.String() + `","hemoglobin_gdl":14.1,"volume_ml":470}`
	require.NoError(t, h.RecordDonation(jsonContext(e, body, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		Donation Donation `json:"donation"`
		Unit     Unit     `json:"unit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 470, out.Donation.VolumeML)
	assert.Equal(t, "AB-", out.Unit.BloodType)
	assert.Equal(t, ComponentWholeBlood, out.Unit.Component)
}

func TestHandler_Issue_Incompatible(t *testing.T) {
	h, f, e := newTestHandler()
	u := f.unit(t, "B+", ComponentPackedRBC, testNow.AddDate(0, 0, 3))

	c := jsonContext(e, `{"patient_id":"`+f.aPos.String()+`"}`, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(u.ID.String())

	err := h.Issue(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "B+ packed_rbc is not compatible with recipient blood type A+", he.Message)
}

func TestHandler_GetUnit_BadID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetUnit(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestHandler_Inventory_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()), rec)

	require.NoError(t, h.Inventory(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"inventory":[]}`, rec.Body.String())
}
