package compliance

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
	"github.com/jashmhta/HMSSSS-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/compliance", auth.RequireRole(auth.RoleComplianceOfficer))
	g.GET("/audit-logs", h.ListAuditLogs)
	g.GET("/reports/phi-access/:patientId", h.PHIAccess)
	g.GET("/retention-policies", h.RetentionPolicies)

	g.POST("/consents", h.GrantConsent)
	g.GET("/consents", h.ListConsents)
	g.GET("/consents/check", h.CheckConsent)
	g.GET("/consents/:id", h.GetConsent)
	g.POST("/consents/:id/revoke", h.RevokeConsent)
}

func actor(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	return id
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

// dateRange reads from/to as dates; to is inclusive.
func dateRange(c echo.Context) (from, to *time.Time, err error) {
	parse := func(name string) (*time.Time, error) {
		v := c.QueryParam(name)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a date in YYYY-MM-DD format")
		}
		return &t, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	if to != nil {
		end := to.AddDate(0, 0, 1)
		to = &end
	}
	return from, to, nil
}

func (h *Handler) ListAuditLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AuditFilter{
		ResourceType: c.QueryParam("resource_type"),
		Action:       c.QueryParam("action"),
	}
	var err error
	if f.UserID, err = queryUUID(c, "user_id"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	if f.From, f.To, err = dateRange(c); err != nil {
		return err
	}
	items, total, err := h.svc.ListAuditLogs(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) PHIAccess(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	from, to, err := dateRange(c)
	if err != nil {
		return err
	}
	report, err := h.svc.PHIAccess(c.Request().Context(), patientID, from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RetentionPolicies(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"policies": h.svc.RetentionPolicies()})
}

func (h *Handler) GrantConsent(c echo.Context) error {
	var req ConsentRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	consent, err := h.svc.GrantConsent(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, consent)
}

func (h *Handler) GetConsent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	consent, err := h.svc.GetConsent(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) ListConsents(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ConsentFilter{ConsentType: c.QueryParam("type"), Status: c.QueryParam("status")}
	var err error
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	items, total, err := h.svc.ListConsents(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CheckConsent(c echo.Context) error {
	patientID, err := queryUUID(c, "patient_id")
	if err != nil {
		return err
	}
	if patientID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	res, err := h.svc.CheckConsent(c.Request().Context(), *patientID, c.QueryParam("type"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RevokeConsent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RevokeRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	consent, err := h.svc.RevokeConsent(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, consent)
}
