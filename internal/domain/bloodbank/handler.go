package bloodbank

import (
	"net/http"

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
	g := api.Group("/blood-bank")

	read := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleLabTechnician)
	g.GET("/inventory", h.Inventory, read)
	g.GET("/units", h.ListUnits, read)
	g.GET("/units/:id", h.GetUnit, read)
	g.GET("/requests", h.ListRequests, read)
	g.GET("/requests/:id", h.GetRequest, read)

	clinical := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse)
	g.POST("/requests", h.CreateRequest, clinical)
	g.POST("/requests/:id/cancel", h.CancelRequest, clinical)

	lab := auth.RequireRole(auth.RoleLabTechnician)
	g.GET("/donors", h.ListDonors, lab)
	g.POST("/donors", h.CreateDonor, lab)
	g.GET("/donors/:id", h.GetDonor, lab)
	g.PUT("/donors/:id", h.UpdateDonor, lab)
	g.GET("/donors/:id/eligibility", h.Eligibility, lab)
	g.GET("/donors/:id/donations", h.ListDonations, lab)
	g.POST("/donations", h.RecordDonation, lab)
	g.GET("/donations/:id", h.GetDonation, lab)
	g.PATCH("/donations/:id/status", h.SetDonationStatus, lab)
	g.POST("/units/:id/components", h.SeparateComponents, lab)
	g.PATCH("/units/:id/status", h.SetUnitStatus, lab)
	g.POST("/units/:id/issue", h.Issue, lab)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateDonor(c echo.Context) error {
	var req DonorRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.CreateDonor(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDonor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDonor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDonor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DonorRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.UpdateDonor(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDonors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := DonorFilter{BloodType: c.QueryParam("blood_type"), Status: c.QueryParam("status"), Query: c.QueryParam("q")}
	items, total, err := h.svc.ListDonors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Eligibility(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Eligibility(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListDonations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDonations(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RecordDonation(c echo.Context) error {
	var req DonationRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	donation, unit, err := h.svc.RecordDonation(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"donation": donation, "unit": unit})
}

func (h *Handler) GetDonation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDonation(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SetDonationStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DonationStatusRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.SetDonationStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SeparateComponents(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ComponentsRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	units, err := h.svc.SeparateComponents(c.Request().Context(), id, req.Components)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, units)
}

func (h *Handler) GetUnit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUnit(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUnits(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := UnitFilter{
		BloodType: c.QueryParam("blood_type"),
		Component: c.QueryParam("component"),
		Status:    c.QueryParam("status"),
	}
	items, total, err := h.svc.ListUnits(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) SetUnitStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UnitStatusRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	u, err := h.svc.SetUnitStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Issue(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req IssueRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	u, err := h.svc.Issue(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Inventory(c echo.Context) error {
	lines, err := h.svc.Inventory(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"inventory": lines})
}

func (h *Handler) CreateRequest(c echo.Context) error {
	var req BloodRequestRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	actor, _ := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	r, err := h.svc.CreateRequest(c.Request().Context(), actor, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := RequestFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.ListRequests(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CancelRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CancelRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}
