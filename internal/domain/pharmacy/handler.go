package pharmacy

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
	g := api.Group("/pharmacy")

	read := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist)
	g.GET("/medications", h.ListMedications, read)
	g.GET("/medications/low-stock", h.LowStock, read)
	g.GET("/medications/:id", h.GetMedication, read)
	g.GET("/prescriptions", h.ListPrescriptions, read)
	g.GET("/prescriptions/:id", h.GetPrescription, read)

	g.POST("/prescriptions", h.CreatePrescription, auth.RequireRole(auth.RoleDoctor))
	g.POST("/prescriptions/:id/cancel", h.Cancel, auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist))

	ph := auth.RequireRole(auth.RolePharmacist)
	g.POST("/medications", h.CreateMedication, ph)
	g.PUT("/medications/:id", h.UpdateMedication, ph)
	g.POST("/medications/:id/stock", h.AdjustStock, ph)
	g.GET("/medications/:id/movements", h.ListMovements, ph)
	g.POST("/prescriptions/:id/dispense", h.Dispense, ph)
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

func (h *Handler) CreateMedication(c echo.Context) error {
	var req MedicationRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.CreateMedication(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req MedicationRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.UpdateMedication(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := MedicationFilter{
		Query:      c.QueryParam("q"),
		Category:   c.QueryParam("category"),
		ActiveOnly: c.QueryParam("active") == "true",
	}
	items, total, err := h.svc.ListMedications(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StockRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.AdjustStock(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMovements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req PrescriptionRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.CreatePrescription(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := PrescriptionFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Dispense(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.Cancel(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
