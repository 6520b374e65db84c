package staff

import (
	"net/http"
	"strconv"

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
	g := api.Group("/staff")
	admin := auth.RequireRole(auth.RoleAdmin)

	g.GET("/departments", h.ListDepartments)
	g.GET("/departments/:id", h.GetDepartment)
	g.POST("/departments", h.CreateDepartment, admin)
	g.PUT("/departments/:id", h.UpdateDepartment, admin)
	g.DELETE("/departments/:id", h.DeleteDepartment, admin)

	g.GET("/licenses/expiring", h.ExpiringLicenses, admin)

	g.GET("", h.ListMembers)
	g.GET("/:id", h.GetMember)
	g.POST("", h.CreateMember, admin)
	g.PUT("/:id", h.UpdateMember, admin)
	g.PATCH("/:id/status", h.SetStatus, admin)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Department Handlers --

func (h *Handler) CreateDepartment(c echo.Context) error {
	var req DepartmentRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.CreateDepartment(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DepartmentRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.UpdateDepartment(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDepartments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Member Handlers --

func (h *Handler) CreateMember(c echo.Context) error {
	var req MemberRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.CreateMember(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMember(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMember(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMember(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req MemberRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.UpdateMember(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	m, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMembers(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := MemberFilter{
		Role:   c.QueryParam("role"),
		Status: c.QueryParam("status"),
		Query:  c.QueryParam("search"),
	}
	if v := c.QueryParam("department_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
		}
		f.DepartmentID = &id
	}
	items, total, err := h.svc.ListMembers(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ExpiringLicenses(c echo.Context) error {
	days := DefaultExpiringDays
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid days")
		}
		days = n
	}
	items, err := h.svc.ExpiringLicenses(c.Request().Context(), days)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"days": days, "data": items, "total": len(items)})
}
