package emergency

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
	g := api.Group("/emergency")

	// Front desk and clinical staff
	desk := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist)
	g.GET("/board", h.Board, desk)
	g.GET("/cases", h.List, desk)
	g.GET("/cases/:id", h.Get, desk)
	g.GET("/cases/:id/history", h.History, desk)
	g.POST("/cases", h.Register, desk)
	g.POST("/cases/:id/left", h.Left, desk)

	clinical := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse)
	g.POST("/cases/:id/triage", h.Triage, clinical)
	g.POST("/cases/:id/treat", h.StartTreatment, clinical)

	g.POST("/cases/:id/disposition", h.Dispose, auth.RequireRole(auth.RoleDoctor))
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

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	ec, err := h.svc.Register(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, ec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ec, err := h.svc.GetCase(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := CaseFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.ListCases(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Board(c echo.Context) error {
	items, err := h.svc.Board(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"cases": items})
}

func (h *Handler) History(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"history": items})
}

func (h *Handler) Triage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TriageRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	ec, err := h.svc.Triage(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}

func (h *Handler) StartTreatment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TreatRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	ec, err := h.svc.StartTreatment(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}

func (h *Handler) Dispose(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DispositionRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	ec, err := h.svc.Dispose(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}

func (h *Handler) Left(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req LeftRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	ec, err := h.svc.LeftWithoutBeingSeen(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ec)
}
