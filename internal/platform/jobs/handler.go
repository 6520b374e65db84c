package jobs

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
)

type Handler struct {
	scheduler *Scheduler
}

func NewHandler(s *Scheduler) *Handler {
	return &Handler{scheduler: s}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin/jobs", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.POST("/:name/run", h.Run)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Jobs())
}

func (h *Handler) Run(c echo.Context) error {
	name := c.Param("name")
	if err := h.scheduler.RunNow(c.Request().Context(), name); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.HTTP(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"job": name, "status": "failed", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"job": name, "status": "ok"})
}
