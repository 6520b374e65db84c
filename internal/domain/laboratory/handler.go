package laboratory

import (
	"bytes"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
	"github.com/jashmhta/HMSSSS-sub000/pkg/barcode"
	"github.com/jashmhta/HMSSSS-sub000/pkg/pagination"
)

const (
	labelWidth  = 300
	labelHeight = 80
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/laboratory")

	read := auth.RequireRole(auth.ClinicalRoles...)
	g.GET("/catalog", h.ListCatalog, read)
	g.GET("/catalog/:id", h.GetCatalogEntry, read)
	g.GET("/tests", h.List, read)
	g.GET("/tests/:id", h.Get, read)
	g.GET("/samples/:barcode", h.GetBySample, read)
	g.GET("/samples/:barcode/label.png", h.SampleLabel, read)

	admin := auth.RequireRole(auth.RoleAdmin)
	g.POST("/catalog", h.CreateCatalogEntry, admin)
	g.PUT("/catalog/:id", h.UpdateCatalogEntry, admin)

	g.POST("/tests", h.Order, auth.RequireRole(auth.RoleDoctor))
	g.POST("/tests/:id/cancel", h.Cancel, auth.RequireRole(auth.RoleDoctor, auth.RoleLabTechnician))

	lab := auth.RequireRole(auth.RoleLabTechnician)
	g.POST("/tests/:id/collect", h.CollectSample, lab)
	g.POST("/tests/:id/start", h.StartProcessing, lab)
	g.POST("/tests/:id/result", h.RecordResult, lab)
	g.POST("/tests/:id/lis-sync", h.SyncFromLIS, lab)
	g.POST("/qc", h.RecordQC, lab)
	g.GET("/qc", h.ListQC, lab)
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

func (h *Handler) CreateCatalogEntry(c echo.Context) error {
	var req CatalogRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	entry, err := h.svc.CreateCatalogEntry(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetCatalogEntry(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	entry, err := h.svc.GetCatalogEntry(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) UpdateCatalogEntry(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CatalogRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	entry, err := h.svc.UpdateCatalogEntry(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListCatalog(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("include_inactive") != "true"
	items, total, err := h.svc.ListCatalog(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Order(c echo.Context) error {
	var req OrderRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	t, err := h.svc.Order(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := TestFilter{Status: c.QueryParam("status"), Priority: c.QueryParam("priority")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBySample(c echo.Context) error {
	t, err := h.svc.GetBySample(c.Request().Context(), c.Param("barcode"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

// SampleLabel renders the specimen barcode as a Code128 PNG.
func (h *Handler) SampleLabel(c echo.Context) error {
	t, err := h.svc.GetBySample(c.Request().Context(), c.Param("barcode"))
	if err != nil {
		return apperr.HTTP(err)
	}
	var buf bytes.Buffer
	if err := barcode.PNG(&buf, *t.SampleBarcode, labelWidth, labelHeight); err != nil {
		return apperr.HTTP(err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) CollectSample(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CollectSample(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) StartProcessing(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.StartProcessing(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) RecordResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ResultRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	t, err := h.svc.RecordResult(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
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
	t, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) SyncFromLIS(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.SyncFromLIS(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) RecordQC(c echo.Context) error {
	var req QCRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	q, err := h.svc.RecordQC(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) ListQC(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := QCFilter{InstrumentID: c.QueryParam("instrument_id"), TestCode: c.QueryParam("test_code")}
	items, total, err := h.svc.ListQC(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
