package billing

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
	g := api.Group("/billing")

	desk := auth.RequireRole(auth.RoleAccountant, auth.RoleReceptionist)
	g.GET("/invoices", h.List, desk)
	g.GET("/invoices/:id", h.Get, desk)
	g.POST("/invoices/:id/payments", h.RecordPayment, desk)

	acct := auth.RequireRole(auth.RoleAccountant)
	g.POST("/invoices", h.Create, acct)
	g.PATCH("/invoices/:id", h.Adjust, acct)
	g.POST("/invoices/:id/items", h.AddItem, acct)
	g.DELETE("/invoices/:id/items/:itemId", h.RemoveItem, acct)
	g.POST("/invoices/:id/issue", h.Issue, acct)
	g.POST("/invoices/:id/cancel", h.Cancel, acct)
	g.GET("/reports/summary", h.Summary, acct)
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

func parseDateParam(c echo.Context, name string) (*time.Time, error) {
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

func (h *Handler) Create(c echo.Context) error {
	var req InvoiceRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := InvoiceFilter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	var err error
	if f.From, err = parseDateParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseDateParam(c, "to"); err != nil {
		return err
	}
	if f.To != nil {
		end := f.To.AddDate(0, 0, 1)
		f.To = &end
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Adjust(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AdjustRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	inv, err := h.svc.Adjust(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req ItemRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	inv, err := h.svc.AddItem(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) RemoveItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	inv, err := h.svc.RemoveItem(c.Request().Context(), id, itemID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
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
	inv, err := h.svc.Issue(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PaymentRequest
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	inv, err := h.svc.RecordPayment(c.Request().Context(), id, actor(c), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, inv)
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
	inv, err := h.svc.Cancel(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, inv)
}

// Summary reports on [from, to] inclusive. It defaults to the current month
// to date.
func (h *Handler) Summary(c echo.Context) error {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if v, err := parseDateParam(c, "from"); err != nil {
		return err
	} else if v != nil {
		from = *v
	}
	if v, err := parseDateParam(c, "to"); err != nil {
		return err
	} else if v != nil {
		to = *v
	}
	sum, err := h.svc.Summary(c.Request().Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sum)
}
