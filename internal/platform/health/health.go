package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Checker probes a single dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function into a Checker.
type CheckerFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (f CheckerFunc) Name() string                    { return f.Label }
func (f CheckerFunc) Check(ctx context.Context) error { return f.Fn(ctx) }

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// DatabaseChecker pings the pool.
func DatabaseChecker(pool *pgxpool.Pool) Checker {
	return CheckerFunc{Label: "database", Fn: pool.Ping}
}

// ComponentStatus is one entry of the readiness report.
type ComponentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Report struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Time       time.Time                  `json:"time"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Pool       *PoolStats                 `json:"pool,omitempty"`
}

// Handler serves liveness and readiness probes.
type Handler struct {
	version  string
	timeout  time.Duration
	checkers []Checker
	pool     *pgxpool.Pool
	now      func() time.Time
}

func NewHandler(version string, checkers ...Checker) *Handler {
	return &Handler{
		version:  version,
		timeout:  3 * time.Second,
		checkers: checkers,
		now:      time.Now,
	}
}

// WithPool adds pool statistics to readiness responses.
func (h *Handler) WithPool(pool *pgxpool.Pool) *Handler {
	h.pool = pool
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Live)
	e.GET("/health/ready", h.Ready)
}

// Live reports that the process is up. It never touches dependencies.
func (h *Handler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, Report{
		Status:  "ok",
		Version: h.version,
		Time:    h.now().UTC(),
	})
}

// Ready runs every checker concurrently and answers 503 if any fails.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	report := h.Run(ctx)
	if h.pool != nil {
		report.Pool = GetPoolStats(h.pool)
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// Run executes the checkers and aggregates the results.
func (h *Handler) Run(ctx context.Context) Report {
	report := Report{
		Status:     "ok",
		Version:    h.version,
		Time:       h.now().UTC(),
		Components: make(map[string]ComponentStatus, len(h.checkers)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, chk := range h.checkers {
		wg.Add(1)
		go func(chk Checker) {
			defer wg.Done()
			start := time.Now()
			err := chk.Check(ctx)
			cs := ComponentStatus{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				cs.Status = "down"
				cs.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Components[chk.Name()] = cs
			if err != nil {
				report.Status = "degraded"
			}
		}(chk)
	}
	wg.Wait()
	return report
}
