package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/health"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/middleware"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the hospital management API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	e := newEcho(a)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Str("version", version).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.bus.Run(gctx)
	})
	if cfg.JobsEnabled {
		g.Go(func() error {
			return a.scheduler.Run(gctx)
		})
	} else {
		logger.Info().Msg("scheduled jobs disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the HTTP stack: global middleware, health probes and the
// authenticated /api/v1 group.
func newEcho(a *app) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler(logger)
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	jwtCfg := a.tokens.Config()
	jwtCfg.Skipper = auth.AuthSkipper
	jwtCfg.CheckUser = a.users.CheckActive
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token act as admin")
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	health.NewHandler(version,
		health.DatabaseChecker(a.pool),
		health.CheckerFunc{Label: "cache", Fn: a.cache.Ping},
	).WithPool(a.pool).RegisterRoutes(e)

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	api := e.Group("/api/v1", middleware.RateLimit(rl), middleware.Audit(logger, a.audit))
	for _, h := range a.handlers {
		h.RegisterRoutes(api)
	}
	api.GET("/admin/queue/stats", func(c echo.Context) error {
		return c.JSON(http.StatusOK, a.bus.Stats())
	}, auth.RequireRole(auth.RoleAdmin))
	return e
}
