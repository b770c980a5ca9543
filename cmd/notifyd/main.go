package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/notifyd/notifyd/internal/config"
	"github.com/notifyd/notifyd/internal/domain/analytics"
	"github.com/notifyd/notifyd/internal/domain/delivery"
	"github.com/notifyd/notifyd/internal/domain/notification"
	"github.com/notifyd/notifyd/internal/domain/schedule"
	"github.com/notifyd/notifyd/internal/domain/template"
	"github.com/notifyd/notifyd/internal/platform/breaker"
	"github.com/notifyd/notifyd/internal/platform/channel"
	"github.com/notifyd/notifyd/internal/platform/db"
	"github.com/notifyd/notifyd/internal/platform/middleware"
	"github.com/notifyd/notifyd/internal/platform/ratelimit"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notifyd",
		Short: "Notification delivery service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the notification API server and delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			st, err := openStore(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			st.close()

			fmt.Println("Schema applied successfully.")
			return nil
		},
	}
}

// store bundles the per-domain repositories over a single backend choice:
// postgres when DATABASE_URL is set, an embedded sqlite file otherwise.
type store struct {
	notifications notification.Repository
	templates     template.Repository
	schedules     schedule.Repository
	close         func()
}

// openStore connects to the configured backend and applies the schema. The
// schema statements are idempotent, so every boot runs them.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	if cfg.UsePostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		logger.Info().Msg("connected to postgres")
		return &store{
			notifications: notification.NewPGRepo(pool),
			templates:     template.NewPGRepo(pool),
			schedules:     schedule.NewPGRepo(pool),
			close:         pool.Close,
		}, nil
	}

	sdb, err := db.OpenSQLite(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.MigrateSQLite(ctx, sdb); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	logger.Info().Str("path", cfg.SQLitePath()).Msg("opened sqlite store")
	return &store{
		notifications: notification.NewSQLiteRepo(sdb),
		templates:     template.NewSQLiteRepo(sdb),
		schedules:     schedule.NewSQLiteRepo(sdb),
		close:         func() { _ = sdb.Close() },
	}, nil
}

// buildAdapters registers the four delivery channels. Email goes over real
// SMTP when the config is complete and mocks delivery otherwise; sms and
// push are mock providers with a configurable failure rate.
func buildAdapters(cfg *config.Config) *channel.Registry {
	reg := channel.NewRegistry()

	email := channel.NewEmailAdapter(channel.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		UseTLS:   cfg.SMTPUseTLS,
		StartTLS: cfg.SMTPStartTLS,
	})
	email.AddSPFHeader = cfg.AddSPFHeader
	email.AddDKIMHeader = cfg.AddDKIMHeader
	reg.Register(email)

	reg.Register(channel.NewSMSAdapter(cfg.FailureRate))
	reg.Register(channel.NewPushAdapter(cfg.FailureRate))
	reg.Register(channel.NewWebhookAdapter())

	return reg
}

// newRouter assembles the echo instance: global middleware, health probes,
// and the API groups.
func newRouter(
	logger zerolog.Logger,
	st *store,
	notifSvc *notification.Service,
	schedSvc *schedule.Service,
	tmplSvc *template.Service,
	statsSvc *analytics.Service,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M", "10M"))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if err := st.notifications.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})

	notifications := e.Group("/notifications")
	notification.NewHandler(notifSvc).RegisterRoutes(notifications)
	schedule.NewHandler(schedSvc).RegisterRoutes(notifications)

	templates := e.Group("/templates")
	template.NewHandler(tmplSvc).RegisterRoutes(templates)

	summary := e.Group("/analytics")
	analytics.NewHandler(statsSvc).RegisterRoutes(summary)

	return e
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Storage
	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.close()

	// Delivery pipeline
	breakers := breaker.NewRegistry(breaker.DefaultThreshold, cfg.CBCooldown())

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefill)
		logger.Info().
			Float64("capacity", cfg.RateLimitCapacity).
			Float64("refill_per_sec", cfg.RateLimitRefill).
			Msg("rate limiting enabled")
	}

	adapters := buildAdapters(cfg)
	tmplSvc := template.NewService(st.templates)

	engine := delivery.NewEngine(st.notifications, tmplSvc, adapters, breakers, limiter, logger)
	engine.Workers = cfg.QueueWorkers

	notifSvc := notification.NewService(st.notifications, engine)
	schedSvc := schedule.NewService(st.schedules)
	scheduler := schedule.NewEngine(st.schedules, notifSvc, logger)
	statsSvc := analytics.NewService(st.notifications)

	e := newRouter(logger, st, notifSvc, schedSvc, tmplSvc, statsSvc)

	// Background workers
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	engine.Start(workCtx)
	scheduler.Start(workCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	// Stop admitting new work, then drain what is already queued.
	scheduler.Stop()
	engine.Stop()

	logger.Info().Msg("server stopped")
	return nil
}
