package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wardtrack/wardtrack/internal/config"
	"github.com/wardtrack/wardtrack/internal/domain/backup"
	"github.com/wardtrack/wardtrack/internal/domain/identity"
	"github.com/wardtrack/wardtrack/internal/domain/ward"
	"github.com/wardtrack/wardtrack/internal/platform/auth"
	"github.com/wardtrack/wardtrack/internal/platform/db"
	"github.com/wardtrack/wardtrack/internal/platform/middleware"
	"github.com/wardtrack/wardtrack/internal/platform/reporting"
	"github.com/wardtrack/wardtrack/internal/platform/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wardtrack-server",
		Short: "Ward patient tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ward tracking server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current ward document to a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			docs, _, _, cleanup, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			wardSvc := ward.NewService(docs, discardSink{}, logger)
			if _, err := wardSvc.Refresh(ctx); err != nil {
				return err
			}
			data, err := ward.ExportJSON(wardSvc.Snapshot())
			if err != nil {
				return err
			}
			if out == "" {
				out = ward.ExportFilename(time.Now())
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Output path (defaults to the dated backup filename)")
	return cmd
}

// discardSink is used by the export command, which never commits.
type discardSink struct{}

func (discardSink) Append(context.Context, []byte, string) {}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStores builds the configured storage backend. The returned document
// and backup stores may share a connection; cleanup closes whatever was
// opened.
func openStores(ctx context.Context, cfg *config.Config) (store.DocumentStore, store.BackupStore, *pgxpool.Pool, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return s, s, nil, func() { s.Close() }, nil
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		s, err := store.NewPGStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		return s, s, pool, pool.Close, nil
	default:
		s := store.NewMemoryStore()
		return s, s, nil, func() {}, nil
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	docs, backups, pool, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer cleanup()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("storage ready")

	// Services
	backupSvc := backup.NewService(backups, docs, logger)
	wardSvc := ward.NewService(docs, backupSvc, logger)
	if _, err := wardSvc.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load ward document")
	}

	identitySvc := identity.NewService(docs, logger)
	if len(cfg.WardUsers) > 0 {
		if err := identitySvc.EnsureUsers(ctx, cfg.WardUsers); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed users")
		}
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = "dev-only-secret"
	}
	issuer := auth.NewTokenIssuer([]byte(secret), time.Duration(cfg.SessionTTL)*time.Minute)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	identityHandler := identity.NewHandler(identitySvc, issuer)
	identityHandler.RegisterPublicRoutes(apiV1)

	// Everything else requires a session
	authed := apiV1.Group("")
	if cfg.IsDev() {
		authed.Use(auth.DevMiddleware(issuer))
	} else {
		authed.Use(auth.Middleware(issuer))
	}
	authed.Use(middleware.Audit(logger))

	identityHandler.RegisterRoutes(authed)
	ward.NewHandler(wardSvc).RegisterRoutes(authed)
	backup.NewHandler(backupSvc, backup.RefreshFunc(func(ctx context.Context) error {
		_, err := wardSvc.Refresh(ctx)
		return err
	})).RegisterRoutes(authed)
	reporting.NewHandler(wardSvc).RegisterRoutes(authed)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
