// Command server runs the mailsweep HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/mailsweep-backend/internal/config"
	"github.com/tbourn/mailsweep-backend/internal/housekeeping"
	httpapi "github.com/tbourn/mailsweep-backend/internal/http"
	"github.com/tbourn/mailsweep-backend/internal/observability"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	rel := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName, rel)
	gin.SetMode(cfg.GinMode)

	switch {
	case cfg.Session.JWTSecret == "" && cfg.Session.AllowHeader:
		log.Warn().Msg("SESSION_JWT_SECRET unset: trusting X-User-ID, do not expose this instance")
	case cfg.Session.JWTSecret == "":
		log.Warn().Msg("SESSION_JWT_SECRET unset: every API request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, rel)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if !sysutil.IsTruthy(os.Getenv("SKIP_MIGRATIONS")) {
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
	}

	janitor := housekeeping.New(db, log.Logger)
	if cfg.CleanupSchedule != "" {
		if err := janitor.Schedule(cfg.CleanupSchedule); err != nil {
			log.Fatal().Err(err).Msg("housekeeping schedule")
		}
		janitor.Start()
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, log.Logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", rel).Str("db", cfg.DBDriver).Msg("mailsweep listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := janitor.Stop(sctx); err != nil {
		log.Error().Err(err).Msg("housekeeping shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
