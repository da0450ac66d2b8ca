// Package httpapi wires Gin to the mailbox services: tracing, request ids,
// redacted access logs, recovery, metrics, CORS, security headers, session
// auth, idempotency and weighted rate limiting, then the API routes.
//
// Middleware order: RequestID runs first so every later log line carries the
// request id.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/mailsweep-backend/internal/config"
	_ "github.com/tbourn/mailsweep-backend/internal/docs"
	"github.com/tbourn/mailsweep-backend/internal/domain"
	"github.com/tbourn/mailsweep-backend/internal/gmail"
	"github.com/tbourn/mailsweep-backend/internal/http/handlers"
	"github.com/tbourn/mailsweep-backend/internal/http/middleware"
	"github.com/tbourn/mailsweep-backend/internal/ratelimit"
	"github.com/tbourn/mailsweep-backend/internal/repo"
	"github.com/tbourn/mailsweep-backend/internal/services"
	"github.com/tbourn/mailsweep-backend/internal/token"
)

// upstreamTimeout bounds every call to Google (token endpoint and Gmail API).
const upstreamTimeout = 30 * time.Second

// safeSenderRepoShim adapts the repository free functions to the
// services.SafeSenderRepo interface expected by the SafeSenderService.
type safeSenderRepoShim struct{}

// CreateSafeSender proxies repo.CreateSafeSender.
func (safeSenderRepoShim) CreateSafeSender(ctx context.Context, db *gorm.DB, userID, pattern string) (*domain.SafeSender, error) {
	return repo.CreateSafeSender(ctx, db, userID, pattern)
}

// ListSafeSenders proxies repo.ListSafeSenders.
func (safeSenderRepoShim) ListSafeSenders(ctx context.Context, db *gorm.DB, userID string) ([]domain.SafeSender, error) {
	return repo.ListSafeSenders(ctx, db, userID)
}

// CountSafeSenders proxies repo.CountSafeSenders.
func (safeSenderRepoShim) CountSafeSenders(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSafeSenders(ctx, db, userID)
}

// DeleteSafeSender proxies repo.DeleteSafeSender.
func (safeSenderRepoShim) DeleteSafeSender(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSafeSender(ctx, db, id, userID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health, metrics and docs endpoints, and then mounts the versioned
// public API under cfg.APIBasePath behind session auth, idempotency and rate
// limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (skips /metrics)
//  8. CORS and Security headers
//
// API group only:
//  1. Session: resolve the user before anything keyed by user runs
//  2. Idempotency validator (before rate limiter to allow bypass on replay)
//  3. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, lg zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.HeaderProviderToken,
			middleware.HeaderProviderRefreshToken,
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Bulk routes answer only after the whole job; the deadline is lifted
	// before gzip wraps the writer.
	r.Use(bulkWriteDeadline(bulkRouteCosts(cfg.APIBasePath), cfg.BulkWriteTimeout))

	// 8) Response compression; super action payloads echo large email lists
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderProviderToken, middleware.HeaderProviderRefreshToken,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		DocsPrefix:   "/swagger/",
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := buildHandlers(db, cfg, lg)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.Session(middleware.SessionOptions{
		Secret:      cfg.Session.JWTSecret,
		Issuer:      cfg.Session.Issuer,
		AllowHeader: cfg.Session.AllowHeader,
	}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			case err != nil:
				return false, err
			}
			return true, nil
		},
	))
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
		Key:   middleware.KeyByUserOrIP(),
		Cost:  middleware.CostByRoute(bulkRouteCosts(api.BasePath())),
	})
	api.Use(rl.Handler())
	{
		// Super actions
		api.POST("/super-actions", h.ExecuteSuperAction)
		api.GET("/super-actions/status", h.SuperActionStatus)
		api.GET("/super-actions/history", h.ListSuperActions)
		api.POST("/super-actions/:id/undo", h.UndoSuperAction)

		// Safe senders
		api.GET("/safe-senders", h.ListSafeSenders)
		api.POST("/safe-senders", h.AddSafeSender)
		api.DELETE("/safe-senders/:id", h.RemoveSafeSender)

		// Mailbox
		api.GET("/emails", h.ListEmails)
		api.POST("/emails/actions", h.ApplyEmailAction)
		api.GET("/history", h.ListHistory)

		// Gmail connection
		api.POST("/gmail/tokens", h.StoreGmailTokens)
		api.POST("/gmail/refresh-token", h.RefreshGmailToken)
		api.GET("/gmail/profile", h.GmailProfile)
	}
}

// bulkCost is charged by the rate limiter for requests that fan out into
// many Gmail calls.
const bulkCost = 5

func bulkRouteCosts(base string) map[string]int {
	base = strings.TrimSuffix(base, "/")
	return map[string]int{
		"POST " + base + "/super-actions":          bulkCost,
		"POST " + base + "/super-actions/:id/undo": bulkCost,
		"POST " + base + "/emails/actions":         bulkCost,
		"GET " + base + "/emails":                  2,
	}
}

// bulkWriteDeadline replaces the server write timeout with d on routes that
// cost bulkCost, so the job summary still reaches the client.
func bulkWriteDeadline(routes map[string]int, d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cost := routes[c.Request.Method+" "+c.FullPath()]; cost >= bulkCost && d > 0 {
			if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Now().Add(d)); err != nil {
				middleware.LoggerFrom(c).Debug().Err(err).Msg("write deadline not extended")
			}
		}
		c.Next()
	}
}

// buildHandlers performs dependency injection: services ← token manager,
// Gmail client, batcher ← db/config.
func buildHandlers(db *gorm.DB, cfg config.Config, lg zerolog.Logger) *handlers.Handlers {
	upstream := &http.Client{Timeout: upstreamTimeout}

	tokens := token.NewManager(db, token.NewMemoryCache(), token.NewOAuthRefresher(cfg.Google, upstream), cfg.Google.TokenSkew, lg)
	gc := gmail.New(gmail.Options{
		Endpoint:   cfg.Google.GmailBaseURL,
		HTTPClient: upstream,
	}, lg)
	mailboxes := services.GmailMailboxes(gc)

	batcher := ratelimit.New(ratelimit.NewGormStore(db), ratelimit.Options{
		BatchSize:        cfg.Actions.BatchSize,
		BatchDelay:       cfg.Actions.BatchDelay,
		ActionsPerSecond: cfg.Actions.ActionsPerSecond,
		WindowBudget:     cfg.Actions.WindowBudget,
	}, lg)

	safeSvc := services.NewSafeSenderService(db, safeSenderRepoShim{})
	superSvc := services.NewSuperActionService(db, tokens, mailboxes, batcher, services.SuperActionPolicy{
		MinSafeSenders: cfg.Actions.SafeSendersMinimum,
		UndoWindow:     cfg.Actions.UndoWindow,
	}, lg)
	superSvc.SafeSender = safeSvc
	histSvc := superSvc.History
	mailSvc := services.NewMailboxService(tokens, mailboxes, batcher, histSvc, cfg.Actions.FetchConcurrency, lg)

	return handlers.New(superSvc, safeSvc, mailSvc, histSvc, tokens).
		WithIdempotencyTTL(cfg.IdempotencyTTL).
		WithIdempotencyStore(db)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
