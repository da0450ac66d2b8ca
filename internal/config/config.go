// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, Google OAuth credentials, bulk action pacing, session
// auth and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/mailsweep-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "mailsweep-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GoogleConfig holds the OAuth client used to refresh Gmail access tokens and
// the Gmail API endpoint override (tests point it at an httptest server).
type GoogleConfig struct {
	ClientID     string        // GOOGLE_CLIENT_ID
	ClientSecret string        // GOOGLE_CLIENT_SECRET
	TokenURL     string        // GOOGLE_TOKEN_URL
	GmailBaseURL string        // GMAIL_ENDPOINT, empty uses the public API
	TokenSkew    time.Duration // TOKEN_EXPIRY_SKEW
}

// Configured reports whether both client credentials are present.
func (g GoogleConfig) Configured() bool {
	return strings.TrimSpace(g.ClientID) != "" && strings.TrimSpace(g.ClientSecret) != ""
}

// ActionsConfig tunes the bulk action batcher and the super action policy.
type ActionsConfig struct {
	BatchSize          int           // BATCH_SIZE
	BatchDelay         time.Duration // BATCH_DELAY
	ActionsPerSecond   float64       // ACTIONS_PER_SECOND
	WindowBudget       int           // ACTIONS_PER_WINDOW, 0 derives ActionsPerSecond*60
	SafeSendersMinimum int           // SAFE_SENDERS_REQUIRED
	UndoWindow         time.Duration // UNDO_WINDOW
	FetchConcurrency   int           // FETCH_CONCURRENCY (message metadata lookups)
}

// SessionConfig configures verification of the identity provider's session JWT.
type SessionConfig struct {
	JWTSecret    string // SESSION_JWT_SECRET, empty disables verification
	Issuer       string // SESSION_JWT_ISSUER, optional
	AllowHeader  bool   // SESSION_ALLOW_USER_HEADER: accept X-User-ID, only while JWTSecret is empty
	ProviderHint string // SESSION_PROVIDER (informational, e.g. "supabase")
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	BulkWriteTimeout  time.Duration // write deadline for super action and bulk mailbox routes
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // trace|debug|info|warn|error|fatal|panic|off
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN (required when DBDriver=postgres)

	// Google
	Google GoogleConfig

	// Bulk actions
	Actions ActionsConfig

	// Session auth
	Session SessionConfig

	// Housekeeping
	CleanupSchedule string // cron spec, empty disables

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		BulkWriteTimeout:  getdur("BULK_WRITE_TIMEOUT", 15*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "mailsweep.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Google
		Google: GoogleConfig{
			ClientID:     getenv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
			TokenURL:     getenv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			GmailBaseURL: getenv("GMAIL_ENDPOINT", ""),
			TokenSkew:    getdur("TOKEN_EXPIRY_SKEW", 60*time.Second),
		},

		// Bulk actions
		Actions: ActionsConfig{
			BatchSize:          getint("BATCH_SIZE", 50),
			BatchDelay:         getdur("BATCH_DELAY", 2500*time.Millisecond),
			ActionsPerSecond:   getfloat("ACTIONS_PER_SECOND", 20),
			WindowBudget:       getint("ACTIONS_PER_WINDOW", 0),
			SafeSendersMinimum: getint("SAFE_SENDERS_REQUIRED", 3),
			UndoWindow:         getdur("UNDO_WINDOW", 29*24*time.Hour),
			FetchConcurrency:   getint("FETCH_CONCURRENCY", 10),
		},

		// Session auth
		Session: SessionConfig{
			JWTSecret:    getenv("SESSION_JWT_SECRET", ""),
			Issuer:       getenv("SESSION_JWT_ISSUER", ""),
			AllowHeader:  getbool("SESSION_ALLOW_USER_HEADER", false),
			ProviderHint: getenv("SESSION_PROVIDER", ""),
		},

		// Housekeeping
		CleanupSchedule: strings.TrimSpace(getenv("CLEANUP_SCHEDULE", "@every 10m")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mailsweep-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	switch cfg.LogLevel {
	case "warning":
		cfg.LogLevel = "warn"
	case "disabled":
		cfg.LogLevel = "off"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}
	if cfg.Actions.WindowBudget <= 0 {
		cfg.Actions.WindowBudget = int(cfg.Actions.ActionsPerSecond * 60)
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "off":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, off")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.BulkWriteTimeout < cfg.WriteTimeout {
		return cfg, errors.New("BULK_WRITE_TIMEOUT must be >= WRITE_TIMEOUT")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Google.TokenSkew < 0 {
		return cfg, errors.New("TOKEN_EXPIRY_SKEW must be >= 0")
	}
	if cfg.Actions.BatchSize < 1 {
		return cfg, errors.New("BATCH_SIZE must be >= 1")
	}
	if cfg.Actions.BatchDelay < 0 {
		return cfg, errors.New("BATCH_DELAY must be >= 0")
	}
	if cfg.Actions.ActionsPerSecond <= 0 {
		return cfg, errors.New("ACTIONS_PER_SECOND must be > 0")
	}
	if cfg.Actions.SafeSendersMinimum < 0 {
		return cfg, errors.New("SAFE_SENDERS_REQUIRED must be >= 0")
	}
	if cfg.Actions.UndoWindow < 0 {
		return cfg, errors.New("UNDO_WINDOW must be >= 0")
	}
	if cfg.Actions.FetchConcurrency < 1 {
		return cfg, errors.New("FETCH_CONCURRENCY must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}


func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if b, ok := sysutil.ParseBool(os.Getenv(k)); ok {
		return b
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
