// Package config loads the gateway configuration from environment variables.
// Every key has a default; Load normalizes and validates the result so the
// rest of the program can treat Config as trusted and immutable.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
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

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	URL    string // Postgres DSN
}

// OutboxConfig tunes delivery, retries and the maintenance sweeps.
type OutboxConfig struct {
	MaxAttempts     int
	PollInterval    time.Duration
	BatchSize       int
	LeaseTimeout    time.Duration
	RetryBase       time.Duration
	RetryMax        time.Duration
	RequeueSchedule string
	ReclaimSchedule string
	PurgeSchedule   string
}

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	Enabled       bool
	BotToken      string
	WebhookSecret string
	APIBaseURL    string
	SendRPS       float64
}

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	Enabled       bool
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string
	APIBaseURL    string
	APIVersion    string
	SendRPS       float64
}

// BridgeConfig authenticates the iMessage desktop bridge and other
// trusted event sources.
type BridgeConfig struct {
	Enabled      bool
	SharedSecret string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB DBConfig

	// Linking and idempotency
	PublicBaseURL  string
	LinkTokenTTL   time.Duration
	IdempotencyTTL time.Duration

	Outbox   OutboxConfig
	Telegram TelegramConfig
	WhatsApp WhatsAppConfig
	Bridge   BridgeConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "gateway.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		PublicBaseURL:  strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LinkTokenTTL:   getdur("LINK_TOKEN_TTL", 15*time.Minute),
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", time.Hour),

		Outbox: OutboxConfig{
			MaxAttempts:     getint("OUTBOX_MAX_ATTEMPTS", 8),
			PollInterval:    getdur("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:       getint("OUTBOX_BATCH_SIZE", 10),
			LeaseTimeout:    getdur("OUTBOX_LEASE_TIMEOUT", 2*time.Minute),
			RetryBase:       getdur("OUTBOX_RETRY_BASE", 5*time.Second),
			RetryMax:        getdur("OUTBOX_RETRY_MAX", 10*time.Minute),
			RequeueSchedule: getenvAllowEmpty("OUTBOX_REQUEUE_SCHEDULE", "@every 15s"),
			ReclaimSchedule: getenvAllowEmpty("OUTBOX_RECLAIM_SCHEDULE", "@every 1m"),
			PurgeSchedule:   getenvAllowEmpty("IDEMPOTENCY_PURGE_SCHEDULE", "@every 1h"),
		},

		Telegram: TelegramConfig{
			Enabled:       getbool("TELEGRAM_ENABLED", false),
			BotToken:      getenv("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET", ""),
			APIBaseURL:    getenv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			SendRPS:       getfloat("TELEGRAM_SEND_RPS", 25),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:       getbool("WHATSAPP_ENABLED", false),
			VerifyToken:   getenv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     getenv("WHATSAPP_APP_SECRET", ""),
			AccessToken:   getenv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
			APIBaseURL:    getenv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenv("WHATSAPP_API_VERSION", "v21.0"),
			SendRPS:       getfloat("WHATSAPP_SEND_RPS", 20),
		},
		Bridge: BridgeConfig{
			Enabled:      getbool("IMESSAGE_BRIDGE_ENABLED", false),
			SharedSecret: getenv("IMESSAGE_BRIDGE_SHARED_SECRET", ""),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "omnichannel-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Outbox.PollInterval < 250*time.Millisecond {
		cfg.Outbox.PollInterval = 250 * time.Millisecond
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}

	u, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("PUBLIC_BASE_URL must be an absolute URL")
	}
	if cfg.LinkTokenTTL <= 0 {
		return errors.New("LINK_TOKEN_TTL must be > 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}

	o := cfg.Outbox
	if o.MaxAttempts < 1 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be >= 1")
	}
	if o.BatchSize < 1 {
		return errors.New("OUTBOX_BATCH_SIZE must be >= 1")
	}
	if o.LeaseTimeout <= 0 || o.RetryBase <= 0 || o.RetryMax < o.RetryBase {
		return errors.New("OUTBOX_LEASE_TIMEOUT and OUTBOX_RETRY_BASE must be > 0 and OUTBOX_RETRY_MAX >= OUTBOX_RETRY_BASE")
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" || cfg.Telegram.WebhookSecret == "" {
			return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_WEBHOOK_SECRET are required when TELEGRAM_ENABLED")
		}
	}
	if cfg.WhatsApp.Enabled {
		missing := missingKeys(
			"WHATSAPP_VERIFY_TOKEN", cfg.WhatsApp.VerifyToken,
			"WHATSAPP_APP_SECRET", cfg.WhatsApp.AppSecret,
			"WHATSAPP_ACCESS_TOKEN", cfg.WhatsApp.AccessToken,
			"WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsApp.PhoneNumberID,
		)
		if len(missing) > 0 {
			return fmt.Errorf("%s required when WHATSAPP_ENABLED", strings.Join(missing, ", "))
		}
	}
	if cfg.Bridge.Enabled && len(cfg.Bridge.SharedSecret) < 16 {
		return errors.New("IMESSAGE_BRIDGE_SHARED_SECRET must be at least 16 characters when IMESSAGE_BRIDGE_ENABLED")
	}
	if cfg.Telegram.SendRPS < 0 || cfg.WhatsApp.SendRPS < 0 {
		return errors.New("send rates must be >= 0")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty distinguishes an explicitly empty value (kept) from an
// unset key (default). Empty schedules disable their sweep.
func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
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
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
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
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// missingKeys takes name/value pairs and returns the names whose value is blank.
func missingKeys(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
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
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
