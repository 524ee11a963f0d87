package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "gateway.db" {
		t.Fatalf("db defaults unexpected: %+v", cfg.DB)
	}
	if cfg.LinkTokenTTL != 15*time.Minute || cfg.IdempotencyTTL != time.Hour {
		t.Fatalf("ttl defaults unexpected: %v %v", cfg.LinkTokenTTL, cfg.IdempotencyTTL)
	}
	o := cfg.Outbox
	if o.MaxAttempts != 8 || o.PollInterval != time.Second || o.BatchSize != 10 ||
		o.LeaseTimeout != 2*time.Minute || o.RetryBase != 5*time.Second || o.RetryMax != 10*time.Minute {
		t.Fatalf("outbox defaults unexpected: %+v", o)
	}
	if o.RequeueSchedule != "@every 15s" || o.ReclaimSchedule != "@every 1m" || o.PurgeSchedule != "@every 1h" {
		t.Fatalf("schedule defaults unexpected: %+v", o)
	}
	if cfg.Telegram.Enabled || cfg.WhatsApp.Enabled || cfg.Bridge.Enabled {
		t.Fatalf("channels must be disabled by default")
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/gw?sslmode=disable")
	t.Setenv("PUBLIC_BASE_URL", "https://gw.example.com/")
	t.Setenv("OUTBOX_POLL_INTERVAL", "10ms")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "3")
	t.Setenv("OUTBOX_REQUEUE_SCHEDULE", "")
	t.Setenv("RATE_RPS", "x")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("TELEGRAM_ENABLED", "on")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("OTEL_SAMPLE", "ignored")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.GinMode != "release" || cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("server/logging unexpected: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path unexpected: %q", cfg.APIBasePath)
	}
	if cfg.DB.Driver != "postgres" || !strings.HasPrefix(cfg.DB.URL, "postgres://") {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if cfg.PublicBaseURL != "https://gw.example.com" {
		t.Fatalf("public base url unexpected: %q", cfg.PublicBaseURL)
	}
	if cfg.Outbox.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval must be clamped to 250ms, got %v", cfg.Outbox.PollInterval)
	}
	if cfg.Outbox.MaxAttempts != 3 || cfg.Outbox.RequeueSchedule != "" {
		t.Fatalf("outbox overrides unexpected: %+v", cfg.Outbox)
	}
	if cfg.RateRPS != 5.0 {
		t.Fatalf("RATE_RPS should fall back to default on bad parse, got %v", cfg.RateRPS)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "123:abc" {
		t.Fatalf("telegram unexpected: %+v", cfg.Telegram)
	}
	if cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"relative public url", map[string]string{"PUBLIC_BASE_URL": "gw.local"}, "PUBLIC_BASE_URL"},
		{"link ttl", map[string]string{"LINK_TOKEN_TTL": "0s"}, "LINK_TOKEN_TTL"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"max attempts", map[string]string{"OUTBOX_MAX_ATTEMPTS": "0"}, "OUTBOX_MAX_ATTEMPTS"},
		{"batch size", map[string]string{"OUTBOX_BATCH_SIZE": "0"}, "OUTBOX_BATCH_SIZE"},
		{"retry max below base", map[string]string{"OUTBOX_RETRY_BASE": "1m", "OUTBOX_RETRY_MAX": "1s"}, "OUTBOX_RETRY_MAX"},
		{"telegram without secret", map[string]string{"TELEGRAM_ENABLED": "1", "TELEGRAM_BOT_TOKEN": "t"}, "TELEGRAM_WEBHOOK_SECRET"},
		{"whatsapp missing keys", map[string]string{"WHATSAPP_ENABLED": "1", "WHATSAPP_VERIFY_TOKEN": "v"}, "WHATSAPP_APP_SECRET, WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID"},
		{"short bridge secret", map[string]string{"IMESSAGE_BRIDGE_ENABLED": "1", "IMESSAGE_BRIDGE_SHARED_SECRET": "short"}, "IMESSAGE_BRIDGE_SHARED_SECRET"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestHelpers_getenvAllowEmpty(t *testing.T) {
	os.Unsetenv("SCHED_UNSET")
	if getenvAllowEmpty("SCHED_UNSET", "@every 1m") != "@every 1m" {
		t.Fatalf("unset key should take the default")
	}
	t.Setenv("SCHED_EMPTY", "  ")
	if getenvAllowEmpty("SCHED_EMPTY", "@every 1m") != "" {
		t.Fatalf("explicitly empty key should stay empty")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for _, v := range []string{"1", "TRUE", " yes ", "Y", "On"} {
		t.Setenv("B_T", v)
		if !getbool("B_T", false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "FALSE", " no ", "N", "Off"} {
		t.Setenv("B_F", v)
		if getbool("B_F", true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_JUNK", "maybe")
	if !getbool("B_JUNK", true) {
		t.Fatalf("getbool should keep the default on unknown values")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "/a//": "/a"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "PUBLIC_BASE_URL", "TELEGRAM_ENABLED", "WHATSAPP_ENABLED", "IMESSAGE_BRIDGE_ENABLED"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}
