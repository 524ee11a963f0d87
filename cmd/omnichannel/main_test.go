package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/config"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

func testEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TELEGRAM_ENABLED", "false")
	t.Setenv("WHATSAPP_ENABLED", "false")
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func memDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func TestVersion_NoConfigNeeded(t *testing.T) {
	t.Setenv("LOG_LEVEL", "nonsense") // would fail config.Load
	t.Setenv("APP_VERSION", "v9.9.9")

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "omnichannel v9.9.9\n", out)
}

func TestRoot_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "0")

	_, err := run(t, "outbox", "depth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTBOX_MAX_ATTEMPTS")
}

func TestMigrate_RefusesSQLite(t *testing.T) {
	testEnv(t)

	_, err := run(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres only")
}

func TestOutbox_DepthAndDeadLetters(t *testing.T) {
	path := testEnv(t)

	db, err := repo.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	now := time.Now().UTC()
	require.NoError(t, repo.CreateDeadLetter(context.Background(), db, &domain.DeadLetterEvent{
		ID:          "dl-1",
		Channel:     domain.ChannelTelegram,
		Source:      "channel_sender",
		ReferenceID: "m-1",
		Payload:     `{"messageId":"m-1"}`,
		Reason:      "chat not found",
		CreatedAt:   now,
	}))
	closeDB(db)

	out, err := run(t, "outbox", "depth")
	require.NoError(t, err)
	assert.Contains(t, out, "CHANNEL")

	out, err = run(t, "outbox", "dead-letters", "--channel", "telegram")
	require.NoError(t, err)
	var page struct {
		Items []domain.DeadLetterEvent `json:"items"`
		Total int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "dl-1", page.Items[0].ID)

	_, err = run(t, "outbox", "dead-letters", "--channel", "fax")
	require.Error(t, err)

	out, err = run(t, "outbox", "requeue-failed")
	require.NoError(t, err)
	assert.Equal(t, "requeued: 0\n", out)
}

func TestBuildApp_WiresSendersAndRoutes(t *testing.T) {
	db := memDB(t)
	cfg := config.Config{
		GinMode:        "test",
		APIBasePath:    "/api/v1",
		PublicBaseURL:  "https://gw.example.com",
		LinkTokenTTL:   time.Minute,
		IdempotencyTTL: time.Minute,
		RateBurst:      10,
		Outbox: config.OutboxConfig{
			MaxAttempts:     3,
			BatchSize:       5,
			PollInterval:    time.Second,
			RequeueSchedule: "@every 1m",
			PurgeSchedule:   "@every 1h",
		},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "123:abc", WebhookSecret: "s", SendRPS: 5},
	}

	a, err := buildApp(db, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, a.workers, 1)

	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, a.startBackground(context.Background()))
	assert.Equal(t, 2, a.sweeper.Entries()) // requeue + purge; reclaim disabled
	a.stopBackground()
}

func TestBuildSenders_MissingCredentials(t *testing.T) {
	_, err := buildSenders(config.Config{WhatsApp: config.WhatsAppConfig{Enabled: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatsapp sender")

	senders, err := buildSenders(config.Config{})
	require.NoError(t, err)
	assert.Empty(t, senders)
}
