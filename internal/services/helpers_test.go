package services

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// newSvcDB opens a private in-memory database with the full schema. One
// connection serializes transactions the way a single SQLite writer does.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// newFileSvcDB opens a WAL database file through the production opener, so
// transactions race across its full connection pool.
func newFileSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.Greater(t, sqlDB.Stats().MaxOpenConnections, 1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// stepClock returns strictly increasing times, one second apart.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func outbound(ch domain.Channel, key, text string) domain.OutboundMessage {
	return domain.OutboundMessage{
		MessageID:             uuid.NewString(),
		CorrelationID:         uuid.NewString(),
		Channel:               ch,
		ChannelConversationID: "conv-1",
		RecipientID:           "user-1",
		Parts:                 []domain.MessagePart{domain.TextPart(text)},
		IdempotencyKey:        key,
		Metadata:              map[string]any{},
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func strp(s string) *string { return &s }
