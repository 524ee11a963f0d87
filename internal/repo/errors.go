package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can use either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes unique violations from both drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// lockRows adds a row lock on dialects that support one. SQLite serializes
// writers at the database level, so callers always pair the lock with a
// conditional UPDATE that re-checks the state it read.
func lockRows(db *gorm.DB, skipLocked bool) *gorm.DB {
	if db.Dialector.Name() != DriverPostgres {
		return db
	}
	lock := clause.Locking{Strength: "UPDATE"}
	if skipLocked {
		lock.Options = "SKIP LOCKED"
	}
	return db.Clauses(lock)
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !isRuneStart(s[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
