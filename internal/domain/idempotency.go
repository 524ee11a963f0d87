package domain

import "time"

// Idempotency represents a memoized tool response keyed by
// (user_id, operation, key). RequestHash fingerprints the original request so
// that reusing a key with a different body can be rejected instead of
// replaying an unrelated response.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_op_key,priority:1"`
	Operation   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_op_key,priority:2"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_user_op_key,priority:3"`
	RequestHash string    `gorm:"type:TEXT NOT NULL"`
	StatusCode  int       `gorm:"type:INTEGER NOT NULL"`
	Response    string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
