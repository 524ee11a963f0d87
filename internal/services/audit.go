package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// AuditSink records notable saga steps. Writes are best-effort from the
// caller's point of view.
type AuditSink interface {
	Write(ctx context.Context, actorAccountID *string, eventType, entityType, entityID string, payload map[string]any) error
}

// DBAuditSink appends to the audit_events table.
type DBAuditSink struct {
	DB *gorm.DB
}

func (s DBAuditSink) Write(ctx context.Context, actorAccountID *string, eventType, entityType, entityID string, payload map[string]any) error {
	_, err := repo.WriteAuditEvent(ctx, s.DB, actorAccountID, eventType, entityType, entityID, payload)
	return err
}
