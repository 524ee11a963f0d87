package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// WriteAuditEvent appends one audit row.
func WriteAuditEvent(ctx context.Context, db *gorm.DB, actorAccountID *string, eventType, entityType, entityID string, payload map[string]any) (*domain.AuditEvent, error) {
	ev := &domain.AuditEvent{
		ID:             uuid.NewString(),
		ActorAccountID: nonEmpty(actorAccountID),
		EventType:      eventType,
		EntityType:     entityType,
		EntityID:       entityID,
		Payload:        domain.JSONMap{}.Merge(payload),
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListAuditEvents returns events of one type, oldest first. Used by tests
// and operational tooling.
func ListAuditEvents(ctx context.Context, db *gorm.DB, eventType string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	err := db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
