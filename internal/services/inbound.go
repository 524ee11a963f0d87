package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// InboundRecorder persists inbound provider events for dedup.
type InboundRecorder struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (r *InboundRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// RecordInbound stores ev as a received inbound row keyed by its event id.
// A redelivered event returns the existing row unchanged; callers treat a
// returned row in status processed as a duplicate.
func (r *InboundRecorder) RecordInbound(ctx context.Context, ev domain.InboundEvent, accountID *string) (*domain.ChannelMessage, error) {
	ctx, span := otel.Tracer("services/InboundRecorder").Start(ctx, "RecordInbound",
		trace.WithAttributes(
			attribute.String("channel", string(ev.Channel)),
			attribute.String("event.id", ev.EventID),
		),
	)
	defer span.End()

	payload, err := domain.EncodePayload(ev)
	if err != nil {
		return nil, fmt.Errorf("encode inbound: %w", err)
	}
	now := r.now()
	eventID := ev.EventID
	corr := uuid.NewString()
	row := &domain.ChannelMessage{
		ID:                    uuid.NewString(),
		Direction:             domain.DirectionInbound,
		Channel:               ev.Channel,
		AccountID:             accountID,
		ChannelUserID:         ev.ChannelUserID,
		ChannelConversationID: ev.ChannelConversationID,
		ProviderMessageID:     &eventID,
		CorrelationID:         &corr,
		Payload:               payload,
		Status:                domain.StatusReceived,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := repo.InsertInboundIfAbsent(ctx, r.DB, row); err != nil {
		return nil, fmt.Errorf("record inbound: %w", err)
	}
	stored, err := repo.GetInboundByProviderID(ctx, r.DB, ev.Channel, eventID)
	if err != nil {
		return nil, fmt.Errorf("record inbound read-back: %w", err)
	}
	span.SetAttributes(attribute.String("message.id", stored.ID), attribute.String("status", string(stored.Status)))
	return stored, nil
}

// MarkProcessed finishes an inbound row. It is a no-op for processed or
// missing rows.
func (r *InboundRecorder) MarkProcessed(ctx context.Context, id string) error {
	if _, err := repo.MarkInboundProcessed(ctx, r.DB, id, r.now()); err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	return nil
}
