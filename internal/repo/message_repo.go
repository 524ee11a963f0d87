// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the message
// ledger: inbound dedup rows, outbound queue rows, delivery attempts and
// dead letters.
//
// State transitions are expressed as conditional UPDATEs that re-check the
// expected status, so a lost race shows up as RowsAffected == 0 instead of a
// silent double transition. Transaction boundaries belong to the services.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// ErrStaleRow is returned when a row changed between a locked read and the
// write that depended on it.
var ErrStaleRow = errors.New("row changed concurrently")

// maxTextLen caps error and response bodies stored in the ledger.
const maxTextLen = 500

// inboundOnly matches the predicate of the partial provider-id index. It is a
// literal so Postgres can infer the index from the ON CONFLICT target.
var inboundOnly = clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "direction = 'inbound'"}}}

// GetMessage fetches a ledger row by id or returns ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChannelMessage, error) {
	var m domain.ChannelMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// LockMessage reads a ledger row, locking it on Postgres.
func LockMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChannelMessage, error) {
	var m domain.ChannelMessage
	if err := lockRows(db.WithContext(ctx), false).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

//
// Inbound
//

// InsertInboundIfAbsent inserts m unless an inbound row with the same
// (channel, provider_message_id) exists. It reports whether a new row was
// written.
func InsertInboundIfAbsent(ctx context.Context, db *gorm.DB, m *domain.ChannelMessage) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "channel"}, {Name: "direction"}, {Name: "provider_message_id"}},
		TargetWhere: inboundOnly,
		DoNothing:   true,
	}).Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetInboundByProviderID returns the inbound row for a provider event id.
func GetInboundByProviderID(ctx context.Context, db *gorm.DB, channel domain.Channel, providerMessageID string) (*domain.ChannelMessage, error) {
	var m domain.ChannelMessage
	err := db.WithContext(ctx).
		Where("channel = ? AND direction = ? AND provider_message_id = ?", channel, domain.DirectionInbound, providerMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkInboundProcessed moves received|processing to processed. Already
// processed or missing rows are left alone (RowsAffected == 0).
func MarkInboundProcessed(ctx context.Context, db *gorm.DB, id string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("id = ? AND direction = ? AND status IN ?", id, domain.DirectionInbound,
			[]domain.MessageStatus{domain.StatusReceived, domain.StatusProcessing}).
		Updates(map[string]any{"status": string(domain.StatusProcessed), "updated_at": now})
	return res.RowsAffected, res.Error
}

//
// Outbound queue
//

// UpsertOutbound inserts a queued row, or on (channel, idempotency_key)
// conflict replaces only the payload. Status and attempt history of an
// existing row are never touched.
func UpsertOutbound(ctx context.Context, db *gorm.DB, m *domain.ChannelMessage) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}, {Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(m).Error
}

// GetOutboundByKey returns the outbound row for an idempotency key.
func GetOutboundByKey(ctx context.Context, db *gorm.DB, channel domain.Channel, key string) (*domain.ChannelMessage, error) {
	var m domain.ChannelMessage
	err := db.WithContext(ctx).
		Where("channel = ? AND idempotency_key = ?", channel, key).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NextQueuedIDs returns up to limit queued outbound ids in FIFO order
// (created_at, id). On Postgres the rows are locked with SKIP LOCKED so
// concurrent claimers never see the same candidate. An empty channel means
// any channel.
func NextQueuedIDs(ctx context.Context, db *gorm.DB, channel domain.Channel, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1
	}
	q := lockRows(db.WithContext(ctx), true).
		Model(&domain.ChannelMessage{}).
		Select("id").
		Where("direction = ? AND status = ?", domain.DirectionOutbound, domain.StatusQueued)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var rows []struct{ ID string }
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// ClaimQueued flips one queued row to processing with a lease. It reports
// false when the row is no longer queued.
func ClaimQueued(ctx context.Context, db *gorm.DB, id string, now, leaseUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("id = ? AND direction = ? AND status = ?", id, domain.DirectionOutbound, domain.StatusQueued).
		Updates(map[string]any{
			"status":       string(domain.StatusProcessing),
			"locked_until": leaseUntil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeliveryOutcome is the state written after a send attempt.
type DeliveryOutcome struct {
	Status            domain.MessageStatus
	AttemptCount      int
	LastError         *string
	ProviderMessageID string
	NextAttemptAt     *time.Time
	Now               time.Time
}

// ApplyDeliveryOutcome writes an attempt result, guarded by the attempt count
// read under lock. LastError is truncated. ErrStaleRow means someone else advanced the row.
func ApplyDeliveryOutcome(ctx context.Context, db *gorm.DB, id string, readAttempts int, o DeliveryOutcome) error {
	if o.LastError != nil {
		msg := truncate(*o.LastError, maxTextLen)
		o.LastError = &msg
	}
	updates := map[string]any{
		"status":          string(o.Status),
		"attempt_count":   o.AttemptCount,
		"last_error":      o.LastError,
		"locked_until":    nil,
		"next_attempt_at": o.NextAttemptAt,
		"updated_at":      o.Now,
	}
	if o.ProviderMessageID != "" {
		updates["provider_message_id"] = o.ProviderMessageID
	}
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("id = ? AND attempt_count = ?", id, readAttempts).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleRow
	}
	return nil
}

// CreateDeliveryAttempt appends one audit row. Bodies are truncated.
func CreateDeliveryAttempt(ctx context.Context, db *gorm.DB, a *domain.ChannelDeliveryAttempt) error {
	if a.ResponseBody != nil {
		body := truncate(*a.ResponseBody, maxTextLen)
		a.ResponseBody = &body
	}
	return db.WithContext(ctx).Create(a).Error
}

// ListDeliveryAttempts returns the attempts of a message, oldest first.
func ListDeliveryAttempts(ctx context.Context, db *gorm.DB, messageID string) ([]domain.ChannelDeliveryAttempt, error) {
	var out []domain.ChannelDeliveryAttempt
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("attempt_no ASC").
		Find(&out).Error
	return out, err
}

// CreateDeadLetter records a terminal failure. The reason is truncated.
func CreateDeadLetter(ctx context.Context, db *gorm.DB, d *domain.DeadLetterEvent) error {
	d.Reason = truncate(d.Reason, maxTextLen)
	return db.WithContext(ctx).Create(d).Error
}

// HasDeadLetter reports whether a dead letter references the message.
func HasDeadLetter(ctx context.Context, db *gorm.DB, referenceID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.DeadLetterEvent{}).
		Where("reference_id = ?", referenceID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// CountDeadLetters returns the number of dead letters, optionally per channel.
func CountDeadLetters(ctx context.Context, db *gorm.DB, channel domain.Channel) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.DeadLetterEvent{})
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListDeadLettersPage returns dead letters newest first.
func ListDeadLettersPage(ctx context.Context, db *gorm.DB, channel domain.Channel, offset, limit int) ([]domain.DeadLetterEvent, error) {
	var out []domain.DeadLetterEvent
	q := db.WithContext(ctx)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// RequeueDue moves failed rows whose backoff elapsed back to queued.
func RequeueDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("direction = ? AND status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			domain.DirectionOutbound, domain.StatusFailed, now).
		Updates(map[string]any{
			"status":          string(domain.StatusQueued),
			"next_attempt_at": nil,
			"updated_at":      now,
		})
	return res.RowsAffected, res.Error
}

// RequeueMessage puts one failed or dead-lettered row back in the queue.
func RequeueMessage(ctx context.Context, db *gorm.DB, id string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("id = ? AND direction = ? AND status IN ?", id, domain.DirectionOutbound,
			[]domain.MessageStatus{domain.StatusFailed, domain.StatusDeadLettered}).
		Updates(map[string]any{
			"status":          string(domain.StatusQueued),
			"next_attempt_at": nil,
			"updated_at":      now,
		})
	return res.RowsAffected, res.Error
}

// ReclaimExpiredLeases returns processing rows whose lease ran out to the
// queue. Their attempt count is untouched: the crashed send never reported.
func ReclaimExpiredLeases(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Where("direction = ? AND status = ? AND locked_until IS NOT NULL AND locked_until < ?",
			domain.DirectionOutbound, domain.StatusProcessing, now).
		Updates(map[string]any{
			"status":       string(domain.StatusQueued),
			"locked_until": nil,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}
