// Package services – Outbox
//
// This file implements the durable outbound queue. Replies are written as
// ChannelMessage rows with direction=outbound, claimed one at a time by the
// sender workers (or the desktop bridge), and settled with MarkSent or
// MarkFailed. Every state change runs in its own transaction and re-checks the
// state it read, so two claimers never deliver the same row.
//
// Observability: public methods open spans under "services/Outbox" and feed
// the outbox_* Prometheus counters.
package services

import (
	"context"
	"errors"
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

// Defaults applied when the corresponding Outbox field is zero.
const (
	DefaultMaxAttempts  = 8
	DefaultLeaseTimeout = 2 * time.Minute
	DefaultRetryBase    = 5 * time.Second
	DefaultRetryMax     = 10 * time.Minute

	// DeadLetterSource tags dead letters written by the sender path.
	DeadLetterSource = "channel_sender"

	claimWindow = 5
	claimRounds = 3
)

// Outbox is the persistent outbound queue.
type Outbox struct {
	DB *gorm.DB

	MaxAttempts  int
	LeaseTimeout time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// EnqueueParams carries an outbound envelope and the account it is sent for.
type EnqueueParams struct {
	Message   domain.OutboundMessage
	AccountID *string
}

// FailResult reports the state a message ended in after MarkFailed.
type FailResult struct {
	DeadLettered bool `json:"deadLettered"`
	AttemptCount int  `json:"attemptCount"`
}

func (o *Outbox) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Outbox) maxAttempts(override int) int {
	if override > 0 {
		return override
	}
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (o *Outbox) lease() time.Duration {
	if o.LeaseTimeout > 0 {
		return o.LeaseTimeout
	}
	return DefaultLeaseTimeout
}

// Backoff returns the delay before attempt n+1 after n failed attempts:
// RetryBase doubled per attempt, capped at RetryMax.
func (o *Outbox) Backoff(attempts int) time.Duration {
	base, max := o.RetryBase, o.RetryMax
	if base <= 0 {
		base = DefaultRetryBase
	}
	if max <= 0 {
		max = DefaultRetryMax
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Enqueue writes the envelope under (channel, idempotency key). A new key
// inserts a queued row; a known key only refreshes the payload, leaving the
// status and attempt history alone. The stored row is returned.
func (o *Outbox) Enqueue(ctx context.Context, p EnqueueParams) (*domain.ChannelMessage, error) {
	ctx, span := otel.Tracer("services/Outbox").Start(ctx, "Enqueue",
		trace.WithAttributes(
			attribute.String("channel", string(p.Message.Channel)),
			attribute.String("idempotency_key", p.Message.IdempotencyKey),
		),
	)
	defer span.End()

	msg := p.Message
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	payload, err := domain.EncodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("encode outbound: %w", err)
	}

	now := o.now()
	key := msg.IdempotencyKey
	corr := msg.CorrelationID
	row := &domain.ChannelMessage{
		ID:                    uuid.NewString(),
		Direction:             domain.DirectionOutbound,
		Channel:               msg.Channel,
		AccountID:             p.AccountID,
		ChannelUserID:         msg.RecipientID,
		ChannelConversationID: msg.ChannelConversationID,
		CorrelationID:         &corr,
		IdempotencyKey:        &key,
		Payload:               payload,
		Status:                domain.StatusQueued,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := repo.UpsertOutbound(ctx, o.DB, row); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	stored, err := repo.GetOutboundByKey(ctx, o.DB, msg.Channel, key)
	if err != nil {
		return nil, fmt.Errorf("enqueue read-back: %w", err)
	}
	if stored.ID == row.ID {
		outboxEnqueued.WithLabelValues(string(msg.Channel)).Inc()
	}
	span.SetAttributes(attribute.String("message.id", stored.ID))
	return stored, nil
}

// ClaimNext takes the oldest queued row (optionally of one channel), moves it
// to processing with a lease, and returns it. It returns nil, nil when the
// queue is empty.
func (o *Outbox) ClaimNext(ctx context.Context, channel domain.Channel) (*domain.ChannelMessage, error) {
	ctx, span := otel.Tracer("services/Outbox").Start(ctx, "ClaimNext",
		trace.WithAttributes(attribute.String("channel", string(channel))),
	)
	defer span.End()

	var claimed *domain.ChannelMessage
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for round := 0; round < claimRounds; round++ {
			ids, err := repo.NextQueuedIDs(ctx, tx, channel, claimWindow)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			now := o.now()
			for _, id := range ids {
				ok, err := repo.ClaimQueued(ctx, tx, id, now, now.Add(o.lease()))
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				m, err := repo.GetMessage(ctx, tx, id)
				if err != nil {
					return err
				}
				claimed = m
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if claimed != nil {
		outboxClaimed.WithLabelValues(string(claimed.Channel)).Inc()
		span.SetAttributes(attribute.String("message.id", claimed.ID))
	}
	return claimed, nil
}

// ClaimBatch claims up to limit rows, stopping early on an empty queue.
func (o *Outbox) ClaimBatch(ctx context.Context, channel domain.Channel, limit int) ([]domain.ChannelMessage, error) {
	out := make([]domain.ChannelMessage, 0, limit)
	for len(out) < limit {
		m, err := o.ClaimNext(ctx, channel)
		if err != nil {
			return out, err
		}
		if m == nil {
			break
		}
		out = append(out, *m)
	}
	return out, nil
}

// MarkSent settles a delivery as successful. Missing or terminal rows are
// left untouched.
func (o *Outbox) MarkSent(ctx context.Context, id string, receipt domain.DeliveryReceipt) error {
	ctx, span := otel.Tracer("services/Outbox").Start(ctx, "MarkSent",
		trace.WithAttributes(attribute.String("message.id", id)),
	)
	defer span.End()

	var channel domain.Channel
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.LockMessage(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if m.Direction != domain.DirectionOutbound || m.Status.Terminal() {
			return nil
		}

		now := o.now()
		attempts := m.AttemptCount + 1
		if err := repo.ApplyDeliveryOutcome(ctx, tx, id, m.AttemptCount, repo.DeliveryOutcome{
			Status:            domain.StatusSent,
			AttemptCount:      attempts,
			ProviderMessageID: receipt.ProviderMessageID,
			Now:               now,
		}); err != nil {
			return err
		}
		if err := repo.CreateDeliveryAttempt(ctx, tx, attemptRow(id, attempts, domain.AttemptSent, receipt, now)); err != nil {
			return err
		}
		channel = m.Channel
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	if channel != "" {
		outboxDelivery.WithLabelValues(string(channel), "sent").Inc()
	}
	return nil
}

// MarkFailed records a failed attempt. Once the attempt count reaches
// maxAttempts (zero means the Outbox default) the row is dead-lettered and a
// DeadLetterEvent with the payload snapshot is written, at most once per row.
// Otherwise it becomes failed and waits for its backoff before the requeue sweep picks it up.
func (o *Outbox) MarkFailed(ctx context.Context, id, errText string, maxAttempts int, receipt domain.DeliveryReceipt) (FailResult, error) {
	ctx, span := otel.Tracer("services/Outbox").Start(ctx, "MarkFailed",
		trace.WithAttributes(attribute.String("message.id", id)),
	)
	defer span.End()

	limit := o.maxAttempts(maxAttempts)
	var (
		res     FailResult
		channel domain.Channel
	)
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.LockMessage(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if m.Direction != domain.DirectionOutbound || m.Status.Terminal() {
			res = FailResult{DeadLettered: m.Status == domain.StatusDeadLettered, AttemptCount: m.AttemptCount}
			return nil
		}

		now := o.now()
		attempts := m.AttemptCount + 1
		outcome := repo.DeliveryOutcome{
			AttemptCount: attempts,
			LastError:    &errText,
			Now:          now,
		}
		dead := attempts >= limit
		if dead {
			outcome.Status = domain.StatusDeadLettered
		} else {
			next := now.Add(o.Backoff(attempts))
			outcome.Status = domain.StatusFailed
			outcome.NextAttemptAt = &next
		}
		if err := repo.ApplyDeliveryOutcome(ctx, tx, id, m.AttemptCount, outcome); err != nil {
			return err
		}
		if err := repo.CreateDeliveryAttempt(ctx, tx, attemptRow(id, attempts, domain.AttemptFailed, receipt, now)); err != nil {
			return err
		}
		if dead {
			// A requeued dead letter that fails again keeps its first record.
			exists, err := repo.HasDeadLetter(ctx, tx, m.ID)
			if err != nil {
				return err
			}
			if !exists {
				if err := repo.CreateDeadLetter(ctx, tx, &domain.DeadLetterEvent{
					ID:          uuid.NewString(),
					Channel:     m.Channel,
					Source:      DeadLetterSource,
					ReferenceID: m.ID,
					Payload:     m.Payload,
					Reason:      errText,
					CreatedAt:   now,
				}); err != nil {
					return err
				}
			}
		}
		res = FailResult{DeadLettered: dead, AttemptCount: attempts}
		channel = m.Channel
		return nil
	})
	if err != nil {
		return FailResult{}, fmt.Errorf("mark failed %s: %w", id, err)
	}
	if channel != "" {
		if res.DeadLettered {
			outboxDelivery.WithLabelValues(string(channel), "dead_lettered").Inc()
			outboxDeadLetters.WithLabelValues(string(channel)).Inc()
		} else {
			outboxDelivery.WithLabelValues(string(channel), "failed").Inc()
		}
	}
	span.SetAttributes(attribute.Int("attempt_count", res.AttemptCount), attribute.Bool("dead_lettered", res.DeadLettered))
	return res, nil
}

// RequeueFailed moves failed rows whose backoff has elapsed back to queued.
func (o *Outbox) RequeueFailed(ctx context.Context) (int64, error) {
	n, err := repo.RequeueDue(ctx, o.DB, o.now())
	if err != nil {
		return 0, fmt.Errorf("requeue failed: %w", err)
	}
	sweepRows.WithLabelValues("requeue").Add(float64(n))
	return n, nil
}

// ReclaimStale returns rows whose processing lease expired to the queue.
func (o *Outbox) ReclaimStale(ctx context.Context) (int64, error) {
	n, err := repo.ReclaimExpiredLeases(ctx, o.DB, o.now())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	sweepRows.WithLabelValues("reclaim").Add(float64(n))
	return n, nil
}

// Requeue is the operator action for one failed or dead-lettered row. The
// attempt count is kept, so a dead letter that fails again is dead-lettered
// again on its next failure, without a second DeadLetterEvent.
func (o *Outbox) Requeue(ctx context.Context, id string) error {
	n, err := repo.RequeueMessage(ctx, o.DB, id, o.now())
	if err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := repo.GetMessage(ctx, o.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	return ErrNotRequeueable
}

// DeadLetters returns one page of dead letters (newest first) and the total.
func (o *Outbox) DeadLetters(ctx context.Context, channel domain.Channel, page, pageSize int) ([]domain.DeadLetterEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountDeadLetters(ctx, o.DB, channel)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.DeadLetterEvent{}, 0, nil
	}
	items, err := repo.ListDeadLettersPage(ctx, o.DB, channel, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Get returns an outbound row by id, or ErrMessageNotFound.
func (o *Outbox) Get(ctx context.Context, id string) (*domain.ChannelMessage, error) {
	m, err := repo.GetMessage(ctx, o.DB, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && m.Direction != domain.DirectionOutbound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Depth reports queue sizes per channel and status.
func (o *Outbox) Depth(ctx context.Context) ([]repo.QueueDepth, error) {
	return repo.OutboxDepth(ctx, o.DB)
}

func attemptRow(messageID string, n int, status domain.AttemptStatus, r domain.DeliveryReceipt, now time.Time) *domain.ChannelDeliveryAttempt {
	a := &domain.ChannelDeliveryAttempt{
		ID:           uuid.NewString(),
		MessageID:    messageID,
		AttemptNo:    n,
		Status:       status,
		ResponseCode: r.ResponseCode,
		CreatedAt:    now,
	}
	if r.ResponseBody != "" {
		body := r.ResponseBody
		a.ResponseBody = &body
	}
	return a
}
