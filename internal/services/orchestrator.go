// Package services – Orchestrator
//
// This file implements the inbound saga every webhook and poller calls after
// normalizing a provider payload. The saga runs an ordered gate pipeline:
// identity, dedup, audit, signature, link, block, route and execute, compose,
// enqueue. Each terminating gate queues exactly one explanatory reply and
// marks the inbound row processed before returning, so a redelivered event is
// always recognized as a duplicate.
package services

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
)

// Audit event types written by the saga.
const (
	AuditInboundReceived     = "channel.inbound.received"
	AuditIdentityLinkRequest = "channel.identity.link_requested"
	AuditOutboundQueued      = "channel.outbound.queued"

	entityChannelMessage  = "channel_message"
	entityChannelIdentity = "channel_identity"

	maxOutboundKeyLen = 120
)

// Reply stages; each one owns a deterministic outbound idempotency key.
const (
	stageSignature = "sig"
	stageLink      = "link"
	stageBlocked   = "blocked"
	stageReply     = "reply"
)

// CommandExecutor runs one routed command for an account.
type CommandExecutor interface {
	Execute(ctx context.Context, accountID string, ev *domain.InboundEvent, cmd intents.Command) (commands.Response, error)
}

// Orchestrator sequences identity, dedup, gating, routing and reply enqueue.
type Orchestrator struct {
	Links    *LinkService
	Inbound  *InboundRecorder
	Outbox   *Outbox
	Executor CommandExecutor
	Audit    AuditSink
	Log      zerolog.Logger
}

// InboundResult summarizes one saga run.
type InboundResult struct {
	Duplicate        bool    `json:"duplicate"`
	InboundMessageID string  `json:"inboundMessageId"`
	CorrelationID    string  `json:"correlationId"`
	QueuedOutbound   int     `json:"queuedOutbound"`
	LinkedAccountID  *string `json:"linkedAccountId"`
}

// OutboundKey derives the idempotency key of a saga reply. Event ids long
// enough to overflow the key column are hashed.
func OutboundKey(eventID, stage string) string {
	key := fmt.Sprintf("outbound-%s-%s", eventID, stage)
	if len(key) <= maxOutboundKeyLen {
		return key
	}
	sum := blake3.Sum256([]byte(eventID))
	return fmt.Sprintf("outbound-%s-%s", hex.EncodeToString(sum[:16]), stage)
}

// HandleInbound runs the saga for ev. Validation failures are returned before
// anything is written. Database errors abort the saga; a retry of the same
// event is safe because every reply is keyed on the event id.
func (o *Orchestrator) HandleInbound(ctx context.Context, ev domain.InboundEvent) (*InboundResult, error) {
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, "HandleInbound",
		trace.WithAttributes(
			attribute.String("channel", string(ev.Channel)),
			attribute.String("event.id", ev.EventID),
		),
	)
	defer span.End()

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	log := o.Log.With().
		Str("component", "orchestrator").
		Str("channel", string(ev.Channel)).
		Str("event_id", ev.EventID).
		Logger()

	// 1. identity
	identity, err := o.Links.ResolveOrCreateIdentity(ctx, ev.Channel, ev.ChannelUserID, ev.ChannelConversationID, nil)
	if err != nil {
		return nil, err
	}

	// 2. dedup
	inbound, err := o.Inbound.RecordInbound(ctx, ev, identity.AccountID)
	if err != nil {
		return nil, err
	}
	corr := uuid.NewString()
	if inbound.CorrelationID != nil && *inbound.CorrelationID != "" {
		corr = *inbound.CorrelationID
	}
	res := &InboundResult{
		InboundMessageID: inbound.ID,
		CorrelationID:    corr,
		LinkedAccountID:  identity.AccountID,
	}
	span.SetAttributes(attribute.String("correlation.id", corr))
	if inbound.Status == domain.StatusProcessed {
		res.Duplicate = true
		log.Debug().Str("message_id", inbound.ID).Msg("duplicate inbound event")
		return res, nil
	}

	// 3. audit
	o.audit(ctx, log, identity.AccountID, AuditInboundReceived, entityChannelMessage, inbound.ID, map[string]any{
		"channel":               string(ev.Channel),
		"channelUserId":         ev.ChannelUserID,
		"channelConversationId": ev.ChannelConversationID,
		"providerMessageId":     ev.EventID,
		"signatureValidated":    ev.SignatureValidated,
	})

	// 4. signature gate
	if !ev.SignatureValidated {
		if _, err := o.reply(ctx, ev, identity.AccountID, corr, stageSignature,
			[]domain.MessagePart{domain.TextPart(TextSignatureFailed)}, nil); err != nil {
			return nil, err
		}
		res.QueuedOutbound = 1
		return res, o.Inbound.MarkProcessed(ctx, inbound.ID)
	}

	// 5. link gate
	if !identity.Linked() {
		ticket, err := o.Links.CreateLinkRequest(ctx, LinkRequest{
			Channel:               ev.Channel,
			ChannelUserID:         ev.ChannelUserID,
			ChannelConversationID: ev.ChannelConversationID,
			Metadata:              map[string]any{"inboundMessageId": inbound.ID},
		})
		if err != nil {
			return nil, err
		}
		if _, err := o.reply(ctx, ev, identity.AccountID, corr, stageLink, linkReplyParts(ticket.LinkURL), nil); err != nil {
			return nil, err
		}
		o.audit(ctx, log, nil, AuditIdentityLinkRequest, entityChannelIdentity, identity.ID, map[string]any{
			"channel":        string(ev.Channel),
			"linkUrl":        ticket.LinkURL,
			"tokenExpiresAt": ticket.ExpiresAt,
		})
		res.QueuedOutbound = 1
		res.LinkedAccountID = nil
		return res, o.Inbound.MarkProcessed(ctx, inbound.ID)
	}

	// 6. block gate
	if identity.Status == domain.IdentityBlocked {
		if _, err := o.reply(ctx, ev, identity.AccountID, corr, stageBlocked,
			[]domain.MessagePart{domain.TextPart(TextBlocked)}, nil); err != nil {
			return nil, err
		}
		res.QueuedOutbound = 1
		return res, o.Inbound.MarkProcessed(ctx, inbound.ID)
	}

	// 7. route and execute, strictly in order
	account := *identity.AccountID
	decision := intents.Route(ev)
	responses := make([]commands.Response, 0, len(decision.Commands))
	for _, cmd := range decision.Commands {
		r, err := o.Executor.Execute(ctx, account, &ev, cmd)
		if err != nil {
			log.Error().Err(err).Str("tool", cmd.ToolName).Msg("command failed")
			r = commands.Text(TextCommandFailed)
		}
		responses = append(responses, r)
	}

	// 8. compose
	parts := ComposeReply(decision, responses)

	// 9. enqueue, then mark processed
	meta := map[string]any{
		"intent":              string(decision.Intent.Kind),
		"inboundMessageId":    inbound.ID,
		"responseTextPreview": previewText(parts),
	}
	row, err := o.reply(ctx, ev, identity.AccountID, corr, stageReply, parts, meta)
	if err != nil {
		return nil, err
	}
	res.QueuedOutbound = 1
	o.audit(ctx, log, identity.AccountID, AuditOutboundQueued, entityChannelMessage, row.ID, map[string]any{
		"channel":        string(ev.Channel),
		"idempotencyKey": *row.IdempotencyKey,
		"intent":         string(decision.Intent.Kind),
	})
	return res, o.Inbound.MarkProcessed(ctx, inbound.ID)
}

func (o *Orchestrator) reply(ctx context.Context, ev domain.InboundEvent, accountID *string, corr, stage string, parts []domain.MessagePart, meta map[string]any) (*domain.ChannelMessage, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	return o.Outbox.Enqueue(ctx, EnqueueParams{
		AccountID: accountID,
		Message: domain.OutboundMessage{
			MessageID:             uuid.NewString(),
			CorrelationID:         corr,
			Channel:               ev.Channel,
			ChannelConversationID: ev.ChannelConversationID,
			RecipientID:           ev.ChannelUserID,
			Parts:                 parts,
			IdempotencyKey:        OutboundKey(ev.EventID, stage),
			Metadata:              meta,
		},
	})
}

func (o *Orchestrator) audit(ctx context.Context, log zerolog.Logger, actor *string, eventType, entityType, entityID string, payload map[string]any) {
	if o.Audit == nil {
		return
	}
	if err := o.Audit.Write(ctx, actor, eventType, entityType, entityID, payload); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("audit write failed")
	}
}
