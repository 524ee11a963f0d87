// Package services – LinkService
//
// This file implements identity resolution and account linking. An external
// (channel, user) pair is resolved to a ChannelIdentity on every inbound
// event; unlinked identities receive a one-time link token whose completion
// binds them to an internal account.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// DefaultLinkTokenTTL applies when neither the request nor the service sets one.
const DefaultLinkTokenTTL = 15 * time.Minute

// LinkService owns ChannelIdentity and ChannelLinkToken rows.
type LinkService struct {
	DB *gorm.DB

	// PublicBaseURL prefixes link URLs, e.g. https://app.example.com.
	PublicBaseURL string
	TokenTTL      time.Duration

	Now func() time.Time
}

// LinkRequest describes the identity a new link token is minted for.
type LinkRequest struct {
	Channel               domain.Channel
	ChannelUserID         string
	ChannelConversationID string
	Metadata              map[string]any
	TTL                   time.Duration
}

// LinkTicket is the token handed to the user.
type LinkTicket struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	LinkURL   string    `json:"linkUrl"`
}

// LinkResult is returned by a successful CompleteLink.
type LinkResult struct {
	Linked        bool           `json:"linked"`
	Channel       domain.Channel `json:"channel"`
	ChannelUserID string         `json:"channelUserId"`
	AccountID     string         `json:"-"`
}

func (s *LinkService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// LinkURL builds the public URL of the link page for token.
func (s *LinkService) LinkURL(token string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/channels/link/" + token
}

// ResolveOrCreateIdentity returns the identity of (channel, channelUserID),
// creating it as unlinked when absent. The conversation id and metadata are
// merged into an existing row; a linked account is never dropped.
func (s *LinkService) ResolveOrCreateIdentity(ctx context.Context, channel domain.Channel, channelUserID, channelConversationID string, metadata map[string]any) (*domain.ChannelIdentity, error) {
	ctx, span := otel.Tracer("services/LinkService").Start(ctx, "ResolveOrCreateIdentity",
		trace.WithAttributes(
			attribute.String("channel", string(channel)),
			attribute.String("channel_user_id", channelUserID),
		),
	)
	defer span.End()

	var out *domain.ChannelIdentity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := repo.UpsertIdentity(ctx, tx, repo.IdentityUpsert{
			Channel:               channel,
			ChannelUserID:         channelUserID,
			ChannelConversationID: channelConversationID,
			Metadata:              metadata,
			Now:                   s.now(),
		})
		out = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return out, nil
}

// CreateLinkRequest mints a single-use link token.
func (s *LinkService) CreateLinkRequest(ctx context.Context, req LinkRequest) (*LinkTicket, error) {
	ctx, span := otel.Tracer("services/LinkService").Start(ctx, "CreateLinkRequest",
		trace.WithAttributes(attribute.String("channel", string(req.Channel))),
	)
	defer span.End()

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.TokenTTL
	}
	if ttl <= 0 {
		ttl = DefaultLinkTokenTTL
	}
	now := s.now()
	tok := &domain.ChannelLinkToken{
		Token:                 strings.ReplaceAll(uuid.NewString(), "-", ""),
		Channel:               req.Channel,
		ChannelUserID:         req.ChannelUserID,
		ChannelConversationID: req.ChannelConversationID,
		Metadata:              domain.JSONMap{}.Merge(req.Metadata),
		ExpiresAt:             now.Add(ttl),
		CreatedAt:             now,
	}
	if err := repo.CreateLinkToken(ctx, s.DB, tok); err != nil {
		return nil, fmt.Errorf("create link token: %w", err)
	}
	return &LinkTicket{Token: tok.Token, ExpiresAt: tok.ExpiresAt, LinkURL: s.LinkURL(tok.Token)}, nil
}

// CompleteLink consumes token and activates its identity for accountID.
// Exactly one of several concurrent completions of the same token succeeds;
// the others get ErrInvalidOrExpiredToken.
func (s *LinkService) CompleteLink(ctx context.Context, token, accountID string) (*LinkResult, error) {
	ctx, span := otel.Tracer("services/LinkService").Start(ctx, "CompleteLink")
	defer span.End()

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrInvalidUserID
	}

	var res *LinkResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		tok, err := repo.GetLinkTokenForUpdate(ctx, tx, token)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		if !tok.Usable(now) {
			return ErrInvalidOrExpiredToken
		}
		ok, err := repo.ConsumeLinkToken(ctx, tx, token, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOrExpiredToken
		}

		meta := tok.Metadata.Merge(map[string]any{"linkedAt": now.Format(time.RFC3339)})
		ident, err := repo.UpsertIdentity(ctx, tx, repo.IdentityUpsert{
			Channel:               tok.Channel,
			ChannelUserID:         tok.ChannelUserID,
			ChannelConversationID: tok.ChannelConversationID,
			AccountID:             &accountID,
			Status:                domain.IdentityActive,
			Metadata:              meta,
			Now:                   now,
		})
		if err != nil {
			return err
		}
		if _, err := repo.WriteAuditEvent(ctx, tx, &accountID, "channel.identity.linked", "channel_identity", ident.ID,
			map[string]any{"channel": string(tok.Channel), "channelUserId": tok.ChannelUserID}); err != nil {
			return err
		}
		res = &LinkResult{Linked: true, Channel: tok.Channel, ChannelUserID: tok.ChannelUserID, AccountID: accountID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("channel", string(res.Channel)))
	return res, nil
}

// SetIdentityStatus is the moderation hook: it blocks or re-activates an
// existing identity.
func (s *LinkService) SetIdentityStatus(ctx context.Context, channel domain.Channel, channelUserID string, status domain.IdentityStatus) error {
	if status != domain.IdentityActive && status != domain.IdentityBlocked {
		return ErrInvalidStatus
	}
	err := repo.SetIdentityStatus(ctx, s.DB, channel, channelUserID, status, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrIdentityNotFound
	}
	return err
}
