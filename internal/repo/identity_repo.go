// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for channel
// identities and one-time link tokens.
//
// All functions are context-aware and accept a *gorm.DB handle so they can
// run inside a caller-owned transaction.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// IdentityUpsert describes a merge into the identity keyed by
// (Channel, ChannelUserID). Zero fields leave the stored value untouched.
type IdentityUpsert struct {
	Channel               domain.Channel
	ChannelUserID         string
	ChannelConversationID string
	AccountID             *string
	Status                domain.IdentityStatus
	Metadata              map[string]any
	Now                   time.Time
}

// GetIdentity fetches an identity by its external key or returns ErrNotFound.
func GetIdentity(ctx context.Context, db *gorm.DB, channel domain.Channel, channelUserID string) (*domain.ChannelIdentity, error) {
	var out domain.ChannelIdentity
	err := db.WithContext(ctx).
		Where("channel = ? AND channel_user_id = ?", channel, channelUserID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertIdentity inserts the identity when absent, otherwise merges into it:
// the account id is never downgraded (COALESCE(new, old)), metadata is merged
// shallowly with new keys winning, and a non-empty conversation id replaces
// the stored one. Run it inside a transaction so the read-merge-write holds
// the row lock on Postgres.
func UpsertIdentity(ctx context.Context, db *gorm.DB, in IdentityUpsert) (*domain.ChannelIdentity, error) {
	db = db.WithContext(ctx)
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	status := in.Status
	if status == "" {
		status = domain.IdentityUnlinked
	}
	row := &domain.ChannelIdentity{
		ID:                    uuid.NewString(),
		AccountID:             nonEmpty(in.AccountID),
		Channel:               in.Channel,
		ChannelUserID:         in.ChannelUserID,
		ChannelConversationID: in.ChannelConversationID,
		Status:                status,
		Metadata:              domain.JSONMap{}.Merge(in.Metadata),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}, {Name: "channel_user_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return row, nil
	}

	var cur domain.ChannelIdentity
	if err := lockRows(db, false).
		Where("channel = ? AND channel_user_id = ?", in.Channel, in.ChannelUserID).
		First(&cur).Error; err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": now}
	if in.ChannelConversationID != "" && in.ChannelConversationID != cur.ChannelConversationID {
		updates["channel_conversation_id"] = in.ChannelConversationID
		cur.ChannelConversationID = in.ChannelConversationID
	}
	if acct := nonEmpty(in.AccountID); acct != nil {
		updates["account_id"] = *acct
		cur.AccountID = acct
	}
	if in.Status != "" && in.Status != cur.Status {
		updates["status"] = string(in.Status)
		cur.Status = in.Status
	}
	if len(in.Metadata) > 0 {
		cur.Metadata = cur.Metadata.Merge(in.Metadata)
		updates["metadata"] = cur.Metadata
	}
	if err := db.Model(&domain.ChannelIdentity{}).Where("id = ?", cur.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	cur.UpdatedAt = now
	return &cur, nil
}

// SetIdentityStatus updates the status of an existing identity. It returns
// ErrNotFound when no row matches.
func SetIdentityStatus(ctx context.Context, db *gorm.DB, channel domain.Channel, channelUserID string, status domain.IdentityStatus, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ChannelIdentity{}).
		Where("channel = ? AND channel_user_id = ?", channel, channelUserID).
		Updates(map[string]any{"status": string(status), "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateLinkToken persists a freshly minted token.
func CreateLinkToken(ctx context.Context, db *gorm.DB, tok *domain.ChannelLinkToken) error {
	if err := db.WithContext(ctx).Create(tok).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetLinkTokenForUpdate reads a token, locking the row on Postgres.
func GetLinkTokenForUpdate(ctx context.Context, db *gorm.DB, token string) (*domain.ChannelLinkToken, error) {
	var out domain.ChannelLinkToken
	if err := lockRows(db.WithContext(ctx), false).Where("token = ?", token).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumeLinkToken marks a token consumed if it is still usable at now. It
// reports false when another caller consumed it first or it expired.
func ConsumeLinkToken(ctx context.Context, db *gorm.DB, token string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChannelLinkToken{}).
		Where("token = ? AND consumed_at IS NULL AND expires_at > ?", token, now).
		Update("consumed_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
