// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries over the outbox used
// by the metrics sweep and the admin API.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// QueueDepth is the number of outbound rows in one (channel, status) bucket.
type QueueDepth struct {
	Channel domain.Channel       `json:"channel"`
	Status  domain.MessageStatus `json:"status"`
	Count   int64                `json:"count"`
}

// OutboxDepth groups outbound rows by channel and status.
func OutboxDepth(ctx context.Context, db *gorm.DB) ([]QueueDepth, error) {
	var out []QueueDepth
	err := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Select("channel, status, COUNT(*) AS count").
		Where("direction = ?", domain.DirectionOutbound).
		Group("channel, status").
		Order("channel, status").
		Scan(&out).Error
	return out, err
}

// OldestQueued returns the creation time of the oldest queued row of a
// channel, or nil when the queue is empty.
func OldestQueued(ctx context.Context, db *gorm.DB, channel domain.Channel) (*time.Time, error) {
	// Order + Limit instead of MIN(): MIN() comes back as TEXT in SQLite.
	var rows []struct {
		CreatedAt time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.ChannelMessage{}).
		Select("created_at").
		Where("direction = ? AND status = ? AND channel = ?", domain.DirectionOutbound, domain.StatusQueued, channel).
		Order("created_at ASC").
		Limit(1).
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0].CreatedAt, nil
}
