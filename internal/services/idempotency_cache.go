// Package services – IdempotencyCache
//
// This file memoizes tool responses per (user, operation, idempotency key).
// A replay with the same request body returns the stored response; the same
// key with a different body is a conflict. Request bodies are compared by a
// blake3 fingerprint of their canonical JSON form.
package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// DefaultIdempotencyTTL is the replay window when TTL is zero.
const DefaultIdempotencyTTL = time.Hour

// IdempotencyCache stores responses in the idempotency table.
type IdempotencyCache struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// IdempotencyEntry is a stored response.
type IdempotencyEntry struct {
	StatusCode int
	Response   json.RawMessage
	CreatedAt  time.Time
}

func (c *IdempotencyCache) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Fingerprint hashes the canonical JSON of request: object keys sorted,
// numbers kept verbatim.
func Fingerprint(request any) (string, error) {
	raw, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}
	canon, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Lookup returns the live entry for the key. It reports false on a miss and
// ErrIdempotencyConflict when the key was used with a different request.
func (c *IdempotencyCache) Lookup(ctx context.Context, userID, operation, key string, request any) (*IdempotencyEntry, bool, error) {
	if key == "" {
		return nil, false, ErrIdempotencyKeyRequired
	}
	fp, err := Fingerprint(request)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint: %w", err)
	}
	rec, err := repo.GetIdempotency(ctx, c.DB, userID, operation, key, c.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if rec.RequestHash != fp {
		return nil, false, ErrIdempotencyConflict
	}
	return &IdempotencyEntry{
		StatusCode: rec.StatusCode,
		Response:   json.RawMessage(rec.Response),
		CreatedAt:  rec.CreatedAt,
	}, true, nil
}

// Store saves response for the key. When a concurrent writer stored first,
// its record is kept and Store returns nil.
func (c *IdempotencyCache) Store(ctx context.Context, userID, operation, key string, request any, status int, response any) error {
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	fp, err := Fingerprint(request)
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now := c.now()
	err = repo.SaveIdempotency(ctx, c.DB, &domain.Idempotency{
		UserID:      userID,
		Operation:   operation,
		Key:         key,
		RequestHash: fp,
		StatusCode:  status,
		Response:    string(body),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}, now)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Purge deletes expired entries.
func (c *IdempotencyCache) Purge(ctx context.Context) (int64, error) {
	n, err := repo.PurgeExpiredIdempotency(ctx, c.DB, c.now())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency: %w", err)
	}
	sweepRows.WithLabelValues("idempotency_purge").Add(float64(n))
	return n, nil
}
