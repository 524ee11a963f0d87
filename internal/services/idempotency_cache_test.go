package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_IgnoresKeyOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"b": 1, "a": []any{"x", 2.5}})
	require.NoError(t, err)
	b, err := Fingerprint(json.RawMessage(`{"a":["x",2.5],"b":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(map[string]any{"a": []any{"x", 2.5}, "b": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestIdempotencyCache_LookupStoreConflict(t *testing.T) {
	clk := newStepClock()
	c := &IdempotencyCache{DB: newSvcDB(t), TTL: time.Hour, Now: clk.Now}
	ctx := context.Background()
	req := map[string]any{"outfitCount": 4}

	_, hit, err := c.Lookup(ctx, "u1", "plan.generateOutfits", "k-1", req)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Store(ctx, "u1", "plan.generateOutfits", "k-1", req, http.StatusOK, map[string]any{"ok": true}))

	entry, hit, err := c.Lookup(ctx, "u1", "plan.generateOutfits", "k-1", req)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(entry.Response))

	_, _, err = c.Lookup(ctx, "u1", "plan.generateOutfits", "k-1", map[string]any{"outfitCount": 5})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	// First writer wins.
	require.NoError(t, c.Store(ctx, "u1", "plan.generateOutfits", "k-1", req, http.StatusCreated, map[string]any{"ok": false}))
	entry, _, _ = c.Lookup(ctx, "u1", "plan.generateOutfits", "k-1", req)
	assert.Equal(t, http.StatusOK, entry.StatusCode)

	_, _, err = c.Lookup(ctx, "u1", "op", "", req)
	assert.ErrorIs(t, err, ErrIdempotencyKeyRequired)
}

func TestIdempotencyCache_ExpiryAndPurge(t *testing.T) {
	clk := newStepClock()
	c := &IdempotencyCache{DB: newSvcDB(t), TTL: time.Minute, Now: clk.Now}
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, "u", "op", "key-1", "req", http.StatusOK, "resp"))
	clk.Advance(2 * time.Minute)

	_, hit, err := c.Lookup(ctx, "u", "op", "key-1", "other request")
	require.NoError(t, err)
	assert.False(t, hit, "expired entries are ignored, even on mismatch")

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
