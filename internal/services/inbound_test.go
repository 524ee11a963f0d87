package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

func inboundEvent(id, text string, signed bool) domain.InboundEvent {
	return domain.InboundEvent{
		EventID:               id,
		Channel:               domain.ChannelTelegram,
		ChannelUserID:         "42",
		ChannelConversationID: "42",
		ReceivedAt:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Text:                  &text,
		Media:                 []domain.Media{},
		Metadata:              map[string]any{},
		SignatureValidated:    signed,
	}
}

func TestInboundRecorder_DedupReturnsSameRow(t *testing.T) {
	r := &InboundRecorder{DB: newSvcDB(t)}
	ctx := context.Background()

	first, err := r.RecordInbound(ctx, inboundEvent("evt-1", "hello", true), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReceived, first.Status)

	second, err := r.RecordInbound(ctx, inboundEvent("evt-1", "changed", true), strp("acct"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, *first.CorrelationID, *second.CorrelationID)

	var count int64
	require.NoError(t, r.DB.Model(&domain.ChannelMessage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	ev, err := second.DecodeInbound()
	require.NoError(t, err)
	assert.Equal(t, "hello", ev.TextValue())
}

func TestInboundRecorder_MarkProcessed(t *testing.T) {
	r := &InboundRecorder{DB: newSvcDB(t)}
	ctx := context.Background()

	row, err := r.RecordInbound(ctx, inboundEvent("evt-2", "x", true), nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkProcessed(ctx, row.ID))
	require.NoError(t, r.MarkProcessed(ctx, row.ID))
	require.NoError(t, r.MarkProcessed(ctx, "missing"))

	again, err := r.RecordInbound(ctx, inboundEvent("evt-2", "x", true), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, again.Status)
}
