package repo

import (
	"context"
	"testing"
)

func TestWriteAuditEvent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := WriteAuditEvent(ctx, db, nil, "channel.inbound.received", "channel_message", "m1",
		map[string]any{"channel": "telegram", "signatureValidated": true}); err != nil {
		t.Fatalf("WriteAuditEvent: %v", err)
	}
	empty := ""
	if _, err := WriteAuditEvent(ctx, db, &empty, "channel.inbound.received", "channel_message", "m2", nil); err != nil {
		t.Fatalf("WriteAuditEvent (nil payload): %v", err)
	}

	got, err := ListAuditEvents(ctx, db, "channel.inbound.received")
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	byEntity := map[string]int{}
	for i, ev := range got {
		byEntity[ev.EntityID] = i
	}
	if got[byEntity["m1"]].Payload["channel"] != "telegram" {
		t.Fatalf("payload not stored: %#v", got[byEntity["m1"]].Payload)
	}
	if a := got[byEntity["m2"]].ActorAccountID; a != nil {
		t.Fatalf("empty actor should be stored as NULL, got %q", *a)
	}
}
