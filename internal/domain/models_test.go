package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&ChannelIdentity{}, &ChannelLinkToken{}, &ChannelMessage{},
		&ChannelDeliveryAttempt{}, &DeadLetterEvent{}, &AuditEvent{}, &Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(ChannelIdentity{}).TableName():        "channel_identities",
		(ChannelLinkToken{}).TableName():       "channel_link_tokens",
		(ChannelMessage{}).TableName():         "channel_messages",
		(ChannelDeliveryAttempt{}).TableName(): "channel_delivery_attempts",
		(DeadLetterEvent{}).TableName():        "dead_letter_events",
		(AuditEvent{}).TableName():             "audit_events",
		(Idempotency{}).TableName():            "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestParseChannel(t *testing.T) {
	for _, c := range Channels() {
		got, err := ParseChannel(string(c))
		if err != nil || got != c {
			t.Fatalf("ParseChannel(%q) = %q, %v", c, got, err)
		}
	}
	if _, err := ParseChannel("sms"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestMessageStatus_Terminal(t *testing.T) {
	terminal := []MessageStatus{StatusProcessed, StatusSent, StatusDeadLettered}
	open := []MessageStatus{StatusReceived, StatusQueued, StatusProcessing, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestChannelMessage_UniqueIndexes(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	in := func(id string) *ChannelMessage {
		return &ChannelMessage{
			ID: id, Direction: DirectionInbound, Channel: ChannelTelegram,
			ChannelUserID: "u1", ChannelConversationID: "c1",
			ProviderMessageID: strp("evt-1"), Payload: "{}", Status: StatusReceived,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	if err := db.Create(in("m1")).Error; err != nil {
		t.Fatalf("first inbound: %v", err)
	}
	if err := db.Create(in("m2")).Error; err == nil {
		t.Fatal("expected unique violation on (channel, direction, provider_message_id)")
	}

	out := func(id, key string) *ChannelMessage {
		return &ChannelMessage{
			ID: id, Direction: DirectionOutbound, Channel: ChannelTelegram,
			ChannelUserID: "u1", ChannelConversationID: "c1",
			IdempotencyKey: strp(key), Payload: "{}", Status: StatusQueued,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	// NULL provider ids never collide with each other.
	if err := db.Create(out("o1", "outbound-a-reply")).Error; err != nil {
		t.Fatalf("outbound o1: %v", err)
	}
	if err := db.Create(out("o2", "outbound-b-reply")).Error; err != nil {
		t.Fatalf("outbound o2: %v", err)
	}
	if err := db.Create(out("o3", "outbound-a-reply")).Error; err == nil {
		t.Fatal("expected unique violation on (channel, idempotency_key)")
	}
}

func TestJSONMap_RoundTripAndMerge(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	id := &ChannelIdentity{
		ID: "i1", Channel: ChannelWhatsApp, ChannelUserID: "15550001", ChannelConversationID: "15550001",
		Status: IdentityUnlinked, Metadata: JSONMap{"source": "webhook", "n": 1},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(id).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got ChannelIdentity
	if err := db.First(&got, "id = ?", "i1").Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Metadata["source"] != "webhook" {
		t.Fatalf("metadata not round-tripped: %#v", got.Metadata)
	}

	merged := got.Metadata.Merge(map[string]any{"source": "link", "linkedAt": "x"})
	if merged["source"] != "link" || merged["linkedAt"] != "x" || merged["n"] == nil {
		t.Fatalf("merge = %#v", merged)
	}
	if got.Metadata["source"] != "webhook" {
		t.Fatal("Merge must not mutate the receiver")
	}

	var empty JSONMap
	if err := empty.Scan(nil); err != nil || empty == nil {
		t.Fatalf("Scan(nil) = %v, %#v", err, empty)
	}
	if v, _ := JSONMap(nil).Value(); v != "{}" {
		t.Fatalf("nil Value() = %v", v)
	}
}

func TestChannelIdentity_Linked(t *testing.T) {
	acct := "acct-1"
	cases := []struct {
		name string
		id   ChannelIdentity
		want bool
	}{
		{"no account", ChannelIdentity{Status: IdentityActive}, false},
		{"unlinked with account", ChannelIdentity{AccountID: &acct, Status: IdentityUnlinked}, false},
		{"active", ChannelIdentity{AccountID: &acct, Status: IdentityActive}, true},
		{"blocked keeps link", ChannelIdentity{AccountID: &acct, Status: IdentityBlocked}, true},
	}
	for _, tc := range cases {
		if got := tc.id.Linked(); got != tc.want {
			t.Fatalf("%s: Linked() = %v; want %v", tc.name, got, tc.want)
		}
	}
}

func TestLinkToken_Usable(t *testing.T) {
	now := time.Now().UTC()
	tok := ChannelLinkToken{ExpiresAt: now.Add(time.Minute)}
	if !tok.Usable(now) {
		t.Fatal("fresh token should be usable")
	}
	if tok.Usable(now.Add(2 * time.Minute)) {
		t.Fatal("expired token should not be usable")
	}
	tok.ConsumedAt = &now
	if tok.Usable(now) {
		t.Fatal("consumed token should not be usable")
	}
}
