package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

func TestUpsertIdentity_CreatesUnlinked(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	got, err := UpsertIdentity(ctx, db, IdentityUpsert{
		Channel: domain.ChannelTelegram, ChannelUserID: "42", ChannelConversationID: "chat-42",
		Metadata: map[string]any{"firstSeen": "yes"},
	})
	if err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}
	if got.Status != domain.IdentityUnlinked || got.AccountID != nil {
		t.Fatalf("expected new unlinked identity, got %+v", got)
	}

	again, err := UpsertIdentity(ctx, db, IdentityUpsert{Channel: domain.ChannelTelegram, ChannelUserID: "42"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != got.ID {
		t.Fatalf("upsert created a second identity: %s vs %s", again.ID, got.ID)
	}
	var n int64
	db.Model(&domain.ChannelIdentity{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 identity row, got %d", n)
	}
}

func TestUpsertIdentity_MergesWithoutDowngradingAccount(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	acct := "acct-1"

	if _, err := UpsertIdentity(ctx, db, IdentityUpsert{
		Channel: domain.ChannelWhatsApp, ChannelUserID: "1555", ChannelConversationID: "1555",
		AccountID: &acct, Status: domain.IdentityActive,
		Metadata: map[string]any{"a": "1", "b": "1"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := UpsertIdentity(ctx, db, IdentityUpsert{
		Channel: domain.ChannelWhatsApp, ChannelUserID: "1555", ChannelConversationID: "conv-2",
		AccountID: nil,
		Metadata:  map[string]any{"b": "2", "c": "3"},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got.AccountID == nil || *got.AccountID != acct {
		t.Fatalf("account id downgraded: %+v", got.AccountID)
	}
	if got.Status != domain.IdentityActive {
		t.Fatalf("status changed without request: %s", got.Status)
	}

	stored, err := GetIdentity(ctx, db, domain.ChannelWhatsApp, "1555")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if stored.ChannelConversationID != "conv-2" {
		t.Fatalf("conversation id not merged: %q", stored.ChannelConversationID)
	}
	if stored.Metadata["a"] != "1" || stored.Metadata["b"] != "2" || stored.Metadata["c"] != "3" {
		t.Fatalf("metadata not shallow-merged: %#v", stored.Metadata)
	}
	if stored.AccountID == nil || *stored.AccountID != acct {
		t.Fatalf("stored account id downgraded: %+v", stored.AccountID)
	}
}

func TestSetIdentityStatus(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := SetIdentityStatus(ctx, db, domain.ChannelTelegram, "missing", domain.IdentityBlocked, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := UpsertIdentity(ctx, db, IdentityUpsert{Channel: domain.ChannelTelegram, ChannelUserID: "7", ChannelConversationID: "7"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SetIdentityStatus(ctx, db, domain.ChannelTelegram, "7", domain.IdentityBlocked, now); err != nil {
		t.Fatalf("SetIdentityStatus: %v", err)
	}
	got, _ := GetIdentity(ctx, db, domain.ChannelTelegram, "7")
	if got.Status != domain.IdentityBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}
}

func TestLinkToken_ConsumeOnce(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &domain.ChannelLinkToken{
		Token: "tok123456789abc", Channel: domain.ChannelTelegram, ChannelUserID: "42",
		ChannelConversationID: "42", ExpiresAt: now.Add(15 * time.Minute), CreatedAt: now,
	}
	if err := CreateLinkToken(ctx, db, tok); err != nil {
		t.Fatalf("CreateLinkToken: %v", err)
	}
	if err := CreateLinkToken(ctx, db, tok); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on reused token, got %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := GetLinkTokenForUpdate(ctx, tx, tok.Token)
		if err != nil {
			return err
		}
		if !got.Usable(now) {
			t.Fatalf("fresh token not usable")
		}
		ok, err := ConsumeLinkToken(ctx, tx, tok.Token, now)
		if err != nil || !ok {
			t.Fatalf("first consume = %v, %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	ok, err := ConsumeLinkToken(ctx, db, tok.Token, now)
	if err != nil || ok {
		t.Fatalf("second consume = %v, %v; want false, nil", ok, err)
	}
	if _, err := GetLinkTokenForUpdate(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLinkToken_ExpiredCannotBeConsumed(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &domain.ChannelLinkToken{
		Token: "expired-token-1", Channel: domain.ChannelWhatsApp, ChannelUserID: "1",
		ChannelConversationID: "1", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}
	if err := CreateLinkToken(ctx, db, tok); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := ConsumeLinkToken(ctx, db, tok.Token, now)
	if err != nil || ok {
		t.Fatalf("expired consume = %v, %v", ok, err)
	}
}
