// Package domain defines the persistence models for channel identities,
// link tokens, the message ledger (inbound events and the outbound queue),
// delivery attempts, dead letters and audit events. These types are mapped
// with GORM and are shared by the repository and service layers.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Channel identifies the external messaging surface a message belongs to.
type Channel string

const (
	ChannelChatGPT  Channel = "chatgpt"
	ChannelIMessage Channel = "imessage"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// Channels lists every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelChatGPT, ChannelIMessage, ChannelWhatsApp, ChannelTelegram}
}

// ParseChannel validates s against the supported channels.
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// IdentityStatus is the lifecycle state of a ChannelIdentity.
type IdentityStatus string

const (
	IdentityUnlinked IdentityStatus = "unlinked"
	IdentityActive   IdentityStatus = "active"
	IdentityBlocked  IdentityStatus = "blocked"
)

// Direction tells inbound events apart from queued replies.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus is the state of a ChannelMessage. Inbound rows move
// received → processing → processed. Outbound rows move
// queued → processing → sent | failed | dead_lettered.
type MessageStatus string

const (
	StatusReceived     MessageStatus = "received"
	StatusProcessed    MessageStatus = "processed"
	StatusQueued       MessageStatus = "queued"
	StatusProcessing   MessageStatus = "processing"
	StatusSent         MessageStatus = "sent"
	StatusFailed       MessageStatus = "failed"
	StatusDeadLettered MessageStatus = "dead_lettered"
)

// Terminal reports whether no further transition is allowed from s.
func (s MessageStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusSent || s == StatusDeadLettered
}

// AttemptStatus is the outcome recorded for one delivery attempt.
type AttemptStatus string

const (
	AttemptSent   AttemptStatus = "sent"
	AttemptFailed AttemptStatus = "failed"
)

// JSONMap is a free-form metadata object stored as serialized JSON text.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported source %T", src)
	}
	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// GormDataType keeps the column portable across sqlite and postgres.
func (JSONMap) GormDataType() string { return "text" }

// Merge returns a shallow copy of m with every key of next applied on top.
func (m JSONMap) Merge(next map[string]any) JSONMap {
	out := make(JSONMap, len(m)+len(next))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// ChannelIdentity binds one external (channel, user) pair to at most one
// internal account. Rows are never deleted; updates are idempotent merges.
type ChannelIdentity struct {
	ID                    string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	AccountID             *string        `json:"account_id,omitempty"    gorm:"type:varchar(64);index"`
	Channel               Channel        `json:"channel"                 gorm:"type:varchar(32);not null;uniqueIndex:ux_channel_identities_user,priority:1"`
	ChannelUserID         string         `json:"channel_user_id"         gorm:"type:varchar(255);not null;uniqueIndex:ux_channel_identities_user,priority:2"`
	ChannelConversationID string         `json:"channel_conversation_id" gorm:"type:varchar(255);not null"`
	Status                IdentityStatus `json:"status"                  gorm:"type:varchar(16);not null;default:'unlinked'"`
	Metadata              JSONMap        `json:"metadata"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ChannelIdentity.
func (ChannelIdentity) TableName() string { return "channel_identities" }

// Linked reports whether the identity may act on behalf of an account.
func (i *ChannelIdentity) Linked() bool {
	return i.AccountID != nil && *i.AccountID != "" && i.Status != IdentityUnlinked
}

// ChannelLinkToken is a single-use, time-boxed credential that binds an
// external identity to a future account-link action.
type ChannelLinkToken struct {
	Token                 string     `json:"token"                   gorm:"type:varchar(64);primaryKey"`
	Channel               Channel    `json:"channel"                 gorm:"type:varchar(32);not null"`
	ChannelUserID         string     `json:"channel_user_id"         gorm:"type:varchar(255);not null;index"`
	ChannelConversationID string     `json:"channel_conversation_id" gorm:"type:varchar(255);not null"`
	Metadata              JSONMap    `json:"metadata"`
	ExpiresAt             time.Time  `json:"expires_at"              gorm:"not null;index"`
	ConsumedAt            *time.Time `json:"consumed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// TableName returns the database table name for ChannelLinkToken.
func (ChannelLinkToken) TableName() string { return "channel_link_tokens" }

// Usable reports whether the token can still be consumed at now.
func (t *ChannelLinkToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && t.ExpiresAt.After(now)
}

// ChannelMessage is one row of the delivery ledger. Inbound rows record
// provider events for dedup; outbound rows form the outbox queue.
//
// Payload holds the serialized envelope (InboundEvent or OutboundMessage);
// use DecodeInbound / DecodeOutbound right after reading.
//
// ProviderMessageID is unique per channel for inbound rows only. On outbound
// rows it holds the provider's receipt id, which some providers (Telegram)
// only number per chat.
type ChannelMessage struct {
	ID                    string        `json:"id"                          gorm:"type:char(36);primaryKey"`
	Direction             Direction     `json:"direction"                   gorm:"type:varchar(16);not null;uniqueIndex:ux_channel_messages_provider,priority:2,where:direction = 'inbound';index:idx_channel_messages_claim,priority:1"`
	Channel               Channel       `json:"channel"                     gorm:"type:varchar(32);not null;uniqueIndex:ux_channel_messages_provider,priority:1;uniqueIndex:ux_channel_messages_idem,priority:1;index:idx_channel_messages_claim,priority:2"`
	AccountID             *string       `json:"account_id,omitempty"        gorm:"type:varchar(64);index"`
	ChannelUserID         string        `json:"channel_user_id"             gorm:"type:varchar(255);not null"`
	ChannelConversationID string        `json:"channel_conversation_id"     gorm:"type:varchar(255);not null"`
	ProviderMessageID     *string       `json:"provider_message_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_channel_messages_provider,priority:3"`
	CorrelationID         *string       `json:"correlation_id,omitempty"    gorm:"type:varchar(64);index"`
	IdempotencyKey        *string       `json:"idempotency_key,omitempty"   gorm:"type:varchar(120);uniqueIndex:ux_channel_messages_idem,priority:2"`
	Payload               string        `json:"-"                           gorm:"type:text;not null"`
	Status                MessageStatus `json:"status"                      gorm:"type:varchar(16);not null;index:idx_channel_messages_claim,priority:3"`
	AttemptCount          int           `json:"attempt_count"               gorm:"not null;default:0"`
	LastError             *string       `json:"last_error,omitempty"        gorm:"type:text"`
	LockedUntil           *time.Time    `json:"locked_until,omitempty"      gorm:"index"`
	NextAttemptAt         *time.Time    `json:"next_attempt_at,omitempty"   gorm:"index"`
	CreatedAt             time.Time     `json:"created_at"                  gorm:"index:idx_channel_messages_claim,priority:4"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// TableName returns the database table name for ChannelMessage.
func (ChannelMessage) TableName() string { return "channel_messages" }

// ChannelDeliveryAttempt is an append-only audit row written per send attempt.
type ChannelDeliveryAttempt struct {
	ID           string        `json:"id"                      gorm:"type:char(36);primaryKey"`
	MessageID    string        `json:"message_id"              gorm:"type:char(36);not null;index:idx_delivery_attempts_msg,priority:1"`
	AttemptNo    int           `json:"attempt_no"              gorm:"not null;index:idx_delivery_attempts_msg,priority:2"`
	Status       AttemptStatus `json:"status"                  gorm:"type:varchar(16);not null"`
	ResponseCode *int          `json:"response_code,omitempty"`
	ResponseBody *string       `json:"response_body,omitempty" gorm:"type:text"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TableName returns the database table name for ChannelDeliveryAttempt.
func (ChannelDeliveryAttempt) TableName() string { return "channel_delivery_attempts" }

// DeadLetterEvent is the terminal, operator-visible record of a message
// that exhausted its retry budget.
type DeadLetterEvent struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Channel     Channel   `json:"channel"      gorm:"type:varchar(32);not null;index"`
	Source      string    `json:"source"       gorm:"type:varchar(64);not null"`
	ReferenceID string    `json:"reference_id" gorm:"type:char(36);not null;index"`
	Payload     string    `json:"payload"      gorm:"type:text;not null"`
	Reason      string    `json:"reason"       gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index"`
}

// TableName returns the database table name for DeadLetterEvent.
func (DeadLetterEvent) TableName() string { return "dead_letter_events" }

// AuditEvent is a best-effort trail of notable saga steps.
type AuditEvent struct {
	ID             string    `json:"id"                         gorm:"type:char(36);primaryKey"`
	ActorAccountID *string   `json:"actor_account_id,omitempty" gorm:"type:varchar(64);index"`
	EventType      string    `json:"event_type"                 gorm:"type:varchar(128);not null;index"`
	EntityType     string    `json:"entity_type"                gorm:"type:varchar(64);not null"`
	EntityID       string    `json:"entity_id"                  gorm:"type:varchar(255);not null"`
	Payload        JSONMap   `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditEvent.
func (AuditEvent) TableName() string { return "audit_events" }
