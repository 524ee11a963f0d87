package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEnvelope wraps every validation failure of a canonical envelope.
var ErrInvalidEnvelope = errors.New("invalid envelope")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Media references an attachment carried by an inbound event. Download is
// left to the domain services; only identifiers travel through the saga.
type Media struct {
	MediaID   string `json:"mediaId,omitempty"   validate:"omitempty,max=512"`
	RemoteURL string `json:"remoteUrl,omitempty" validate:"omitempty,url"`
	MimeType  string `json:"mimeType,omitempty"  validate:"omitempty,max=128"`
}

// InboundEvent is the canonical, channel-agnostic inbound envelope produced
// by every webhook or poller before it reaches the orchestrator.
type InboundEvent struct {
	EventID               string         `json:"eventId"               validate:"required,max=255"`
	Channel               Channel        `json:"channel"               validate:"required,oneof=chatgpt imessage whatsapp telegram"`
	ChannelUserID         string         `json:"channelUserId"         validate:"required,max=255"`
	ChannelConversationID string         `json:"channelConversationId" validate:"required,max=255"`
	ReceivedAt            time.Time      `json:"receivedAt"            validate:"required"`
	Text                  *string        `json:"text,omitempty"        validate:"omitempty,max=8000"`
	Media                 []Media        `json:"media"                 validate:"max=20,dive"`
	Metadata              map[string]any `json:"metadata"`
	SignatureValidated    bool           `json:"signatureValidated"`
}

// Validate checks struct constraints and returns an ErrInvalidEnvelope wrap.
func (e *InboundEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// TextValue returns the event text or "".
func (e *InboundEvent) TextValue() string {
	if e.Text == nil {
		return ""
	}
	return *e.Text
}

// PartType discriminates MessagePart variants.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartLink  PartType = "link"
)

// MessagePart is a closed union over text, image and link parts. Only the
// fields of the active variant are populated; use the constructors.
type MessagePart struct {
	Type    PartType `json:"type"              validate:"required,oneof=text image link"`
	Text    string   `json:"text,omitempty"    validate:"max=4096"`
	URL     string   `json:"url,omitempty"     validate:"omitempty,url"`
	Caption string   `json:"caption,omitempty" validate:"max=1024"`
	Title   string   `json:"title,omitempty"   validate:"max=256"`
}

func TextPart(text string) MessagePart { return MessagePart{Type: PartText, Text: text} }

func ImagePart(url, caption string) MessagePart {
	return MessagePart{Type: PartImage, URL: url, Caption: caption}
}

func LinkPart(url, title string) MessagePart {
	return MessagePart{Type: PartLink, URL: url, Title: title}
}

func (p MessagePart) check() error {
	switch p.Type {
	case PartText:
		if p.Text == "" || p.URL != "" {
			return errors.New("text part requires text only")
		}
	case PartImage, PartLink:
		if p.URL == "" || p.Text != "" {
			return fmt.Errorf("%s part requires url only", p.Type)
		}
	default:
		return fmt.Errorf("unknown part type %q", p.Type)
	}
	return nil
}

// OutboundMessage is the canonical outbound envelope stored in the outbox.
type OutboundMessage struct {
	MessageID             string         `json:"messageId"             validate:"required,max=64"`
	CorrelationID         string         `json:"correlationId"         validate:"required,max=64"`
	Channel               Channel        `json:"channel"               validate:"required,oneof=chatgpt imessage whatsapp telegram"`
	ChannelConversationID string         `json:"channelConversationId" validate:"required,max=255"`
	RecipientID           string         `json:"recipientId"           validate:"required,max=255"`
	Parts                 []MessagePart  `json:"parts"                 validate:"required,min=1,max=20,dive"`
	IdempotencyKey        string         `json:"idempotencyKey"        validate:"required,min=8,max=120"`
	Metadata              map[string]any `json:"metadata"`
}

// Validate checks struct constraints plus the part union invariants.
func (m *OutboundMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	for i, p := range m.Parts {
		if err := p.check(); err != nil {
			return fmt.Errorf("%w: parts[%d]: %v", ErrInvalidEnvelope, i, err)
		}
	}
	return nil
}

// Texts returns the text of every text part in order.
func (m *OutboundMessage) Texts() []string {
	var out []string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out = append(out, p.Text)
		}
	}
	return out
}

// EncodePayload serializes an envelope for the payload column.
func EncodePayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeInbound deserializes the payload of an inbound row.
func (m *ChannelMessage) DecodeInbound() (*InboundEvent, error) {
	if m.Direction != DirectionInbound {
		return nil, fmt.Errorf("message %s is %s, not inbound", m.ID, m.Direction)
	}
	var ev InboundEvent
	if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
		return nil, fmt.Errorf("decode inbound payload: %w", err)
	}
	return &ev, nil
}

// DecodeOutbound deserializes the payload of an outbound row.
func (m *ChannelMessage) DecodeOutbound() (*OutboundMessage, error) {
	if m.Direction != DirectionOutbound {
		return nil, fmt.Errorf("message %s is %s, not outbound", m.ID, m.Direction)
	}
	var out OutboundMessage
	if err := json.Unmarshal([]byte(m.Payload), &out); err != nil {
		return nil, fmt.Errorf("decode outbound payload: %w", err)
	}
	return &out, nil
}

// DeliveryReceipt is what a channel adapter reports for one send attempt.
type DeliveryReceipt struct {
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	ResponseCode      *int   `json:"responseCode,omitempty"`
	ResponseBody      string `json:"responseBody,omitempty"`
}
