package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

const (
	DefaultWhatsAppBaseURL    = "https://graph.facebook.com"
	DefaultWhatsAppAPIVersion = "v21.0"

	maxResponseBody = 64 << 10
)

// WhatsAppConfig configures the Cloud API sender.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIBaseURL    string
	APIVersion    string
	HTTPClient    *http.Client
}

// WhatsAppSender delivers outbound envelopes through the WhatsApp Cloud API.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppSender(cfg WhatsAppConfig) (*WhatsAppSender, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" || strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp access token and phone number id are required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultWhatsAppBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultWhatsAppAPIVersion
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WhatsAppSender{cfg: cfg, client: client}, nil
}

func (s *WhatsAppSender) Channel() domain.Channel { return domain.ChannelWhatsApp }

type waImage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waSendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             *waText  `json:"text,omitempty"`
	Image            *waImage `json:"image,omitempty"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts a text or image message to the recipient's phone number.
func (s *WhatsAppSender) Send(ctx context.Context, msg domain.OutboundMessage) (domain.DeliveryReceipt, error) {
	body := BuildText(msg.Parts)
	req := waSendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               msg.RecipientID,
	}
	if img, ok := FirstImage(msg.Parts); ok {
		req.Type = "image"
		req.Image = &waImage{Link: img.URL, Caption: photoCaption(img, body)}
	} else {
		if body == "" {
			body = fallbackText
		}
		req.Type = "text"
		req.Text = &waText{Body: body}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(s.cfg.APIBaseURL, "/"), s.cfg.APIVersion, url.PathEscape(s.cfg.PhoneNumberID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return domain.DeliveryReceipt{}, &SendError{Channel: domain.ChannelWhatsApp, Body: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	text := string(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.DeliveryReceipt{}, &SendError{Channel: domain.ChannelWhatsApp, StatusCode: resp.StatusCode, Body: text}
	}

	code := resp.StatusCode
	receipt := domain.DeliveryReceipt{ResponseCode: &code, ResponseBody: text}
	var parsed waSendResponse
	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Messages) > 0 {
		receipt.ProviderMessageID = parsed.Messages[0].ID
	}
	return receipt, nil
}

// VerifyWhatsAppSignature checks an X-Hub-Signature-256 header
// ("sha256=<hex>") against the HMAC-SHA256 of the raw body.
func VerifyWhatsAppSignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || len(sig) != sha256.Size*2 {
		return false
	}
	sent, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), sent)
}

// WhatsAppWebhook is the subset of the Cloud API webhook payload that
// carries user messages.
type WhatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []WhatsAppMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppMessage is one inbound user message.
type WhatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *waMedia `json:"image,omitempty"`
	Document *waMedia `json:"document,omitempty"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// NormalizeWhatsApp flattens every user message of a webhook payload into
// canonical inbound events. Messages without id or sender are skipped.
func NormalizeWhatsApp(hook WhatsAppWebhook, signatureValidated bool, now time.Time) []domain.InboundEvent {
	var out []domain.InboundEvent
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.ID == "" || m.From == "" {
					continue
				}
				ev := domain.InboundEvent{
					EventID:               m.ID,
					Channel:               domain.ChannelWhatsApp,
					ChannelUserID:         m.From,
					ChannelConversationID: m.From,
					ReceivedAt:            unixOr(m.Timestamp, now),
					Media:                 []domain.Media{},
					Metadata:              map[string]any{"type": m.Type},
					SignatureValidated:    signatureValidated,
				}
				if m.Type == "text" && m.Text != nil && strings.TrimSpace(m.Text.Body) != "" {
					body := m.Text.Body
					ev.Text = &body
				}
				for _, media := range []*waMedia{m.Image, m.Document} {
					if media == nil || media.ID == "" {
						continue
					}
					ev.Media = append(ev.Media, domain.Media{MediaID: media.ID, MimeType: media.MimeType})
					if ev.Text == nil && strings.TrimSpace(media.Caption) != "" {
						caption := media.Caption
						ev.Text = &caption
					}
				}
				out = append(out, ev)
			}
		}
	}
	return out
}

func unixOr(ts string, def time.Time) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return def.UTC()
	}
	return time.Unix(sec, 0).UTC()
}
