package channels

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// TelegramConfig configures the Bot API sender.
type TelegramConfig struct {
	BotToken   string
	APIBaseURL string // e.g. https://api.telegram.org; empty means the library default
	HTTPClient *http.Client
}

// TelegramSender delivers outbound envelopes through the Telegram Bot API.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender builds a sender without calling getMe, so start-up does
// not depend on Telegram being reachable.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	bot := &tgbotapi.BotAPI{Token: token, Client: client, Buffer: 100}
	endpoint := tgbotapi.APIEndpoint
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
		endpoint = base + "/bot%s/%s"
	}
	bot.SetAPIEndpoint(endpoint)
	return &TelegramSender{bot: bot}, nil
}

func (s *TelegramSender) Channel() domain.Channel { return domain.ChannelTelegram }

// Send posts a photo when the envelope carries an image part, otherwise a
// text message. The chat is the conversation id, falling back to the
// recipient.
func (s *TelegramSender) Send(_ context.Context, msg domain.OutboundMessage) (domain.DeliveryReceipt, error) {
	target := msg.ChannelConversationID
	if target == "" {
		target = msg.RecipientID
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return domain.DeliveryReceipt{}, &SendError{Channel: domain.ChannelTelegram, Body: fmt.Sprintf("invalid chat id %q", target)}
	}

	body := BuildText(msg.Parts)
	var c tgbotapi.Chattable
	if img, ok := FirstImage(msg.Parts); ok {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(img.URL))
		photo.Caption = photoCaption(img, body)
		c = photo
	} else {
		if body == "" {
			body = fallbackText
		}
		c = tgbotapi.NewMessage(chatID, body)
	}

	sent, err := s.bot.Send(c)
	if err != nil {
		return domain.DeliveryReceipt{}, telegramError(err)
	}
	code := http.StatusOK
	return domain.DeliveryReceipt{
		ProviderMessageID: strconv.Itoa(sent.MessageID),
		ResponseCode:      &code,
	}, nil
}

func telegramError(err error) *SendError {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &SendError{Channel: domain.ChannelTelegram, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiVal tgbotapi.Error
	if errors.As(err, &apiVal) {
		return &SendError{Channel: domain.ChannelTelegram, StatusCode: apiVal.Code, Body: apiVal.Message}
	}
	return &SendError{Channel: domain.ChannelTelegram, Body: err.Error()}
}

// VerifyTelegramSecret compares the X-Telegram-Bot-Api-Secret-Token header
// with the configured webhook secret in constant time.
func VerifyTelegramSecret(secret, header string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(header)) == 1
}

// NormalizeTelegram converts a webhook update into an inbound event. It
// reports false for updates that carry no user message. An edit keeps the
// original message id but gets its own event id, so it is not mistaken for
// a redelivery of the first version.
func NormalizeTelegram(u tgbotapi.Update, signatureValidated bool) (domain.InboundEvent, bool) {
	m, edited := u.Message, false
	if m == nil && u.EditedMessage != nil {
		m, edited = u.EditedMessage, true
	}
	if m == nil || m.Chat == nil || m.From == nil {
		return domain.InboundEvent{}, false
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	eventID := fmt.Sprintf("tg:%s:%d", chatID, m.MessageID)
	if edited {
		// edit_date is absent on some clients; update_id is still unique.
		version := int64(m.EditDate)
		if version == 0 {
			version = int64(u.UpdateID)
		}
		eventID = fmt.Sprintf("%s:edit:%d", eventID, version)
	}
	ev := domain.InboundEvent{
		EventID:               eventID,
		Channel:               domain.ChannelTelegram,
		ChannelUserID:         strconv.FormatInt(m.From.ID, 10),
		ChannelConversationID: chatID,
		ReceivedAt:            time.Unix(int64(m.Date), 0).UTC(),
		Media:                 []domain.Media{},
		Metadata: map[string]any{
			"updateId":  u.UpdateID,
			"messageId": m.MessageID,
		},
		SignatureValidated: signatureValidated,
	}
	if edited {
		ev.Metadata["edited"] = true
	}

	text := m.Text
	if strings.TrimSpace(text) == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) != "" {
		ev.Text = &text
	}
	if id := largestPhoto(m.Photo); id != "" {
		ev.Media = append(ev.Media, domain.Media{MediaID: id, MimeType: "image/jpeg"})
	}
	if m.Document != nil && m.Document.FileID != "" {
		ev.Media = append(ev.Media, domain.Media{MediaID: m.Document.FileID, MimeType: m.Document.MimeType})
	}
	return ev, true
}

// largestPhoto picks the biggest rendition Telegram offers.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	best, bestSize := "", -1
	for _, p := range sizes {
		if p.FileSize > bestSize {
			best, bestSize = p.FileID, p.FileSize
		}
	}
	return best
}
