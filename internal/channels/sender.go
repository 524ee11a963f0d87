// Package channels holds the per-channel adapters: senders that deliver
// outbound envelopes to a provider API, normalizers that turn provider
// webhook payloads into canonical inbound events, and the Worker that drains
// the outbox for one channel.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

// ErrSendFailed is the sentinel every SendError unwraps to.
var ErrSendFailed = errors.New("send failed")

const (
	maxCaptionRunes = 1000
	maxErrBody      = 300
	fallbackText    = "OK."
)

// Sender delivers one outbound envelope through a provider.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, msg domain.OutboundMessage) (domain.DeliveryReceipt, error)
}

// SendError is a provider rejection. Its text is the value stored as the
// message's last_error.
type SendError struct {
	Channel    domain.Channel
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s_send_failed:%d:%s", e.Channel, e.StatusCode, clip(e.Body, maxErrBody))
}

func (e *SendError) Unwrap() error { return ErrSendFailed }

// Receipt converts the error into the receipt recorded with the failed attempt.
func (e *SendError) Receipt() domain.DeliveryReceipt {
	r := domain.DeliveryReceipt{ResponseBody: e.Body}
	if e.StatusCode > 0 {
		code := e.StatusCode
		r.ResponseCode = &code
	}
	return r
}

// BuildText flattens the text and link parts into one message body. Links
// render as "title: url", or the bare url when untitled.
func BuildText(parts []domain.MessagePart) string {
	var blocks []string
	for _, p := range parts {
		switch p.Type {
		case domain.PartText:
			if t := strings.TrimSpace(p.Text); t != "" {
				blocks = append(blocks, t)
			}
		case domain.PartLink:
			if p.URL == "" {
				continue
			}
			if title := strings.TrimSpace(p.Title); title != "" {
				blocks = append(blocks, title+": "+p.URL)
			} else {
				blocks = append(blocks, p.URL)
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

// FirstImage returns the first image part, if any.
func FirstImage(parts []domain.MessagePart) (domain.MessagePart, bool) {
	for _, p := range parts {
		if p.Type == domain.PartImage && p.URL != "" {
			return p, true
		}
	}
	return domain.MessagePart{}, false
}

// photoCaption merges the image caption with the message body.
func photoCaption(img domain.MessagePart, body string) string {
	var lines []string
	if c := strings.TrimSpace(img.Caption); c != "" {
		lines = append(lines, c)
	}
	if body != "" {
		lines = append(lines, body)
	}
	return clip(strings.Join(lines, "\n"), maxCaptionRunes)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
