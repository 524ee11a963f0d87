// Channel webhook handlers.
//
// Provider webhooks normalize their payload into canonical inbound events and
// hand each one to the inbound saga. A bad signature is not rejected here:
// the event is recorded with signatureValidated=false and the saga answers
// with the signature failure reply. Saga failures return 5xx so the provider
// retries; redelivery is safe because events are deduplicated by id.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/omnichannel-gateway/internal/channels"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

// MaxWebhookBody caps provider payloads.
const MaxWebhookBody = 2 << 20

// WebhookAck is the JSON acknowledgement of webhook and bridge events.
type WebhookAck struct {
	OK      bool                      `json:"ok"`
	Results []*services.InboundResult `json:"results,omitempty"`
}

// VerifyWhatsApp godoc
// @ID          verifyWhatsAppWebhook
// @Summary     WhatsApp webhook verification
// @Description Echoes hub.challenge when hub.mode=subscribe and the verify token matches.
// @Tags        Webhooks
// @Produce     plain
// @Param       hub.mode          query  string  true  "Must be subscribe"
// @Param       hub.verify_token  query  string  true  "Configured verify token"
// @Param       hub.challenge     query  string  true  "Challenge to echo"
// @Success     200  {string}  string  "challenge"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /channels/whatsapp/webhook [get]
func (h *Handlers) VerifyWhatsApp(c *gin.Context) {
	if !h.d.WhatsApp.Enabled {
		fail(c, http.StatusServiceUnavailable, ErrCodeChannelDisabled, "whatsapp is disabled")
		return
	}
	token := c.Query("hub.verify_token")
	if c.Query("hub.mode") != "subscribe" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.d.WhatsApp.VerifyToken)) != 1 {
		fail(c, http.StatusForbidden, ErrCodeVerificationFailed, "whatsapp webhook verification failed")
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// WhatsAppWebhook godoc
// @ID          whatsAppWebhook
// @Summary     WhatsApp Cloud API webhook
// @Description Verifies X-Hub-Signature-256 over the raw body and runs every contained message through the inbound saga.
// @Tags        Webhooks
// @Accept      json
// @Produce     plain
// @Param       X-Hub-Signature-256  header  string  false  "sha256=<hex hmac>"
// @Success     200  {string}  string  "EVENT_RECEIVED"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /channels/whatsapp/webhook [post]
func (h *Handlers) WhatsAppWebhook(c *gin.Context) {
	const ch = string(domain.ChannelWhatsApp)
	if !h.d.WhatsApp.Enabled {
		fail(c, http.StatusServiceUnavailable, ErrCodeChannelDisabled, "whatsapp is disabled")
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
		return
	}
	validated := channels.VerifyWhatsAppSignature(h.d.WhatsApp.AppSecret, raw, c.GetHeader("X-Hub-Signature-256"))

	var hook channels.WhatsAppWebhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		middleware.ObserveWebhook(ch, middleware.WebhookRejected)
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	events := channels.NormalizeWhatsApp(hook, validated, h.d.Now().UTC())
	if len(events) == 0 {
		// statuses, read receipts and other non-message changes
		middleware.ObserveWebhook(ch, middleware.WebhookIgnored)
	}
	for _, ev := range events {
		if _, ok := h.runInbound(c, ev); !ok {
			return
		}
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// TelegramWebhook godoc
// @ID          telegramWebhook
// @Summary     Telegram Bot API webhook
// @Description Checks X-Telegram-Bot-Api-Secret-Token and runs the message through the inbound saga. Updates without a message are acknowledged and ignored.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       X-Telegram-Bot-Api-Secret-Token  header  string  false  "Webhook secret"
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /channels/telegram/webhook [post]
func (h *Handlers) TelegramWebhook(c *gin.Context) {
	const ch = string(domain.ChannelTelegram)
	if !h.d.Telegram.Enabled {
		fail(c, http.StatusServiceUnavailable, ErrCodeChannelDisabled, "telegram is disabled")
		return
	}
	validated := channels.VerifyTelegramSecret(h.d.Telegram.WebhookSecret, c.GetHeader("X-Telegram-Bot-Api-Secret-Token"))

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody)).Decode(&update); err != nil {
		middleware.ObserveWebhook(ch, middleware.WebhookRejected)
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ev, hasMessage := channels.NormalizeTelegram(update, validated)
	if !hasMessage {
		middleware.ObserveWebhook(ch, middleware.WebhookIgnored)
		ok(c, http.StatusOK, WebhookAck{OK: true})
		return
	}
	res, done := h.runInbound(c, ev)
	if !done {
		return
	}
	ack := WebhookAck{OK: true}
	if res != nil {
		ack.Results = append(ack.Results, res)
	}
	ok(c, http.StatusOK, ack)
}

// runInbound runs the saga for ev and records the outcome. An invalid
// envelope from a provider is dropped (the provider cannot fix it by
// retrying). It reports false after writing an error response.
func (h *Handlers) runInbound(c *gin.Context, ev domain.InboundEvent) (*services.InboundResult, bool) {
	ch := string(ev.Channel)
	res, err := h.d.Inbound.HandleInbound(c.Request.Context(), ev)
	switch {
	case errors.Is(err, domain.ErrInvalidEnvelope):
		middleware.ObserveWebhook(ch, middleware.WebhookRejected)
		middleware.LoggerFrom(c).Warn().Err(err).Str("event_id", ev.EventID).Msg("inbound event dropped")
		return nil, true
	case err != nil:
		middleware.ObserveWebhook(ch, middleware.WebhookError)
		fail(c, http.StatusInternalServerError, ErrCodeInboundFailed, "failed to process inbound event")
		return nil, false
	case res.Duplicate:
		middleware.ObserveWebhook(ch, middleware.WebhookDuplicate)
	default:
		middleware.ObserveWebhook(ch, middleware.WebhookAccepted)
	}
	return res, true
}
