// Desktop bridge handlers.
//
// The iMessage bridge runs on a Mac that cannot receive webhooks. It pushes
// inbound messages to /channels/imessage/events and pulls replies from the
// outbox with claim/sent/failed. The ChatGPT tool host uses the same event
// and pull endpoints for the chatgpt channel. All routes require the shared
// bearer secret.
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

const (
	maxClaimBatch     = 25
	defaultClaimBatch = 10
)

// pullChannels have no push adapter; their replies are collected by a bridge.
var pullChannels = map[domain.Channel]bool{
	domain.ChannelIMessage: true,
	domain.ChannelChatGPT:  true,
}

// ClaimRequest selects what the bridge wants to deliver next.
type ClaimRequest struct {
	Channel string `json:"channel" example:"imessage"`
	Limit   int    `json:"limit" example:"10"`
	// MaxBatchSize is the older name of Limit.
	MaxBatchSize int `json:"maxBatchSize,omitempty"`
}

// ClaimedMessage is one leased outbound message.
type ClaimedMessage struct {
	ID      string                 `json:"id"`
	Payload domain.OutboundMessage `json:"payload"`
}

// ClaimResponse lists the leased messages, oldest first.
type ClaimResponse struct {
	OK       bool             `json:"ok"`
	Messages []ClaimedMessage `json:"messages"`
}

// SentRequest reports a delivered message.
type SentRequest struct {
	ProviderMessageID string `json:"providerMessageId"`
	ResponseCode      *int   `json:"responseCode"`
	ResponseBody      string `json:"responseBody"`
}

// FailedRequest reports a failed delivery.
type FailedRequest struct {
	Error        string `json:"error" example:"chat.db locked"`
	ResponseCode *int   `json:"responseCode"`
	ResponseBody string `json:"responseBody"`
}

// FailedResponse tells the bridge whether the message is now dead.
type FailedResponse struct {
	OK           bool `json:"ok"`
	DeadLettered bool `json:"deadLettered"`
	AttemptCount int  `json:"attemptCount"`
}

// BridgeAuth guards the bridge routes with Authorization: Bearer <secret>.
func (h *Handlers) BridgeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.d.Bridge.Enabled {
			fail(c, http.StatusServiceUnavailable, ErrCodeChannelDisabled, "bridge is disabled")
			return
		}
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || h.d.Bridge.SharedSecret == "" ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(h.d.Bridge.SharedSecret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid bridge credentials")
			return
		}
		c.Next()
	}
}

// BridgeEvent godoc
// @ID          bridgeEvent
// @Summary     Push an inbound event from a bridge
// @Description Accepts a canonical inbound envelope for the channel in the path (imessage or chatgpt). The bearer secret stands in for a provider signature.
// @Tags        Bridge
// @Accept      json
// @Produce     json
// @Security    BridgeBearer
// @Param       channel  path  string  true  "imessage or chatgpt"
// @Param       body     body  domain.InboundEvent  true  "Inbound event"
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /channels/{channel}/events [post]
func (h *Handlers) BridgeEvent(c *gin.Context) {
	ch, err := domain.ParseChannel(c.Param("channel"))
	if err != nil || !pullChannels[ch] {
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, "events are accepted for imessage and chatgpt only")
		return
	}
	var ev domain.InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		middleware.ObserveWebhook(string(ch), middleware.WebhookRejected)
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if ev.Channel != ch {
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, "event channel does not match the route")
		return
	}
	ev.SignatureValidated = true
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = h.d.Now().UTC()
	}

	res, err := h.d.Inbound.HandleInbound(c.Request.Context(), ev)
	switch {
	case errors.Is(err, domain.ErrInvalidEnvelope):
		middleware.ObserveWebhook(string(ch), middleware.WebhookRejected)
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidEnvelope, err.Error())
		return
	case err != nil:
		middleware.ObserveWebhook(string(ch), middleware.WebhookError)
		fail(c, http.StatusInternalServerError, ErrCodeInboundFailed, "failed to process inbound event")
		return
	case res.Duplicate:
		middleware.ObserveWebhook(string(ch), middleware.WebhookDuplicate)
	default:
		middleware.ObserveWebhook(string(ch), middleware.WebhookAccepted)
	}
	ok(c, http.StatusOK, WebhookAck{OK: true, Results: []*services.InboundResult{res}})
}

// ClaimOutbox godoc
// @ID          claimOutbox
// @Summary     Lease queued replies
// @Description Claims up to limit (max 25, default 10) queued messages of a pull channel. Each claim holds a lease; unsettled messages return to the queue when it expires.
// @Tags        Bridge
// @Accept      json
// @Produce     json
// @Security    BridgeBearer
// @Param       body  body  handlers.ClaimRequest  false  "Channel and batch size"
// @Success     200  {object}  handlers.ClaimResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /channels/outbox/claim [post]
func (h *Handlers) ClaimOutbox(c *gin.Context) {
	var req ClaimRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	name := strings.TrimSpace(req.Channel)
	if name == "" {
		name = string(domain.ChannelIMessage)
	}
	ch, err := domain.ParseChannel(name)
	if err != nil || !pullChannels[ch] {
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, "only imessage and chatgpt replies can be claimed")
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = req.MaxBatchSize
	}
	switch {
	case limit <= 0:
		limit = defaultClaimBatch
	case limit > maxClaimBatch:
		limit = maxClaimBatch
	}

	ctx := c.Request.Context()
	rows, err := h.d.Outbox.ClaimBatch(ctx, ch, limit)
	if err != nil && len(rows) == 0 {
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "failed to claim messages")
		return
	}
	if err != nil {
		// rows already leased are still handed out; the rest stay queued
		middleware.LoggerFrom(c).Warn().Err(err).Int("claimed", len(rows)).Msg("partial claim")
	}

	out := ClaimResponse{OK: true, Messages: make([]ClaimedMessage, 0, len(rows))}
	for i := range rows {
		msg, err := rows[i].DecodeOutbound()
		if err != nil {
			// an undecodable payload can never be delivered
			if _, ferr := h.d.Outbox.MarkFailed(ctx, rows[i].ID, err.Error(), 1, domain.DeliveryReceipt{}); ferr != nil {
				middleware.LoggerFrom(c).Error().Err(ferr).Str("message_id", rows[i].ID).Msg("dead-letter undecodable payload")
			}
			continue
		}
		out.Messages = append(out.Messages, ClaimedMessage{ID: rows[i].ID, Payload: *msg})
	}
	ok(c, http.StatusOK, out)
}

// MarkOutboxSent godoc
// @ID          markOutboxSent
// @Summary     Report a delivered reply
// @Tags        Bridge
// @Accept      json
// @Produce     json
// @Security    BridgeBearer
// @Param       id    path  string  true   "Outbound message id"
// @Param       body  body  handlers.SentRequest  false  "Provider receipt"
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /channels/outbox/{id}/sent [post]
func (h *Handlers) MarkOutboxSent(c *gin.Context) {
	var req SentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	id, held := h.claimedRow(c)
	if !held {
		return
	}
	err := h.d.Outbox.MarkSent(c.Request.Context(), id, domain.DeliveryReceipt{
		ProviderMessageID: req.ProviderMessageID,
		ResponseCode:      req.ResponseCode,
		ResponseBody:      req.ResponseBody,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "failed to record delivery")
		return
	}
	ok(c, http.StatusOK, WebhookAck{OK: true})
}

// MarkOutboxFailed godoc
// @ID          markOutboxFailed
// @Summary     Report a failed delivery
// @Description Records the attempt. Once the retry budget is spent the message is dead-lettered.
// @Tags        Bridge
// @Accept      json
// @Produce     json
// @Security    BridgeBearer
// @Param       id    path  string  true   "Outbound message id"
// @Param       body  body  handlers.FailedRequest  false  "Failure details"
// @Success     200  {object}  handlers.FailedResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /channels/outbox/{id}/failed [post]
func (h *Handlers) MarkOutboxFailed(c *gin.Context) {
	var req FailedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	id, held := h.claimedRow(c)
	if !held {
		return
	}
	reason := strings.TrimSpace(req.Error)
	if reason == "" {
		reason = "send_failed"
	}
	res, err := h.d.Outbox.MarkFailed(c.Request.Context(), id, reason, h.d.MaxAttempts, domain.DeliveryReceipt{
		ResponseCode: req.ResponseCode,
		ResponseBody: req.ResponseBody,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "failed to record failure")
		return
	}
	ok(c, http.StatusOK, FailedResponse{OK: true, DeadLettered: res.DeadLettered, AttemptCount: res.AttemptCount})
}

// claimedRow loads the :id row and writes the error response unless it is a
// pull-channel reply currently leased to a bridge. Push-channel rows belong to
// the dispatcher.
func (h *Handlers) claimedRow(c *gin.Context) (string, bool) {
	id := c.Param("id")
	m, err := h.d.Outbox.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "outbound message not found")
		return "", false
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "failed to load outbound message")
		return "", false
	case !pullChannels[m.Channel] || m.Status != domain.StatusProcessing:
		fail(c, http.StatusConflict, ErrCodeNotClaimed, services.ErrNotClaimed.Error())
		return "", false
	}
	return id, true
}
