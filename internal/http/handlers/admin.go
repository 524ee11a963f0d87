package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

// DeadLetterPage is one page of dead letters, newest first.
type DeadLetterPage struct {
	Items      []domain.DeadLetterEvent `json:"items"`
	Pagination Pagination               `json:"pagination"`
}

// BlockRequest blocks or unblocks a channel identity.
type BlockRequest struct {
	Channel       string `json:"channel"       binding:"required"         example:"telegram"`
	ChannelUserID string `json:"channelUserId" binding:"required,max=255" example:"123456789"`
	Blocked       bool   `json:"blocked"`
}

// BlockResponse reports the identity status after the change.
type BlockResponse struct {
	OK     bool                  `json:"ok"`
	Status domain.IdentityStatus `json:"status"`
}

// ListDeadLetters godoc
// @ID          listDeadLetters
// @Summary     List dead letters
// @Tags        Admin
// @Produce     json
// @Param       channel    query  string  false  "Filter by channel"
// @Param       page       query  int     false  "Page number (default 1)"
// @Param       page_size  query  int     false  "Page size (default 20, max 100)"
// @Success     200  {object}  handlers.DeadLetterPage
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/admin/dead-letters [get]
func (h *Handlers) ListDeadLetters(c *gin.Context) {
	var ch domain.Channel
	if raw := strings.TrimSpace(c.Query("channel")); raw != "" {
		parsed, err := domain.ParseChannel(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, err.Error())
			return
		}
		ch = parsed
	}
	page, size := clampPagination(c)
	items, total, err := h.d.Outbox.DeadLetters(c.Request.Context(), ch, page, size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to list dead letters")
		return
	}
	if items == nil {
		items = []domain.DeadLetterEvent{}
	}
	ok(c, http.StatusOK, DeadLetterPage{Items: items, Pagination: paginationFor(page, size, total)})
}

// RequeueOutbox godoc
// @ID          requeueOutbox
// @Summary     Requeue a failed or dead-lettered message
// @Description Puts the message back in the queue. Its attempt count is kept, so one more failure dead-letters it again.
// @Tags        Admin
// @Produce     json
// @Param       id  path  string  true  "Outbound message id"
// @Success     200  {object}  handlers.WebhookAck
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/admin/outbox/{id}/requeue [post]
func (h *Handlers) RequeueOutbox(c *gin.Context) {
	id := c.Param("id")
	err := h.d.Outbox.Requeue(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		return
	case errors.Is(err, services.ErrNotRequeueable):
		fail(c, http.StatusConflict, ErrCodeNotRequeueable, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "failed to requeue message")
		return
	}
	middleware.LoggerFrom(c).Info().Str("message_id", id).Msg("message requeued by operator")
	ok(c, http.StatusOK, WebhookAck{OK: true})
}

// BlockIdentity godoc
// @ID          blockIdentity
// @Summary     Block or unblock a channel identity
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.BlockRequest  true  "Identity and desired state"
// @Success     200  {object}  handlers.BlockResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/admin/identities/block [post]
func (h *Handlers) BlockIdentity(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "channel and channelUserId are required")
		return
	}
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedChannel, err.Error())
		return
	}
	status := domain.IdentityActive
	if req.Blocked {
		status = domain.IdentityBlocked
	}
	err = h.d.Links.SetIdentityStatus(c.Request.Context(), ch, req.ChannelUserID, status)
	switch {
	case errors.Is(err, services.ErrIdentityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "identity not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to update identity")
		return
	}
	ok(c, http.StatusOK, BlockResponse{OK: true, Status: status})
}
