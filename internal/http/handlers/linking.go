package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

// minLinkTokenLen rejects obviously truncated links before any lookup.
const minLinkTokenLen = 12

var linkPage = template.Must(template.New("link").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <title>Link channel account</title>
    <style>
      body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; padding: 24px; }
      .card { max-width: 520px; border: 1px solid #ddd; border-radius: 12px; padding: 18px; }
      label { display: block; margin-bottom: 8px; font-size: 14px; color: #444; }
      input { width: 100%; padding: 10px; border: 1px solid #bbb; border-radius: 8px; margin-bottom: 12px; }
      button { padding: 10px 14px; border-radius: 8px; border: 1px solid #222; cursor: pointer; }
    </style>
  </head>
  <body>
    <div class="card">
      <h2>Link your channel account</h2>
      <p>Enter the user id of your signed-in account to finish linking.</p>
      <form method="POST" action="{{.Action}}">
        <input type="hidden" name="token" value="{{.Token}}" />
        <label for="userId">User ID</label>
        <input id="userId" name="userId" placeholder="auth0|..." required />
        <button type="submit">Complete link</button>
      </form>
    </div>
  </body>
</html>
`))

// CompleteLinkRequest is accepted as JSON or as an urlencoded form.
type CompleteLinkRequest struct {
	Token  string `json:"token"  form:"token"  binding:"required,min=12,max=128" example:"k3J9xQ2mVbN8pL4tR7wY"`
	UserID string `json:"userId" form:"userId" binding:"required,max=255"        example:"auth0|123"`
}

// CompleteLinkResponse echoes the identity that was linked.
type CompleteLinkResponse struct {
	OK     bool                 `json:"ok"`
	Linked *services.LinkResult `json:"linked"`
}

// LinkPage godoc
// @ID          linkPage
// @Summary     Account link page
// @Description Renders the form a user opens from the link reply. Submitting it completes the link.
// @Tags        Linking
// @Produce     html
// @Param       token  path  string  true  "Link token"
// @Success     200  {string}  string  "HTML page"
// @Failure     400  {string}  string  "Invalid link token."
// @Router      /channels/link/{token} [get]
func (h *Handlers) LinkPage(c *gin.Context) {
	token := c.Param("token")
	if len(token) < minLinkTokenLen {
		c.String(http.StatusBadRequest, "Invalid link token.")
		return
	}
	c.Header("Content-Security-Policy", middleware.LinkPageCSP)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	data := struct{ Token, Action string }{Token: token, Action: "/channels/link/complete"}
	if err := linkPage.Execute(c.Writer, data); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("render link page")
	}
}

// CompleteLink godoc
// @ID          completeLink
// @Summary     Complete an account link
// @Description Consumes a one-time link token and attaches its channel identity to the account. A token can be used once.
// @Tags        Linking
// @Accept      json,x-www-form-urlencoded
// @Produce     json
// @Param       body  body  handlers.CompleteLinkRequest  true  "Token and account"
// @Success     200  {object}  handlers.CompleteLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     410  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /channels/link/complete [post]
func (h *Handlers) CompleteLink(c *gin.Context) {
	var req CompleteLinkRequest
	// ShouldBind picks JSON or form decoding from the Content-Type.
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "token and userId are required")
		return
	}

	res, err := h.d.Links.CompleteLink(c.Request.Context(), strings.TrimSpace(req.Token), req.UserID)
	switch {
	case errors.Is(err, services.ErrInvalidUserID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "userId is required")
		return
	case errors.Is(err, services.ErrInvalidOrExpiredToken):
		fail(c, http.StatusGone, ErrCodeInvalidOrExpiredToken, "link token is invalid or expired")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to complete link")
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("channel", string(res.Channel)).
		Msg("identity linked")
	ok(c, http.StatusOK, CompleteLinkResponse{OK: true, Linked: res})
}
