// Package handlers implements the gateway's HTTP endpoints: provider
// webhooks, the desktop bridge pull API, account linking, the tool endpoint
// and the admin surface.
//
// Errors always use the ErrorResponse envelope:
//
//	HTTP/1.1 410 Gone
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_or_expired_token",
//	  "message": "link token is invalid or expired"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"resource not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged through the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	rid := c.Writer.Header().Get("X-Request-ID")
	if rid == "" {
		rid = middleware.RequestIDFrom(c)
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: rid, Code: code, Message: msg})
}

// Fail is the exported variant of fail, used by the router for NoRoute and
// NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
