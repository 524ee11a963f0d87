// Package middleware contains the Gin middleware shared by the gateway's HTTP
// surface: request ids, access logging with redaction, panic recovery,
// Prometheus metrics, rate limiting, security headers and idempotency keys.
//
// Recommended order: RequestID, Logger, Recovery, then the rest, so panics and
// rejected requests are logged with their correlation id.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the bytes of the raw query string logged.
	maxQueryLogLength = 2048

	redacted = "[REDACTED]"
)

// Provider webhooks and the bridge authenticate with these; their values
// never reach the logs.
var defaultMaskHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Hub-Signature-256",
	"X-Telegram-Bot-Api-Secret-Token",
}

// Query parameters replaced wholesale.
var maskQueryParams = map[string]struct{}{
	"hub.verify_token": {},
	"access_token":     {},
	"token":            {},
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside ids are left to uuidRE.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// One-time link tokens travel in the path of the link page.
	linkTokenRE = regexp.MustCompile(`(/channels/link/)[^/?]+`)
)

// LogOptions configures Logger.
type LogOptions struct {
	// MaskHeaders adds header names (case-insensitive) whose values are
	// replaced by [REDACTED]. The webhook signature and auth headers are
	// always masked.
	MaskHeaders []string

	// LogHeaders emits the scrubbed request headers with every access log.
	LogHeaders bool
}

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, echoes it
// on the response and stores it in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access log per request and attaches a
// request-scoped zerolog.Logger for handlers (see LoggerFrom). Query strings,
// unmatched paths and headers are scrubbed of emails, phone numbers, UUIDs,
// link tokens and credentials. Bodies are never logged.
//
// The level follows the outcome: error for 5xx or Gin errors, warn for 4xx,
// info otherwise.
func Logger(opts LogOptions) gin.HandlerFunc {
	mask := make(map[string]struct{}, len(defaultMaskHeaders)+len(opts.MaskHeaders))
	for _, h := range append(append([]string{}, defaultMaskHeaders...), opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = Redact(c.Request.URL.Path)
		}

		lc := log.With().
			Str("request_id", asString(rid)).
			Str("user_id", c.GetHeader("X-User-ID")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(redactQuery(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength)
		if opts.LogHeaders {
			lc = lc.Interface("headers", scrubHeaders(c.Request.Header, mask))
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery turns a panic into a JSON 500 carrying the request id and logs the
// stack. If the handler already wrote a response only the status is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// RequestIDFrom returns the correlation id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	return asString(v)
}

// Redact scrubs link tokens, UUIDs, emails and phone numbers from s.
// UUIDs go before phones so the loose phone pattern cannot eat their digits.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = linkTokenRE.ReplaceAllString(s, "${1}"+redacted)
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	for i, p := range pairs {
		k, _, _ := strings.Cut(p, "=")
		if _, ok := maskQueryParams[strings.ToLower(k)]; ok {
			pairs[i] = k + "=" + redacted
			continue
		}
		pairs[i] = Redact(p)
	}
	return strings.Join(pairs, "&")
}

func scrubHeaders(h http.Header, mask map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = Redact(strings.Join(vv, ", "))
	}
	return out
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
