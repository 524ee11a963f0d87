// This file validates the Idempotency-Key header of tool calls and flags
// requests that will be answered from the idempotency cache, so the rate
// limiter lets replays through. Serving the stored response stays with the
// handler, which also checks the request fingerprint.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey carries the caller's key for an unsafe operation.
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderIdempotencyReplayed is set to "true" on replayed responses.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"

	defaultIdemMaxLen = 200
)

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a live stored response exists for the request's
// key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Operation names the operation a key is scoped to. Nil uses the
	// :operation route parameter.
	Operation func(*gin.Context) string
}

// IdempotencyLookup reports whether an unexpired response is stored for
// (accountID, operation, key). Errors are ignored by the middleware; the
// handler will hit the store again anyway.
type IdempotencyLookup func(ctx context.Context, accountID, operation, key string) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header when present,
// answering 400 bad_idempotency_key for malformed keys. A valid key is
// stashed for the handler and, when lookup finds a stored response, the
// request is flagged as a replay that bypasses rate limiting.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	operation := opts.Operation
	if operation == nil {
		operation = func(c *gin.Context) string { return c.Param("operation") }
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			account := accountIDFromRequest(c)
			if account != "" {
				if exists, err := lookup(c.Request.Context(), account, operation(c), key); err == nil && exists {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}

		c.Next()
	}
}

func accountIDFromRequest(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerAccountID))
}
