package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// LinkPageCSP locks the account link page down to its own inline style and
// a same-origin form post.
const LinkPageCSP = "default-src 'none'; style-src 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'; base-uri 'none'"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS only takes effect on HTTPS requests; enable it when TLS
	// reaches the process or a proxy sets X-Forwarded-Proto.
	EnableHSTS bool
	HSTSMaxAge time.Duration

	// NoStore marks responses uncacheable.
	NoStore bool

	// EnablePolicy sends Permissions-Policy and friends.
	EnablePolicy bool

	// ContentSecurityPolicy is sent verbatim when non-empty. Only HTML
	// routes need one.
	ContentSecurityPolicy string
}

// SecurityHeaders adds nosniff, frame denial and no-referrer to every
// response, plus the optional headers selected in opt. The request id is
// exposed to browsers for support tickets.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge.Seconds()), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", opt.ContentSecurityPolicy)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			const hdr = "Access-Control-Expose-Headers"
			switch cur := h.Get(hdr); {
			case cur == "":
				h.Set(hdr, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

// isHTTPS honors TLS on the connection and X-Forwarded-Proto from a proxy.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
