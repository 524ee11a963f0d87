package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByAccountOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyByAccountOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip key; got %q", key)
	}
	c.Request.Header.Set("X-User-ID", " acct_1 ")
	if key := KeyByAccountOrIP()(c); key != "account:acct_1" {
		t.Fatalf("expected account key; got %q", key)
	}
}

func TestRateLimiter_getVisitor_ReuseAndGC(t *testing.T) {
	rl := NewRateLimiter(1.0, 0, KeyByAccountOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if rl.getVisitor("k1") != lim {
		t.Fatalf("expected the same limiter for the same key")
	}

	rl.ttl = time.Nanosecond
	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = gcEveryLookups - 1
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	_, hasOld := rl.visitors["old"]
	_, hasNew := rl.visitors["new"]
	rl.mu.Unlock()
	if hasOld || !hasNew {
		t.Fatalf("gc mismatch: old=%v new=%v", hasOld, hasNew)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatalf("expected false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool must read as false")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1.0, 1, KeyByAccountOrIP())
	rl.Skip = SkipPathPrefixes("/channels/telegram/")

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/channels/telegram/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}

	// webhooks are exempt even with an empty bucket
	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/channels/telegram/webhook", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("webhook should skip the limiter, got %d", w.Code)
		}
	}

	// a different account has its own bucket
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-User-ID", "acct_2")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("other account should pass, got %d", w.Code)
	}

	rb := gin.New()
	rb.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	rb.Use(rl.Handler())
	rb.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w = httptest.NewRecorder()
	rb.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("replay should bypass, got %d", w.Code)
	}
}
