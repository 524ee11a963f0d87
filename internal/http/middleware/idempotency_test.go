package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type lookupCall struct{ account, op, key string }

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen func(*gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(opts, lookup))
	r.POST("/tools/:operation", func(c *gin.Context) {
		if seen != nil {
			seen(c)
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func postTool(r *gin.Engine, op, account, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tools/"+op, strings.NewReader(`{}`))
	if account != "" {
		req.Header.Set("X-User-ID", account)
	}
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestContextHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatalf("expected empty state")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay must read as false")
	}
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, string, string) (bool, error) {
		called = true
		return true, nil
	}, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("no key expected")
		}
	})
	if w := postTool(r, "plan.generateOutfits", "acct", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a key")
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	r := idemRouter(IdempotencyOptions{MaxLen: 8, Pattern: regexp.MustCompile(`^[a-z0-9-]+$`)}, nil, nil)
	for _, key := range []string{"toolongkey-123", "bad key!"} {
		w := postTool(r, "op", "acct", key)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: status = %d", key, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
			t.Fatalf("unexpected body: %v", body)
		}
	}
}

func TestIdempotencyValidator_LookupMarksReplay(t *testing.T) {
	var calls []lookupCall
	lookup := func(_ context.Context, account, op, key string) (bool, error) {
		calls = append(calls, lookupCall{account, op, key})
		return key == "k-hit", nil
	}
	var replay, bypass bool
	var stashed string
	r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
		replay, bypass = IsReplay(c), IsRateBypass(c)
		stashed, _ = GetIdempotencyKey(c)
	})

	postTool(r, "checkout.createApprovalLink", "acct_1", "k-hit")
	if !replay || !bypass || stashed != "k-hit" {
		t.Fatalf("expected replay+bypass, got replay=%v bypass=%v key=%q", replay, bypass, stashed)
	}
	if len(calls) != 1 || calls[0] != (lookupCall{"acct_1", "checkout.createApprovalLink", "k-hit"}) {
		t.Fatalf("lookup args: %+v", calls)
	}

	postTool(r, "checkout.createApprovalLink", "acct_1", "k-miss")
	if replay || bypass || stashed != "k-miss" {
		t.Fatalf("miss must not be flagged")
	}

	// anonymous callers are never looked up
	postTool(r, "op", "", "k-hit")
	if len(calls) != 2 || replay {
		t.Fatalf("anonymous call should skip lookup: %+v", calls)
	}
}

func TestIdempotencyValidator_LookupErrorIsNotReplay(t *testing.T) {
	var replay bool
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, string, string) (bool, error) {
		return true, errors.New("db down")
	}, func(c *gin.Context) { replay = IsReplay(c) })
	if w := postTool(r, "op", "acct", "k1"); w.Code != http.StatusNoContent || replay {
		t.Fatalf("lookup errors must fall through: code=%d replay=%v", w.Code, replay)
	}
}
