package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestFail_ServerErrorIsLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeOutboxFailed, "db down")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusInternalServerError || resp != (ErrorResponse{"rid-500", ErrCodeOutboxFailed, "db down"}) {
		t.Fatalf("unexpected response %d %+v", w.Code, resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func TestFail_ClientErrorUsesContextRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("requestID", "rid-ctx")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/gone", func(c *gin.Context) {
		Fail(c, http.StatusGone, ErrCodeInvalidOrExpiredToken, "expired")
	})
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"n": 1}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gone", nil))
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if w.Code != http.StatusGone || er.RequestID != "rid-ctx" || er.Code != ErrCodeInvalidOrExpiredToken {
		t.Fatalf("unexpected: %d %+v", w.Code, er)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not be logged by fail: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"n":1`) {
		t.Fatalf("ok helper: %d %s", w.Code, w.Body.String())
	}
}
