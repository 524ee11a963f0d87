package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/config"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

//
// Fakes
//

type fakeInbound struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	err    error
	dup    bool
}

func (f *fakeInbound) HandleInbound(_ context.Context, ev domain.InboundEvent) (*services.InboundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return nil, f.err
	}
	return &services.InboundResult{Duplicate: f.dup, InboundMessageID: "in-" + ev.EventID, CorrelationID: "corr-1", QueuedOutbound: 1}, nil
}

type fakeLinks struct {
	token, account string
	completeErr    error
	statusErr      error
	status         domain.IdentityStatus
}

func (f *fakeLinks) CompleteLink(_ context.Context, token, accountID string) (*services.LinkResult, error) {
	f.token, f.account = token, accountID
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &services.LinkResult{Linked: true, Channel: domain.ChannelTelegram, ChannelUserID: "tg-user", AccountID: accountID}, nil
}

func (f *fakeLinks) SetIdentityStatus(_ context.Context, _ domain.Channel, _ string, status domain.IdentityStatus) error {
	f.status = status
	return f.statusErr
}

type failCall struct {
	id, reason  string
	maxAttempts int
	receipt     domain.DeliveryReceipt
}

type fakeOutbox struct {
	// rows backs Get. When nil every id is a leased iMessage reply.
	rows map[string]domain.ChannelMessage

	claimed    []domain.ChannelMessage
	claimErr   error
	claimCh    domain.Channel
	claimLimit int

	sentID      string
	sentReceipt domain.DeliveryReceipt

	fails      []failCall
	failResult services.FailResult

	requeueErr error

	deadLetters []domain.DeadLetterEvent
	dlTotal     int64
	dlArgs      [3]any
}

func (f *fakeOutbox) Get(_ context.Context, id string) (*domain.ChannelMessage, error) {
	if f.rows == nil {
		return &domain.ChannelMessage{
			ID: id, Direction: domain.DirectionOutbound,
			Channel: domain.ChannelIMessage, Status: domain.StatusProcessing,
		}, nil
	}
	m, found := f.rows[id]
	if !found {
		return nil, services.ErrMessageNotFound
	}
	return &m, nil
}

func (f *fakeOutbox) ClaimBatch(_ context.Context, ch domain.Channel, limit int) ([]domain.ChannelMessage, error) {
	f.claimCh, f.claimLimit = ch, limit
	return f.claimed, f.claimErr
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string, r domain.DeliveryReceipt) error {
	f.sentID, f.sentReceipt = id, r
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id, errText string, maxAttempts int, r domain.DeliveryReceipt) (services.FailResult, error) {
	f.fails = append(f.fails, failCall{id, errText, maxAttempts, r})
	return f.failResult, nil
}

func (f *fakeOutbox) Requeue(context.Context, string) error { return f.requeueErr }

func (f *fakeOutbox) DeadLetters(_ context.Context, ch domain.Channel, page, size int) ([]domain.DeadLetterEvent, int64, error) {
	f.dlArgs = [3]any{ch, page, size}
	return f.deadLetters, f.dlTotal, nil
}

type fakeTools struct {
	calls int
	args  map[string]any
	err   error
}

func (f *fakeTools) Supports(tool string) bool { return tool == "plan.generateOutfits" }

func (f *fakeTools) Execute(_ context.Context, _ string, _ *domain.InboundEvent, cmd intents.Command) (commands.Response, error) {
	f.calls++
	f.args = cmd.Arguments
	if f.err != nil {
		return commands.Response{}, f.err
	}
	return commands.Text("Here are 4 outfit options."), nil
}

// memIdem is a map-backed IdempotencyStore keyed like the real cache.
type memIdem struct {
	entries map[string]memEntry
}

type memEntry struct {
	request string
	status  int
	body    []byte
}

func newMemIdem() *memIdem { return &memIdem{entries: map[string]memEntry{}} }

func (m *memIdem) Lookup(_ context.Context, user, op, key string, request any) (*services.IdempotencyEntry, bool, error) {
	req, _ := json.Marshal(request)
	e, found := m.entries[user+"|"+op+"|"+key]
	if !found {
		return nil, false, nil
	}
	if e.request != string(req) {
		return nil, false, services.ErrIdempotencyConflict
	}
	return &services.IdempotencyEntry{StatusCode: e.status, Response: e.body}, true, nil
}

func (m *memIdem) Store(_ context.Context, user, op, key string, request any, status int, response any) error {
	req, _ := json.Marshal(request)
	body, _ := json.Marshal(response)
	m.entries[user+"|"+op+"|"+key] = memEntry{request: string(req), status: status, body: body}
	return nil
}

//
// Harness
//

const bridgeSecret = "bridge-secret-123"

type harness struct {
	inbound *fakeInbound
	links   *fakeLinks
	outbox  *fakeOutbox
	tools   *fakeTools
	idem    *memIdem
	engine  *gin.Engine
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hs := &harness{
		inbound: &fakeInbound{},
		links:   &fakeLinks{},
		outbox:  &fakeOutbox{},
		tools:   &fakeTools{},
		idem:    newMemIdem(),
	}
	d := Deps{
		Inbound:     hs.inbound,
		Links:       hs.links,
		Outbox:      hs.outbox,
		Tools:       hs.tools,
		Idempotency: hs.idem,
		WhatsApp:    config.WhatsAppConfig{Enabled: true, VerifyToken: "verify-me", AppSecret: "app-secret"},
		Telegram:    config.TelegramConfig{Enabled: true, WebhookSecret: "tg-secret"},
		Bridge:      config.BridgeConfig{Enabled: true, SharedSecret: bridgeSecret},
		MaxAttempts: 3,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, m := range mutate {
		m(&d)
	}
	h := New(d)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/health", h.Health)
	r.GET("/channels/whatsapp/webhook", h.VerifyWhatsApp)
	r.POST("/channels/whatsapp/webhook", h.WhatsAppWebhook)
	r.POST("/channels/telegram/webhook", h.TelegramWebhook)
	r.GET("/channels/link/:token", h.LinkPage)
	r.POST("/channels/link/complete", h.CompleteLink)
	bridge := r.Group("/channels", h.BridgeAuth())
	bridge.POST("/:channel/events", h.BridgeEvent)
	bridge.POST("/outbox/claim", h.ClaimOutbox)
	bridge.POST("/outbox/:id/sent", h.MarkOutboxSent)
	bridge.POST("/outbox/:id/failed", h.MarkOutboxFailed)
	api := r.Group("/api/v1")
	api.POST("/tools/:operation", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.InvokeTool)
	api.GET("/admin/dead-letters", h.ListDeadLetters)
	api.POST("/admin/outbox/:id/requeue", h.RequeueOutbox)
	api.POST("/admin/identities/block", h.BlockIdentity)
	hs.engine = r
	return hs
}

func (hs *harness) do(method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	hs.engine.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er), w.Body.String())
	return er
}

func bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + bridgeSecret}
}

//
// Health
//

func TestHealth(t *testing.T) {
	hs := newHarness(t)
	w := hs.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","db":"skipped"}`, w.Body.String())

	hs = newHarness(t, func(d *Deps) {
		d.Ping = func(context.Context) error { return io.ErrUnexpectedEOF }
	})
	w = hs.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "unreachable")
}
