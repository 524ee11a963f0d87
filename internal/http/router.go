// Package httpapi wires the HTTP transport (Gin) to the gateway's handlers
// and middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, CORS, security
// headers, idempotency and rate limiting.
//
// Route layout:
//   - /channels/...       provider webhooks, the bridge pull API and the link page
//   - {API_BASE_PATH}/... tool endpoint and admin surface
//   - /health, /metrics, /swagger/*any
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/config"
	"github.com/tbourn/omnichannel-gateway/internal/http/docs"
	"github.com/tbourn/omnichannel-gateway/internal/http/handlers"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
)

// maxBody caps non-webhook request bodies. Webhooks have their own cap.
const maxBody = 1 << 20

// Services are the application-layer collaborators the handlers call.
type Services struct {
	Inbound     handlers.InboundProcessor
	Links       handlers.LinkManager
	Outbox      handlers.OutboxManager
	Tools       handlers.ToolExecutor
	Idempotency handlers.IdempotencyStore
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with secret and PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per account/IP; provider webhooks and replays bypass it)
//  8. CORS and security headers
//
// The idempotency validator runs on the tool routes only, ahead of the
// handler, so a replay is flagged before the limiter sees the retry.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per account/IP. Providers retry on 429
	// with their own backoff, and dedup already absorbs bursts, so webhooks
	// are exempt.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAccountOrIP())
	rl.Skip = middleware.SkipPathPrefixes("/channels/whatsapp/", "/channels/telegram/", "/health", "/metrics")
	r.Use(rl.Handler())

	// 8) CORS and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(handlers.Deps{
		Inbound:     svc.Inbound,
		Links:       svc.Links,
		Outbox:      svc.Outbox,
		Tools:       svc.Tools,
		Idempotency: svc.Idempotency,
		Ping:        pinger(db),
		WhatsApp:    cfg.WhatsApp,
		Telegram:    cfg.Telegram,
		Bridge:      cfg.Bridge,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	r.GET("/health", h.Health)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = "/"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Provider webhooks
	ch := r.Group("/channels")
	{
		ch.GET("/whatsapp/webhook", h.VerifyWhatsApp)
		ch.POST("/whatsapp/webhook", h.WhatsAppWebhook)
		ch.POST("/telegram/webhook", h.TelegramWebhook)

		// Account linking
		link := ch.Group("/link", gzip.Gzip(gzip.DefaultCompression))
		link.GET("/:token", h.LinkPage)
		link.POST("/complete", h.CompleteLink)
	}

	// Desktop bridge and tool host
	bridge := r.Group("/channels", h.BridgeAuth())
	{
		bridge.POST("/:channel/events", h.BridgeEvent)
		bridge.POST("/outbox/claim", h.ClaimOutbox)
		bridge.POST("/outbox/:id/sent", h.MarkOutboxSent)
		bridge.POST("/outbox/:id/failed", h.MarkOutboxFailed)
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.POST("/tools/:operation",
			middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)),
			h.InvokeTool,
		)

		// Operations
		api.GET("/admin/dead-letters", h.ListDeadLetters)
		api.POST("/admin/outbox/:id/requeue", h.RequeueOutbox)
		api.POST("/admin/identities/block", h.BlockIdentity)
	}
}

// idempotencyLookup reports whether a live response is stored for a key,
// without checking the request fingerprint; the handler does that.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, accountID, operation, key string) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, accountID, operation, key, time.Now().UTC())
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		case err != nil:
			return false, err
		}
		return true, nil
	}
}

func pinger(db *gorm.DB) func(context.Context) error {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the allowlist.
func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
