package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/config"
	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
	"github.com/tbourn/omnichannel-gateway/internal/services"
	"github.com/tbourn/omnichannel-gateway/internal/utils"
)

//
// Service contracts
//

// InboundProcessor runs the inbound saga for a normalized event.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, ev domain.InboundEvent) (*services.InboundResult, error)
}

// LinkManager completes account links and moderates identities.
type LinkManager interface {
	CompleteLink(ctx context.Context, token, accountID string) (*services.LinkResult, error)
	SetIdentityStatus(ctx context.Context, channel domain.Channel, channelUserID string, status domain.IdentityStatus) error
}

// OutboxManager is the slice of the outbox used by the bridge and admin API.
type OutboxManager interface {
	Get(ctx context.Context, id string) (*domain.ChannelMessage, error)
	ClaimBatch(ctx context.Context, channel domain.Channel, limit int) ([]domain.ChannelMessage, error)
	MarkSent(ctx context.Context, id string, receipt domain.DeliveryReceipt) error
	MarkFailed(ctx context.Context, id, errText string, maxAttempts int, receipt domain.DeliveryReceipt) (services.FailResult, error)
	Requeue(ctx context.Context, id string) error
	DeadLetters(ctx context.Context, channel domain.Channel, page, pageSize int) ([]domain.DeadLetterEvent, int64, error)
}

// ToolExecutor runs a tool by name.
type ToolExecutor interface {
	Supports(tool string) bool
	Execute(ctx context.Context, accountID string, ev *domain.InboundEvent, cmd intents.Command) (commands.Response, error)
}

// IdempotencyStore memoizes tool responses.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, operation, key string, request any) (*services.IdempotencyEntry, bool, error)
	Store(ctx context.Context, userID, operation, key string, request any, status int, response any) error
}

//
// Handler wiring
//

// Deps carries the collaborators and channel settings of the handlers.
type Deps struct {
	Inbound     InboundProcessor
	Links       LinkManager
	Outbox      OutboxManager
	Tools       ToolExecutor
	Idempotency IdempotencyStore

	// Ping checks the store for /health; nil reports ok.
	Ping func(ctx context.Context) error

	WhatsApp config.WhatsAppConfig
	Telegram config.TelegramConfig
	Bridge   config.BridgeConfig

	// MaxAttempts is passed to MarkFailed for bridge-reported failures.
	MaxAttempts int

	Now func() time.Time
}

// Handlers groups every HTTP endpoint of the gateway.
type Handlers struct {
	d Deps
}

// New returns Handlers bound to d.
func New(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{d: d}
}

// accountID reads the caller's account from X-User-ID. Authentication of
// that header belongs to the fronting gateway.
func accountID(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return ""
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

//
// DTOs shared by several endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginationFor(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// clampPagination parses the page and page_size query parameters.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}
