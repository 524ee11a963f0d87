package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
)

// ErrInvalidArguments wraps decode and validation failures of command input.
var ErrInvalidArguments = errors.New("invalid command arguments")

var validate = validator.New(validator.WithRequiredStructEnabled())

type handlerFunc func(ctx context.Context, accountID string, args map[string]any, origin Origin) (Response, error)

// Executor dispatches commands by tool name to the configured ports. A nil
// port makes its tools answer with an "unavailable" text.
type Executor struct {
	handlers map[string]handlerFunc
}

// Ports groups the domain collaborators.
type Ports struct {
	Profile  ProfileService
	Planning PlanningService
	TryOn    TryOnService
	Checkout CheckoutService
}

// NewExecutor registers one handler per tool name.
func NewExecutor(p Ports) *Executor {
	e := &Executor{handlers: map[string]handlerFunc{}}

	e.handlers[intents.ToolUpsertBudgetAndGoals] = func(ctx context.Context, acct string, args map[string]any, _ Origin) (Response, error) {
		if p.Profile == nil {
			return unavailable(intents.ToolUpsertBudgetAndGoals), nil
		}
		var in BudgetGoals
		if err := decode(args, &in); err != nil {
			return Response{}, err
		}
		return p.Profile.UpsertBudgetAndGoals(ctx, acct, in)
	}
	e.handlers[intents.ToolIngestPhotos] = func(ctx context.Context, acct string, args map[string]any, _ Origin) (Response, error) {
		if p.Profile == nil {
			return unavailable(intents.ToolIngestPhotos), nil
		}
		var in IngestPhotos
		if err := decode(args, &in); err != nil {
			return Response{}, err
		}
		return p.Profile.IngestPhotos(ctx, acct, in)
	}
	e.handlers[intents.ToolGenerateOutfits] = func(ctx context.Context, acct string, args map[string]any, _ Origin) (Response, error) {
		if p.Planning == nil {
			return unavailable(intents.ToolGenerateOutfits), nil
		}
		var in GenerateOutfits
		if err := decode(args, &in); err != nil {
			return Response{}, err
		}
		return p.Planning.GenerateOutfits(ctx, acct, in)
	}
	e.handlers[intents.ToolRenderItemOnUser] = func(ctx context.Context, acct string, args map[string]any, origin Origin) (Response, error) {
		if p.TryOn == nil {
			return unavailable(intents.ToolRenderItemOnUser), nil
		}
		var in RenderItem
		if err := decode(args, &in); err != nil {
			return Response{}, err
		}
		return p.TryOn.RenderItemOnUser(ctx, acct, in, origin)
	}
	e.handlers[intents.ToolCreateApprovalLink] = func(ctx context.Context, acct string, args map[string]any, _ Origin) (Response, error) {
		if p.Checkout == nil {
			return unavailable(intents.ToolCreateApprovalLink), nil
		}
		var in ApprovalRequest
		if err := decode(args, &in); err != nil {
			return Response{}, err
		}
		return p.Checkout.CreateApprovalLink(ctx, acct, in)
	}
	return e
}

// Tools lists the registered tool names, sorted.
func (e *Executor) Tools() []string {
	out := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether a handler is registered for tool.
func (e *Executor) Supports(tool string) bool {
	_, ok := e.handlers[tool]
	return ok
}

// Execute runs cmd for accountID. ev is the triggering event, or nil when
// the command comes from the tool endpoint. Unsupported tools produce a
// text response rather than an error.
func (e *Executor) Execute(ctx context.Context, accountID string, ev *domain.InboundEvent, cmd intents.Command) (Response, error) {
	ctx, span := otel.Tracer("commands/Executor").Start(ctx, "Execute",
		trace.WithAttributes(attribute.String("tool", cmd.ToolName)),
	)
	defer span.End()

	h, ok := e.handlers[cmd.ToolName]
	if !ok {
		return GenericResponse(
			map[string]any{"ok": false, "reason": "unsupported_command", "toolName": cmd.ToolName},
			"Unsupported command: "+cmd.ToolName,
		), nil
	}
	var origin Origin
	if ev != nil {
		origin = Origin{
			Channel:               string(ev.Channel),
			ChannelUserID:         ev.ChannelUserID,
			ChannelConversationID: ev.ChannelConversationID,
			RequestMessageID:      ev.EventID,
		}
	}
	res, err := h(ctx, accountID, cmd.Arguments, origin)
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("%s: %w", cmd.ToolName, err)
	}
	return res, nil
}

func unavailable(tool string) Response {
	return Text(fmt.Sprintf("%s is unavailable right now. Please try again later.", tool))
}

// decode maps JSON-shaped arguments onto a typed input and validates it.
func decode(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
