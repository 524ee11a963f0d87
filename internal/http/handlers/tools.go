package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/http/middleware"
	"github.com/tbourn/omnichannel-gateway/internal/intents"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

// ToolResponse wraps the result of one tool call.
type ToolResponse struct {
	OK     bool              `json:"ok"`
	Tool   string            `json:"tool" example:"plan.generateOutfits"`
	Result commands.Response `json:"result"`
}

// InvokeTool godoc
// @ID          invokeTool
// @Summary     Invoke a tool
// @Description Runs a registered tool for the calling account. With an Idempotency-Key the first response is stored and replayed for retries of the same request; reusing the key with a different body is a conflict.
// @Tags        Tools
// @Accept      json
// @Produce     json
// @Param       operation        path    string  true   "Tool name, e.g. plan.generateOutfits"
// @Param       X-User-ID        header  string  true   "Account id"
// @Param       Idempotency-Key  header  string  false  "Client-supplied idempotency key"
// @Param       body             body    object  false  "Tool arguments"
// @Success     200  {object}  handlers.ToolResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /api/v1/tools/{operation} [post]
func (h *Handlers) InvokeTool(c *gin.Context) {
	acct := accountID(c)
	if acct == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-User-ID")
		return
	}
	tool := c.Param("operation")
	if !h.d.Tools.Supports(tool) {
		fail(c, http.StatusNotFound, ErrCodeUnknownTool, "unknown tool: "+tool)
		return
	}

	args := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "arguments must be a JSON object")
			return
		}
	}

	ctx := c.Request.Context()
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		key = c.GetHeader(middleware.HeaderIdempotencyKey)
	}
	if key != "" && h.d.Idempotency != nil {
		entry, hit, err := h.d.Idempotency.Lookup(ctx, acct, tool, key, args)
		switch {
		case errors.Is(err, services.ErrIdempotencyConflict):
			fail(c, http.StatusConflict, ErrCodeIdempotencyConflict, "idempotency key was used with a different request")
			return
		case err != nil:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "idempotency lookup failed")
			return
		case hit:
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			c.Data(entry.StatusCode, "application/json; charset=utf-8", entry.Response)
			return
		}
	}

	res, err := h.d.Tools.Execute(ctx, acct, nil, intents.Command{ToolName: tool, Arguments: args})
	switch {
	case errors.Is(err, commands.ErrInvalidArguments):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidArguments, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeToolFailed, "tool failed")
		return
	}

	out := ToolResponse{OK: true, Tool: tool, Result: res}
	if key != "" && h.d.Idempotency != nil {
		if err := h.d.Idempotency.Store(ctx, acct, tool, key, args, http.StatusOK, out); err != nil {
			// the call already happened; a lost record only costs a re-execution
			middleware.LoggerFrom(c).Warn().Err(err).Str("tool", tool).Msg("idempotency store failed")
		}
	}
	ok(c, http.StatusOK, out)
}
