package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// HealthResponse reports liveness and store reachability.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	DB     string `json:"db"     example:"ok"`
}

// Health godoc
// @ID          health
// @Summary     Liveness and database check
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	if h.d.Ping == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", DB: "skipped"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()
	if err := h.d.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", DB: "unreachable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", DB: "ok"})
}
