package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentcloud/vector-db-proxy/internal/http/response"
)

// HealthHandler serves liveness and readiness. ready reports whether the queue
// subscription is consuming; nil means always ready.
type HealthHandler struct {
	ready func() bool
}

func NewHealthHandler(ready func() bool) *HealthHandler { return &HealthHandler{ready: ready} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil && !h.ready() {
		response.Fail(c, http.StatusServiceUnavailable, "not_ready", errors.New("queue subscription is not active"))
		return
	}
	c.String(http.StatusOK, "ready")
}
