package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agentcloud/vector-db-proxy/internal/http/response"
	"github.com/agentcloud/vector-db-proxy/internal/ingestion/status"
)

type IngestionLister interface {
	ByDataSource(ctx context.Context, dataSourceID string, limit int) ([]status.FileIngestion, error)
}

type IngestionHandler struct {
	store IngestionLister
}

func NewIngestionHandler(store IngestionLister) *IngestionHandler {
	return &IngestionHandler{store: store}
}

// GET /datasources/:id/ingestions?limit=50
func (h *IngestionHandler) ListByDataSource(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Fail(c, http.StatusBadRequest, "missing_datasource", nil)
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			response.Fail(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	rows, err := h.store.ByDataSource(c.Request.Context(), id, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	response.OK(c, gin.H{"datasource_id": id, "ingestions": rows})
}
