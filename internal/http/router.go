package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/agentcloud/vector-db-proxy/internal/http/handlers"
	httpMW "github.com/agentcloud/vector-db-proxy/internal/http/middleware"
	"github.com/agentcloud/vector-db-proxy/internal/observability"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

type RouterConfig struct {
	Log              *logger.Logger
	ServiceName      string
	HealthHandler    *httpH.HealthHandler
	IngestionHandler *httpH.IngestionHandler
	Metrics          *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}
	if cfg.IngestionHandler != nil {
		r.GET("/datasources/:id/ingestions", cfg.IngestionHandler.ListByDataSource)
	}
	return r
}
