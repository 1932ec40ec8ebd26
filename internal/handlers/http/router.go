package http

import (
	"net/http"
	"time"

	"borerelay/internal/core/ports"
	"borerelay/internal/infrastructure/middleware"
	"borerelay/internal/infrastructure/monitoring"
	"borerelay/pkg/config"
	"borerelay/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps wires the engine. Metrics, MetricsHandler and Health may be nil.
type RouterDeps struct {
	Config   *config.Config
	Logger   *zap.SugaredLogger
	Resolver ports.PermissionResolver

	// Relay is mounted, unauthenticated at the HTTP layer, on RelayPath.
	Relay     ports.WebSocketHandler
	RelayPath string

	Handlers []ports.RouteRegistrar

	Metrics        middleware.HTTPMetrics
	MetricsHandler http.Handler
	Health         *monitoring.HealthChecker
}

// NewRouter builds the gin engine: unauthenticated probes and the relay
// socket at the root, everything else under /api behind AuthMiddleware.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(deps.Logger),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(deps.Logger.Desugar())),
		middleware.TracingMiddleware(),
	)
	if deps.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(deps.Metrics))
	}
	router.Use(
		middleware.ErrorHandlerMiddleware(deps.Logger),
		middleware.NewHTTPRateLimitMiddleware(deps.Config),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	router.GET("/ready", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": monitoring.StatusHealthy})
			return
		}
		status := deps.Health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	if deps.Relay != nil {
		router.GET(deps.RelayPath, gin.WrapF(deps.Relay.HandleWebSocket))
	}

	api := router.Group("/api", middleware.AuthMiddleware(deps.Resolver))
	for _, h := range deps.Handlers {
		h.RegisterRoutes(api)
	}

	return router
}
