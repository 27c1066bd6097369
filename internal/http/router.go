// README: HTTP router registration.
package http

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"potluck/internal/config"
	"potluck/internal/http/handlers"
	"potluck/internal/http/middleware"
	"potluck/internal/infra"
	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/types"
)

type RouterDeps struct {
	Orders        handlers.OrderService
	Matching      handlers.MatchingService
	Location      handlers.LocationService
	Settlement    handlers.SettlementService
	Notifications handlers.NotificationService
	Catalog       handlers.CatalogService

	Verifier    infra.TokenVerifier
	Revocations middleware.Revocations
	// Counter may be nil, which disables rate limiting.
	Counter   middleware.WindowCounter
	RateLimit config.RateLimitConfig

	CORSOrigins []string
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(logger.OrNop(d.Log)), middleware.Recovery())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(d.Metrics.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api", middleware.Auth(d.Verifier, d.Revocations))
	if d.Counter != nil && d.RateLimit.Requests > 0 {
		api.Use(middleware.RateLimit(d.Counter, d.RateLimit.Requests, d.RateLimit.Window))
	}

	consumer := middleware.RequireRole(types.RoleConsumer)
	chef := middleware.RequireRole(types.RoleChef)
	delivery := middleware.RequireRole(types.RoleDelivery)

	if d.Revocations != nil {
		authHandler := handlers.NewAuthHandler(d.Revocations)
		api.POST("/auth/logout", authHandler.Logout)
	}

	orderHandler := handlers.NewOrderHandler(d.Orders)
	api.POST("/orders", consumer, orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/history", orderHandler.History)
	api.POST("/orders/:id/status", orderHandler.UpdateStatus)

	settlementHandler := handlers.NewSettlementHandler(d.Settlement)
	api.POST("/orders/:id/settle", consumer, settlementHandler.Settle)
	api.GET("/earnings", settlementHandler.Earnings)

	deliveryHandler := handlers.NewDeliveryHandler(d.Matching, d.Location)
	agents := api.Group("/delivery", delivery)
	agents.GET("/jobs", deliveryHandler.Jobs)
	agents.POST("/jobs/:id/accept", deliveryHandler.Accept)
	agents.GET("/active", deliveryHandler.Active)
	agents.PUT("/location", deliveryHandler.UpdateLocation)
	agents.GET("/service-areas", deliveryHandler.ListServiceAreas)
	agents.POST("/service-areas", deliveryHandler.AddServiceArea)
	agents.DELETE("/service-areas/:id", deliveryHandler.DeleteServiceArea)

	notificationHandler := handlers.NewNotificationHandler(d.Notifications)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)

	dishHandler := handlers.NewDishHandler(d.Catalog)
	api.POST("/dishes", chef, dishHandler.Create)
	api.POST("/dishes/price-suggestion", chef, dishHandler.SuggestPrice)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
	return cfg
}
