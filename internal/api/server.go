package api

import (
	"log/slog"
	"net/http"
	"time"

	_ "arc-framework/rsinit/docs" // register generated Swagger spec

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery: panic → 500
//  2. FridayOTEL: trace context per request
//  3. RequestLogger: structured request/response logging
//
// runTimeout bounds each bootstrap run started through the API.
func NewRouter(i initiatorService, runTimeout time.Duration) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(FridayOTEL("arc-rsinit"))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{initiator: i, runTimeout: runTimeout}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.Bootstrap)
	v1.GET("/bootstrap", h.LastBootstrap)
	v1.GET("/status", h.Status)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	// API docs: http://localhost:8082/api-docs
	engine.GET("/api-docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/api-docs/index.html")
	})
	engine.GET("/api-docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
