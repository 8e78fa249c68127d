package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"certmap/internal/config"
	"certmap/internal/handler"
	"certmap/internal/middleware"

	_ "certmap/docs"
)

// Options holds router settings that are not owned by a handler.
type Options struct {
	JWT         config.JWTConfig
	RateLimit   config.RateLimitConfig
	CORSOrigins []string
	// StaticDir is served under /files when uploads live on local disk.
	StaticDir string
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	opts Options,
	docH *handler.DocumentHandler,
	mapH *handler.MappingHandler,
	eventsH *handler.EventsHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(opts.CORSOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if opts.StaticDir != "" {
		r.Static("/files", opts.StaticDir)
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Identity(opts.JWT))

	// Uploads
	uploads := v1.Group("/uploads")
	uploads.POST("", middleware.RateLimit(opts.RateLimit.RPS, opts.RateLimit.Burst), docH.Upload)
	uploads.GET("", docH.List)
	uploads.GET("/export", docH.Export)
	uploads.GET("/:id", docH.GetByID)
	uploads.GET("/:id/download", docH.Download)

	// Extraction
	v1.POST("/extract/:id", mapH.Extract)
	v1.GET("/extraction/:id", mapH.GetExtraction)

	// Mapping
	v1.POST("/map", mapH.Map)
	mapping := v1.Group("/mapping")
	mapping.GET("/:id", mapH.GetMapping)
	mapping.GET("/:id/preview", mapH.Preview)
	mapping.POST("/:id/accept", mapH.Accept)
	mapping.GET("/:id/audit", mapH.Audit)
	mapping.GET("/:id/audit/export", mapH.ExportAudit)

	// Status events
	v1.GET("/subscribe/:id", eventsH.Subscribe)

	return r
}
