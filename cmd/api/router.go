package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/insite-net/partage-api/api/swagger"
	"github.com/insite-net/partage-api/internal/handler"
	"github.com/insite-net/partage-api/internal/middleware"
	"github.com/insite-net/partage-api/internal/models"
	"github.com/insite-net/partage-api/pkg/config"
	"github.com/insite-net/partage-api/pkg/logger"
	corsmiddleware "github.com/insite-net/partage-api/pkg/middleware/cors"
	reqidmiddleware "github.com/insite-net/partage-api/pkg/middleware/requestid"
	"github.com/insite-net/partage-api/pkg/storage"
)

type routes struct {
	auth        *handler.AuthHandler
	submissions *handler.SubmissionHandler
	archives    *handler.ArchiveHandler
	geocode     *handler.GeocodeHandler
	storage     *handler.StorageHandler
	metrics     *handler.MetricsHandler
	cache       *handler.CacheHandler
	validator   middleware.TokenValidator
	observer    middleware.RequestObserver
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Storage.Driver == config.StorageLocal || cfg.Storage.Driver == "" {
		r.GET(storage.LocalRoute+"/:bucket/*key", h.storage.Serve)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Path kept for clients still calling the hosted function.
	r.POST("/functions/v1/create-archive", h.archives.CreateArchive)

	api := r.Group(cfg.APIPrefix)
	api.POST("/create-archive", h.archives.CreateArchive)
	api.POST("/submissions", h.submissions.Create)
	api.GET("/geocode/reverse", h.geocode.Reverse)
	api.GET("/downloads/:token", h.archives.Download)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.GET("/me", middleware.JWT(h.validator), h.auth.Me)

	admin := api.Group("", middleware.JWT(h.validator), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/admin/submissions", h.submissions.List)
	admin.GET("/admin/submissions/export", h.submissions.Export)
	admin.GET("/admin/companies", h.submissions.Companies)
	admin.GET("/admin/submissions/:id", h.submissions.Get)
	admin.PUT("/admin/submissions/:id", middleware.Audit(logr, "submission.update"), h.submissions.Update)
	admin.DELETE("/admin/submissions/:id", middleware.Audit(logr, "submission.delete"), h.submissions.Delete)
	admin.POST("/admin/submissions/:id/archive", middleware.Audit(logr, "submission.archive"), h.submissions.Archive)
	admin.GET("/admin/metrics/summary", h.metrics.Snapshot)
	admin.DELETE("/admin/cache", middleware.Audit(logr, "cache.purge"), h.cache.Purge)

	if cfg.Jobs.Enabled {
		admin.POST("/archives/jobs", h.archives.CreateJob)
		admin.GET("/archives/jobs/:id", h.archives.JobStatus)
	}

	return r
}
