package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/thesis-flow-api/api/swagger"
	"github.com/noah-isme/thesis-flow-api/internal/handler"
	"github.com/noah-isme/thesis-flow-api/internal/middleware"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/repository"
	"github.com/noah-isme/thesis-flow-api/internal/service"
	"github.com/noah-isme/thesis-flow-api/pkg/cache"
	"github.com/noah-isme/thesis-flow-api/pkg/config"
	"github.com/noah-isme/thesis-flow-api/pkg/database"
	"github.com/noah-isme/thesis-flow-api/pkg/export"
	"github.com/noah-isme/thesis-flow-api/pkg/jobs"
	"github.com/noah-isme/thesis-flow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/thesis-flow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/thesis-flow-api/pkg/middleware/requestid"
	"github.com/noah-isme/thesis-flow-api/pkg/storage"
)

// @title Thesis Flow API
// @version 1.0.0
// @description Academic thesis document lifecycle and review workflow engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	userRepo := repository.NewUserRepository(db)
	themeRepo := repository.NewThemeRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	plagiarismRepo := repository.NewPlagiarismRepository(db)
	juryRepo := repository.NewJuryRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, progress cache disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	fileStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "thesis-flow-api",
		Audience:           []string{"thesis-flow"},
	})

	notifier := service.NewNotificationService(logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	if cfg.Notifications.Enabled {
		notifier.Start(context.Background())
		defer notifier.Stop()
	}

	var progressCache service.CacheRepository
	if cacheRepo != nil {
		progressCache = service.NewCacheService(cacheRepo, metrics, cfg.Progress.CacheTTL, logr)
	}
	progressService := service.NewProgressService(documentRepo, plagiarismRepo, progressCache, logr, cfg.Progress.CacheTTL)

	documentService := service.NewDocumentService(documentRepo, themeRepo, fileStore, signer, notifier, userRepo, progressService, metrics, logr, service.DocumentServiceConfig{
		MaxFileSize:         cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs:        cfg.Documents.AllowedMIMEs,
		PlagiarismThreshold: cfg.Plagiarism.Threshold,
		APIPrefix:           cfg.APIPrefix,
	})
	plagiarismService := service.NewPlagiarismService(plagiarismRepo, notifier, userRepo, progressService, metrics, logr)
	defenseService := service.NewDefenseService(themeRepo, progressService, plagiarismRepo, juryRepo, export.NewPDFExporter(), logr)
	juryService := service.NewJuryService(juryRepo, themeRepo, documentRepo, defenseService, notifier, userRepo, progressService, metrics, validate, logr)
	themeService := service.NewThemeService(themeRepo, export.NewCSVExporter(), validate, logr)
	userService := service.NewUserService(userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	themeHandler := handler.NewThemeHandler(themeService)
	documentHandler := handler.NewDocumentHandler(documentService)
	progressHandler := handler.NewProgressHandler(progressService, themeService)
	plagiarismHandler := handler.NewPlagiarismHandler(plagiarismService)
	defenseHandler := handler.NewDefenseHandler(defenseService)
	juryHandler := handler.NewJuryHandler(juryService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))
	{
		protected.POST("/themes",
			middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead),
			themeHandler.Create)
		protected.GET("/themes", themeHandler.List)
		protected.GET("/themes/:id", themeHandler.Get)

		protected.POST("/themes/:id/documents",
			middleware.RequireRoles(models.RoleStudent),
			documentHandler.Submit)
		protected.GET("/themes/:id/documents", documentHandler.History)
		protected.POST("/themes/:id/documents/:type/review",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleDepartmentHead),
			documentHandler.Review)
		protected.GET("/documents/:id/url", documentHandler.DownloadURL)
		protected.GET("/documents/:id/download", documentHandler.Download)

		protected.GET("/themes/:id/progress", progressHandler.Get)
		protected.GET("/themes/:id/defense-readiness", defenseHandler.Readiness)

		protected.GET("/themes/:id/plagiarism",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleDepartmentHead, models.RoleJury, models.RoleAdmin),
			plagiarismHandler.ListForTheme)
		protected.GET("/plagiarism/reports/:id",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleDepartmentHead, models.RoleJury, models.RoleAdmin),
			plagiarismHandler.Get)
		protected.POST("/plagiarism/reports/:id/resolve",
			middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionPlagiarismResolve, "plagiarism_report"),
			plagiarismHandler.Resolve)

		protected.POST("/themes/:id/deliberation",
			middleware.RequireRoles(models.RoleJury),
			juryHandler.Record)
		protected.GET("/themes/:id/deliberation", juryHandler.Get)
		protected.GET("/themes/:id/deliberation/minutes",
			middleware.RequireRoles(models.RoleJury, models.RoleDepartmentHead, models.RoleAdmin),
			defenseHandler.Minutes)

		protected.GET("/exports/themes",
			middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin),
			themeHandler.Export)

		protected.GET("/users",
			middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead),
			userHandler.List)
		protected.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		protected.POST("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		protected.PUT("/users/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		protected.DELETE("/users/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
