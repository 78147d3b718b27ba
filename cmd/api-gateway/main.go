package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushq/library-api/api/swagger"
	"github.com/campushq/library-api/internal/handler"
	"github.com/campushq/library-api/internal/middleware"
	"github.com/campushq/library-api/internal/models"
	"github.com/campushq/library-api/internal/repository"
	"github.com/campushq/library-api/internal/service"
	"github.com/campushq/library-api/pkg/cache"
	"github.com/campushq/library-api/pkg/config"
	"github.com/campushq/library-api/pkg/database"
	"github.com/campushq/library-api/pkg/jobs"
	"github.com/campushq/library-api/pkg/logger"
	"github.com/campushq/library-api/pkg/storage"
	corsmiddleware "github.com/campushq/library-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/library-api/pkg/middleware/requestid"
)

// @title Campus Library API
// @version 1.0.0
// @description College library management with geofence presence tracking
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	bookRepo := repository.NewBookRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	fineRepo := repository.NewFineRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	geofenceRepo := repository.NewGeofenceRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	occupancyRepo := repository.NewOccupancyRepository(db)
	analyticsRepo := repository.NewTrackingAnalyticsRepository(db)

	// Services
	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Tracking.AnalyticsCacheTTL, logr, true)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "library-api",
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	bookSvc := service.NewBookService(bookRepo, validate, logr)
	issueSvc := service.NewIssueService(issueRepo, studentRepo, validate, logr, cfg.Library.LoanPeriod, cfg.Library.MaxActiveLoans)
	fineSvc := service.NewFineService(fineRepo, issueRepo, logr, cfg.Fines.DailyRate)
	bookingSvc := service.NewBookingService(bookingRepo, validate, logr)
	trackingSvc := service.NewTrackingService(geofenceRepo, permissionRepo, occupancyRepo, studentRepo,
		cacheSvc, metricsSvc, validate, logr, cfg.Tracking.GeofenceCacheTTL)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, occupancyRepo, cacheSvc, metricsSvc, logr, cfg.Tracking.AnalyticsCacheTTL)

	archiveStore, err := storage.NewLocalStore(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	archiveSigner := storage.NewSigner(cfg.JWT.Secret, cfg.Exports.URLTTL)
	exportSvc := service.NewExportService(occupancyRepo, logr, nil, nil, archiveStore, archiveSigner)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	bookHandler := handler.NewBookHandler(bookSvc)
	issueHandler := handler.NewIssueHandler(issueSvc)
	fineHandler := handler.NewFineHandler(fineSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	trackingHandler := handler.NewTrackingHandler(trackingSvc, analyticsSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background overdue-fine sweep
	sweepQueue := jobs.NewQueue("fine-sweep", fineSvc.SweepHandler(), jobs.QueueConfig{
		Workers: cfg.Fines.SweepWorkers,
		Logger:  logr,
	})
	sweepQueue.Start(ctx)
	defer sweepQueue.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Fines.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sweepQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: service.JobTypeOverdueSweep}); err != nil {
					logr.Sugar().Warnw("failed to enqueue sweep", "error", err)
				}
			}
		}
	}()

	// Expired export archives are swept on the same cadence as the fine sweep.
	go func() {
		ticker := time.NewTicker(cfg.Fines.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := archiveStore.Sweep(cfg.Exports.Retention); err != nil {
					logr.Sugar().Warnw("archive sweep failed", "error", err)
				} else if removed > 0 {
					logr.Sugar().Infow("archive sweep completed", "removed", removed)
				}
			}
		}
	}()

	if cfg.Tracking.Enabled && cfg.Tracking.RebuildOnStart {
		if restored, err := trackingSvc.RebuildLive(ctx); err != nil {
			logr.Sugar().Warnw("live occupancy rebuild failed", "error", err)
		} else {
			logr.Sugar().Infow("live occupancy rebuilt", "restored", restored)
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleLibrarian)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleLibrarian), "SELF"), studentHandler.Get)
		students.POST("", staff, studentHandler.Create)
		students.PUT("/:id", staff, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Deactivate)
	}

	books := api.Group("/books")
	{
		books.GET("", bookHandler.List)
		books.GET("/:id", bookHandler.Get)
		books.POST("", middleware.JWT(authSvc), staff, bookHandler.Create)
		books.PUT("/:id", middleware.JWT(authSvc), staff, bookHandler.Update)
		books.DELETE("/:id", middleware.JWT(authSvc), adminOnly, bookHandler.Delete)
	}

	issues := api.Group("/issues", middleware.JWT(authSvc))
	{
		issues.GET("", staff, issueHandler.List)
		issues.POST("", staff, issueHandler.Issue)
		issues.POST("/:id/return", staff, issueHandler.Return)
	}

	fines := api.Group("/fines", middleware.JWT(authSvc))
	{
		fines.GET("", staff, fineHandler.List)
		fines.POST("/:id/pay", staff, fineHandler.Pay)
		fines.POST("/:id/waive", adminOnly, fineHandler.Waive)
		fines.POST("/sweep", adminOnly, fineHandler.Sweep)
	}

	bookings := api.Group("/bookings", middleware.JWT(authSvc))
	{
		bookings.GET("", bookingHandler.List)
		bookings.POST("", bookingHandler.Create)
		bookings.DELETE("/:id", bookingHandler.Cancel)
	}

	if cfg.Tracking.Enabled {
		tracking := api.Group("/tracking", middleware.JWT(authSvc))
		{
			tracking.POST("/location", trackingHandler.UpdateLocation)
			tracking.POST("/permission", trackingHandler.GrantPermission)
			tracking.GET("/geofence", trackingHandler.GetGeofence)
			tracking.PUT("/geofence", adminOnly, trackingHandler.SetGeofence)
			tracking.GET("/occupancy", trackingHandler.Occupancy)
			tracking.POST("/occupancy/rebuild", adminOnly, trackingHandler.RebuildOccupancy)
			tracking.GET("/logs", staff, trackingHandler.Logs)
			tracking.GET("/logs/export", staff, trackingHandler.ExportLogs)
			tracking.POST("/logs/export/archive", staff, trackingHandler.ArchiveLogs)
			tracking.GET("/analytics", staff, trackingHandler.Analytics)
		}
		// Token-authenticated download, no session required.
		api.GET("/tracking/exports/:token", trackingHandler.DownloadArchive)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
