package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sis-billing-api/api/swagger"
	"github.com/noah-isme/sis-billing-api/internal/handler"
	"github.com/noah-isme/sis-billing-api/internal/middleware"
	"github.com/noah-isme/sis-billing-api/internal/models"
	"github.com/noah-isme/sis-billing-api/internal/repository"
	"github.com/noah-isme/sis-billing-api/internal/service"
	"github.com/noah-isme/sis-billing-api/pkg/cache"
	"github.com/noah-isme/sis-billing-api/pkg/config"
	"github.com/noah-isme/sis-billing-api/pkg/database"
	"github.com/noah-isme/sis-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-billing-api/pkg/middleware/requestid"
	"github.com/noah-isme/sis-billing-api/pkg/storage"
)

// @title SIS Billing API
// @version 1.0.0
// @description Student enrollment lifecycle and billing engine
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
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	// Redis is optional: the cache degrades to pass-through when unavailable.
	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, redisErr := cache.NewRedis(cfg.Redis)
		if redisErr != nil {
			logr.Sugar().Warnw("redis unavailable, fee cache disabled", "error", redisErr)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		}
	}

	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	feeRepo := repository.NewGradeLevelFeeRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.Auth.Secret,
		AccessTokenExpiry:  cfg.Auth.Expiration,
		RefreshTokenExpiry: cfg.Auth.RefreshExpiration,
		Issuer:             cfg.Auth.Issuer,
		SingleSession:      cfg.Auth.SingleSession,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, guardianRepo, periodRepo, feeRepo, metricsSvc, validate, logr)
	billingSvc := service.NewBillingService(enrollmentRepo, paymentRepo, feeRepo, cacheSvc, metricsSvc, validate, logr)
	feeScheduleSvc := service.NewFeeScheduleService(feeRepo, cacheSvc, validate, logr)
	periodSvc := service.NewPeriodService(periodRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, guardianRepo, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(enrollmentRepo, paymentRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportSvc.StartQueue(ctx)
	defer exportSvc.StopQueue()

	go cleanupLoop(ctx, exportSvc, cfg.Exports.CleanupInterval, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	billingHandler := handler.NewBillingHandler(billingSvc, exportSvc)
	feeHandler := handler.NewFeeScheduleHandler(feeScheduleSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	// Download links carry their own signed token.
	api.GET("/export/:token", billingHandler.DownloadExport)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/enrollments", enrollmentHandler.List)
		authed.GET("/enrollments/can-enroll", enrollmentHandler.CanEnroll)
		authed.GET("/enrollments/:id", enrollmentHandler.Get)
		authed.GET("/enrollments/:id/payments", billingHandler.ListPayments)
		authed.GET("/enrollments/:id/invoice", billingHandler.Invoice)

		authed.GET("/billing/fees", billingHandler.CalculateFees)
		authed.POST("/billing/plan", billingHandler.PaymentPlan)

		authed.GET("/fees", feeHandler.List)
		authed.GET("/fees/:id", feeHandler.Get)
		authed.GET("/periods", periodHandler.List)
		authed.GET("/periods/active", periodHandler.Active)
		authed.GET("/periods/:id", periodHandler.Get)
		authed.GET("/students", studentHandler.List)
		authed.GET("/students/:id", studentHandler.Get)
		authed.GET("/guardians/:id", studentHandler.GetGuardian)

		registrar := authed.Group("")
		registrar.Use(middleware.RequireRoles(models.RoleRegistrar, models.RoleAdmin))
		{
			registrar.POST("/enrollments", enrollmentHandler.Create)
			registrar.POST("/enrollments/:id/approve", enrollmentHandler.Approve)
			registrar.POST("/enrollments/:id/reject", enrollmentHandler.Reject)
			registrar.POST("/enrollments/bulk-approve", enrollmentHandler.BulkApprove)
			registrar.POST("/enrollments/:id/complete", enrollmentHandler.Complete)
			registrar.POST("/enrollments/:id/withdraw", enrollmentHandler.Withdraw)

			registrar.POST("/students", studentHandler.Create)
			registrar.PUT("/students/:id", studentHandler.Update)
			registrar.POST("/guardians", studentHandler.CreateGuardian)
			registrar.PUT("/guardians/:id", studentHandler.UpdateGuardian)
		}

		cashier := authed.Group("")
		cashier.Use(middleware.RequireRoles(models.RoleCashier, models.RoleAdmin))
		{
			cashier.POST("/enrollments/:id/payments", billingHandler.RecordPayment)
			cashier.POST("/payments/:paymentId/refund", billingHandler.Refund)
			cashier.PUT("/enrollments/:id/discount", billingHandler.ApplyDiscount)
			cashier.GET("/billing/collections", billingHandler.CollectionsSummary)
			cashier.POST("/billing/collections/report", billingHandler.RequestCollectionsReport)
		}

		admin := authed.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/fees", feeHandler.Create)
			admin.PUT("/fees/:id", feeHandler.Update)
			admin.DELETE("/fees/:id", feeHandler.Delete)
			admin.POST("/periods", periodHandler.Create)
			admin.PUT("/periods/:id", periodHandler.Update)
			admin.POST("/periods/:id/activate", periodHandler.Activate)
			admin.GET("/metrics/summary", metricsHandler.Snapshot)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// cleanupLoop prunes expired report files on a fixed interval.
func cleanupLoop(ctx context.Context, exports *service.ExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Sugar().Warnw("export cleanup failed", "error", err)
				continue
			}
			if len(removed) > 0 {
				logr.Sugar().Infow("expired reports removed", "count", len(removed))
			}
		}
	}
}
