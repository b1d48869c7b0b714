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

	"go.uber.org/zap"

	_ "github.com/campus-hub/campus-ops-api/api/swagger"
	"github.com/campus-hub/campus-ops-api/internal/handler"
	"github.com/campus-hub/campus-ops-api/internal/repository"
	"github.com/campus-hub/campus-ops-api/internal/router"
	"github.com/campus-hub/campus-ops-api/internal/service"
	"github.com/campus-hub/campus-ops-api/pkg/cache"
	"github.com/campus-hub/campus-ops-api/pkg/config"
	"github.com/campus-hub/campus-ops-api/pkg/database"
	"github.com/campus-hub/campus-ops-api/pkg/logger"
	"github.com/campus-hub/campus-ops-api/pkg/storage"
)

// @title Campus Ops API
// @version 1.0.0
// @description Facility booking and maintenance ticket engine
// @BasePath /api
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	// The API keeps serving without Redis; caches degrade to pass-through.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	facilityRepo := repository.NewFacilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, cacheRepo, logr, service.NotificationQueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		UnreadTTL:  cfg.Notifications.UnreadCountTTL,
	})

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		TokenSecret:      cfg.JWT.Secret,
		TokenExpiry:      cfg.JWT.Expiration,
		Issuer:           cfg.JWT.Issuer,
		GoogleClientID:   cfg.Google.ClientID,
		GoogleTokenURL:   cfg.Google.TokenInfoBaseURL,
		GoogleHTTPClient: &http.Client{Timeout: cfg.Google.Timeout},
	})
	facilitySvc := service.NewFacilityService(facilityRepo, userRepo, nil, logr)
	bookingSvc := service.NewBookingService(bookingRepo, facilityRepo, userRepo, notificationSvc, nil, logr)
	ticketSvc := service.NewTicketService(ticketRepo, userRepo, facilityRepo, uploads, signer, userRepo, notificationSvc, nil, logr, service.TicketUploadLimits{
		MaxFiles:    cfg.Uploads.MaxFilesPerItem,
		MaxFileSize: cfg.Uploads.MaxFileSizeBytes,
	})
	commentSvc := service.NewCommentService(commentRepo, ticketRepo, notificationSvc, nil, logr)
	dashboardSvc := service.NewDashboardService(statsRepo, cacheRepo, logr, cfg.Dashboard.CacheTTL)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	engine := router.New(router.Dependencies{
		Config:  cfg,
		Logger:  logr,
		Auth:    authSvc,
		Metrics: metricsSvc,
		Ready: func() error {
			return db.Ping()
		},
	}, router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Facility:     handler.NewFacilityHandler(facilitySvc),
		Booking:      handler.NewBookingHandler(bookingSvc),
		Ticket:       handler.NewTicketHandler(ticketSvc),
		Comment:      handler.NewCommentHandler(commentSvc),
		Notification: handler.NewNotificationHandler(notificationSvc),
		Dashboard:    handler.NewDashboardHandler(dashboardSvc),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
