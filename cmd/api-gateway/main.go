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

	_ "github.com/noah-isme/church-music-api/api/swagger"
	"github.com/noah-isme/church-music-api/internal/handler"
	internalmiddleware "github.com/noah-isme/church-music-api/internal/middleware"
	"github.com/noah-isme/church-music-api/internal/repository"
	"github.com/noah-isme/church-music-api/internal/service"
	"github.com/noah-isme/church-music-api/pkg/cache"
	"github.com/noah-isme/church-music-api/pkg/config"
	"github.com/noah-isme/church-music-api/pkg/database"
	"github.com/noah-isme/church-music-api/pkg/invitelink"
	"github.com/noah-isme/church-music-api/pkg/jobs"
	"github.com/noah-isme/church-music-api/pkg/logger"
	"github.com/noah-isme/church-music-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/church-music-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/church-music-api/pkg/middleware/requestid"
	"github.com/noah-isme/church-music-api/pkg/recurrence"
	"github.com/noah-isme/church-music-api/pkg/templates"
	"github.com/noah-isme/church-music-api/pkg/timezone"
)

// @title Church Music API
// @version 1.0.0
// @description Scheduling of worship events, musician slots and invitations.
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without shared cache", zap.Error(err))
		redisClient = nil
	}

	catalog, err := templates.Load(cfg.Templates.File)
	if err != nil {
		logr.Fatal("failed to load event templates", zap.String("file", cfg.Templates.File), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	clock := timezone.SystemClock{}
	tx := database.NewTransactor(db)

	churchRepo := repository.NewChurchRepository(db)
	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.EventTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	sender := mailer.NewSendGrid(cfg.Mail.SendGridAPIKey, cfg.Mail.FromAddress, cfg.Mail.FromName)

	notifier := service.NewNotificationService(activityRepo, userRepo, sender, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Worker.QueueWorkers,
		MaxRetries: cfg.Worker.QueueRetries,
		Logger:     logr,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	eventSvc := service.NewEventService(service.EventServiceDeps{
		Churches:  churchRepo,
		Events:    eventRepo,
		Slots:     assignmentRepo,
		Tx:        tx,
		Expander:  recurrence.NewExpander(cfg.Recurrence.MaxInstances),
		Catalog:   catalog,
		Cache:     cacheSvc,
		Notifier:  notifier,
		Metrics:   metricsSvc,
		Clock:     clock,
		Validator: validate,
		Logger:    logr,
	})
	assignmentSvc := service.NewAssignmentService(service.AssignmentServiceDeps{
		Events: eventRepo,
		Slots:  assignmentRepo,
		Groups: groupRepo,
		Users:  userRepo,
		Tx:     tx,
		Cache:  cacheSvc,
		Policy: service.SlotPolicy{
			AllowMultiRole:             cfg.Scheduling.AllowMultiRole,
			ForbidDuplicateRoles:       cfg.Scheduling.ForbidDuplicateRoles,
			SignupRequiresConfirmation: cfg.Scheduling.SignupRequiresConfirmation,
		},
		Notifier:  notifier,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	invitationSvc := service.NewInvitationService(service.InvitationServiceDeps{
		Invitations:  invitationRepo,
		Users:        userRepo,
		Churches:     churchRepo,
		Reservations: cacheRepo,
		Tx:           tx,
		Sender:       sender,
		Signer:       invitelink.NewSigner(cfg.Invitations.LinkSecret, cfg.Invitations.AcceptURL),
		Notifier:     notifier,
		Metrics:      metricsSvc,
		Clock:        clock,
		Options: service.InvitationOptions{
			TTL:             cfg.Invitations.TTL,
			DispatchPolicy:  cfg.Invitations.DispatchPolicy,
			DispatchTimeout: cfg.Invitations.DispatchTimeout,
			BulkConcurrency: cfg.Invitations.BulkConcurrency,
			ReservationTTL:  cfg.Invitations.ReservationTTL,
		},
		Validator: validate,
		Logger:    logr,
	})
	groupSvc := service.NewGroupService(groupRepo, userRepo, cacheSvc, validate, logr)
	musicianSvc := service.NewMusicianService(userRepo, logr)
	calendarSvc := service.NewCalendarService(eventSvc, churchRepo, clock, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, tx)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/snapshot", internalmiddleware.JWT(authSvc), metricsHandler.Snapshot)
	handler.Register(api, handler.Handlers{
		Events:      handler.NewEventHandler(eventSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Invitations: handler.NewInvitationHandler(invitationSvc),
		Groups:      handler.NewGroupHandler(groupSvc),
		Calendar:    handler.NewCalendarHandler(calendarSvc),
		Activity:    handler.NewActivityHandler(notifier),
		Musicians:   handler.NewMusicianHandler(musicianSvc),
	}, internalmiddleware.JWT(authSvc))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
