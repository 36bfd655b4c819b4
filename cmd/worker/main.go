package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/repository"
	"github.com/noah-isme/church-music-api/internal/service"
	"github.com/noah-isme/church-music-api/pkg/cache"
	"github.com/noah-isme/church-music-api/pkg/config"
	"github.com/noah-isme/church-music-api/pkg/database"
	"github.com/noah-isme/church-music-api/pkg/jobs"
	"github.com/noah-isme/church-music-api/pkg/logger"
	"github.com/noah-isme/church-music-api/pkg/mailer"
	"github.com/noah-isme/church-music-api/pkg/recurrence"
	"github.com/noah-isme/church-music-api/pkg/templates"
)

const jobTimeout = 5 * time.Minute

func main() {
	once := flag.Bool("once", false, "run every maintenance job once and exit")
	flag.Parse()

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cached listings will not be invalidated", zap.Error(err))
		redisClient = nil
	}

	catalog, err := templates.Load(cfg.Templates.File)
	if err != nil {
		logr.Fatal("failed to load event templates", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(db)
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Cache.EventTTL, logr, cfg.Cache.Enabled && redisClient != nil)
	sender := mailer.NewSendGrid(cfg.Mail.SendGridAPIKey, cfg.Mail.FromAddress, cfg.Mail.FromName)

	notifier := service.NewNotificationService(repository.NewActivityRepository(db), userRepo, sender, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Worker.QueueWorkers,
		MaxRetries: cfg.Worker.QueueRetries,
		Logger:     logr,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	eventSvc := service.NewEventService(service.EventServiceDeps{
		Churches: repository.NewChurchRepository(db),
		Events:   repository.NewEventRepository(db),
		Slots:    repository.NewAssignmentRepository(db),
		Tx:       database.NewTransactor(db),
		Expander: recurrence.NewExpander(cfg.Recurrence.MaxInstances),
		Catalog:  catalog,
		Cache:    cacheSvc,
		Notifier: notifier,
		Metrics:  metricsSvc,
		Logger:   logr,
	})
	invitationSvc := service.NewInvitationService(service.InvitationServiceDeps{
		Invitations: repository.NewInvitationRepository(db),
		Users:       userRepo,
		Metrics:     metricsSvc,
		Options:     service.InvitationOptions{TTL: cfg.Invitations.TTL},
		Logger:      logr,
	})

	extend := func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		summary, err := eventSvc.Extend(jobCtx)
		if err != nil {
			logr.Error("series extension failed", zap.Error(err))
			return
		}
		logr.Info("series extended", zap.Int("series", summary.Series), zap.Int("instances", summary.Instances))
	}
	expire := func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		if _, err := invitationSvc.ExpireStale(jobCtx); err != nil {
			logr.Error("invitation expiry failed", zap.Error(err))
		}
	}

	if *once {
		extend()
		expire()
		return
	}

	scheduler := cron.New(
		cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(logr))),
		cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(logr))), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := scheduler.AddFunc(cfg.Worker.ExtendSeriesSchedule, extend); err != nil {
		logr.Fatal("invalid series extension schedule", zap.String("schedule", cfg.Worker.ExtendSeriesSchedule), zap.Error(err))
	}
	if _, err := scheduler.AddFunc(cfg.Worker.ExpireInvitationSchedule, expire); err != nil {
		logr.Fatal("invalid invitation expiry schedule", zap.String("schedule", cfg.Worker.ExpireInvitationSchedule), zap.Error(err))
	}

	scheduler.Start()
	logr.Info("worker started",
		zap.String("extend_series", cfg.Worker.ExtendSeriesSchedule),
		zap.String("expire_invitations", cfg.Worker.ExpireInvitationSchedule),
	)

	<-ctx.Done()
	logr.Info("worker stopping")
	<-scheduler.Stop().Done()
}
