package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/pkg/jobs"
	"github.com/noah-isme/church-music-api/pkg/mailer"
)

const activityJobType = "activity"

// Activity is one state change worth recording and, optionally, mailing.
type Activity struct {
	ChurchID   string
	ActorID    string
	Action     string
	Resource   string
	ResourceID string
	Payload    map[string]interface{}
	// NotifyUserID receives an email describing the change when set.
	NotifyUserID string
	Subject      string
	Body         string
}

// activityEmitter is the fire-and-forget sink services report changes to.
type activityEmitter interface {
	Emit(ctx context.Context, activity Activity)
}

type activityStore interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	ListByChurch(ctx context.Context, churchID string, limit int) ([]models.ActivityLog, error)
}

type recipientLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationService persists activity entries and mails affected
// musicians from a background queue.
type NotificationService struct {
	store   activityStore
	users   recipientLookup
	sender  mailer.Sender
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewNotificationService constructs the service and its queue. The queue is
// idle until Start is called; until then Emit runs jobs inline.
func NewNotificationService(store activityStore, users recipientLookup, sender mailer.Sender, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	svc := &NotificationService{store: store, users: users, sender: sender, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("notifications", svc.handle, cfg)
	return svc
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Emit records activity without affecting the caller. Failures are logged.
func (s *NotificationService) Emit(ctx context.Context, activity Activity) {
	if s == nil {
		return
	}
	s.queue.Submit(context.WithoutCancel(ctx), jobs.Job{Type: activityJobType, Payload: activity})
}

// Recent returns the newest activity entries of a church.
func (s *NotificationService) Recent(ctx context.Context, churchID string, limit int) ([]models.ActivityLog, error) {
	entries, err := s.store.ListByChurch(ctx, churchID, limit)
	if err != nil {
		return nil, wrapInternal(err, "failed to list activity")
	}
	return entries, nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	activity, ok := job.Payload.(Activity)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	// Retries re-run the whole job, so only persistence reports failure.
	entry, err := activityLog(activity)
	if err != nil {
		s.logger.Error("encode activity payload", zap.String("action", activity.Action), zap.Error(err))
		return nil
	}
	if err := s.store.Create(ctx, entry); err != nil {
		s.metrics.RecordNotification(err)
		return fmt.Errorf("persist activity %s: %w", activity.Action, err)
	}

	mailErr := s.mail(ctx, activity)
	if mailErr != nil {
		s.logger.Warn("activity email not delivered",
			zap.String("action", activity.Action),
			zap.String("recipient", activity.NotifyUserID),
			zap.Error(mailErr))
	}
	s.metrics.RecordNotification(mailErr)
	return nil
}

func (s *NotificationService) mail(ctx context.Context, activity Activity) error {
	if activity.NotifyUserID == "" || s.sender == nil || s.users == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, activity.NotifyUserID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	err = s.sender.Send(ctx, mailer.Message{
		ToName:    user.FullName(),
		ToAddress: user.Email,
		Subject:   activity.Subject,
		Text:      activity.Body,
	})
	if errors.Is(err, mailer.ErrSendingRestricted) {
		s.logger.Info("activity email skipped, sending restricted", zap.String("action", activity.Action))
		return nil
	}
	return err
}

func activityLog(activity Activity) (*models.ActivityLog, error) {
	entry := &models.ActivityLog{
		ChurchID: activity.ChurchID,
		Action:   activity.Action,
		Resource: activity.Resource,
	}
	if activity.ActorID != "" {
		entry.ActorID = &activity.ActorID
	}
	if activity.ResourceID != "" {
		entry.ResourceID = &activity.ResourceID
	}
	if len(activity.Payload) > 0 {
		raw, err := json.Marshal(activity.Payload)
		if err != nil {
			return nil, err
		}
		entry.Payload = raw
	}
	return entry, nil
}
