package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/church-music-api/internal/models"
)

// ActivityRepository persists the activity feed.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create stores an activity entry.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, church_id, actor_id, action, resource, resource_id, payload, created_at)
VALUES (:id, :church_id, :actor_id, :action, :resource, :resource_id, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListByChurch returns the newest entries first.
func (r *ActivityRepository) ListByChurch(ctx context.Context, churchID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, church_id, actor_id, action, resource, resource_id, payload, created_at
FROM activity_logs WHERE church_id = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.ActivityLog
	if err := r.db.SelectContext(ctx, &entries, query, churchID, limit); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return entries, nil
}
