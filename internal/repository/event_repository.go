package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/church-music-api/internal/models"
)

const eventColumns = `id, church_id, name, description, location, start_at, end_at, status, event_type_name, event_type_color,
is_recurring, recurrence_pattern, recurrence_interval_days, recurrence_end, parent_event_id, created_by, created_at, updated_at`

// EventRepository persists events and recurring series.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event payload is nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.EventStatusConfirmed
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `
INSERT INTO events (id, church_id, name, description, location, start_at, end_at, status, event_type_name, event_type_color,
    is_recurring, recurrence_pattern, recurrence_interval_days, recurrence_end, parent_event_id, created_by, created_at, updated_at)
VALUES (:id, :church_id, :name, :description, :location, :start_at, :end_at, :status, :event_type_name, :event_type_color,
    :is_recurring, :recurrence_pattern, :recurrence_interval_days, :recurrence_end, :parent_event_id, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FindByID returns an event or sql.ErrNoRows.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// List returns the church's events ordered by start.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	conditions := []string{"church_id = $1"}
	args := []interface{}{filter.ChurchID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StartAt != nil {
		args = append(args, *filter.StartAt)
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if filter.EndAt != nil {
		args = append(args, *filter.EndAt)
		conditions = append(conditions, fmt.Sprintf("start_at <= $%d", len(args)))
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY start_at ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Update overwrites mutable event fields.
func (r *EventRepository) Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE events SET name = :name, description = :description, location = :location, start_at = :start_at, end_at = :end_at,
    status = :status, event_type_name = :event_type_name, event_type_color = :event_type_color, is_recurring = :is_recurring,
    recurrence_pattern = :recurrence_pattern, recurrence_interval_days = :recurrence_interval_days, recurrence_end = :recurrence_end,
    updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated event rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSeries returns the seed and every child of seriesID ordered by start.
func (r *EventRepository) ListSeries(ctx context.Context, seriesID string) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 OR parent_event_id = $1 ORDER BY start_at ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, seriesID); err != nil {
		return nil, fmt.Errorf("list event series: %w", err)
	}
	return events, nil
}

// CountChildren returns how many instances reference parentID.
func (r *EventRepository) CountChildren(ctx context.Context, exec sqlx.ExtContext, parentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM events WHERE parent_event_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, parentID); err != nil {
		return 0, fmt.Errorf("count child events: %w", err)
	}
	return count, nil
}

// DeleteByIDs removes events; their assignments cascade.
func (r *EventRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM events WHERE id = ANY($1)`
	result, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deleted event rows: %w", err)
	}
	return int(affected), nil
}

// ListOpenEndedSeeds returns recurring seeds without an end date.
func (r *EventRepository) ListOpenEndedSeeds(ctx context.Context) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
WHERE is_recurring = TRUE AND parent_event_id IS NULL AND recurrence_end IS NULL AND status <> 'cancelled'
ORDER BY created_at ASC`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list open-ended series: %w", err)
	}
	return events, nil
}

// SeriesTail returns the latest start in a series and how many instances
// start after the given instant.
func (r *EventRepository) SeriesTail(ctx context.Context, seedID string, after time.Time) (time.Time, int, error) {
	const query = `SELECT MAX(start_at) AS latest, COUNT(*) FILTER (WHERE start_at > $2) AS upcoming
FROM events WHERE id = $1 OR parent_event_id = $1`
	var row struct {
		Latest   sql.NullTime `db:"latest"`
		Upcoming int          `db:"upcoming"`
	}
	if err := r.db.GetContext(ctx, &row, query, seedID, after); err != nil {
		return time.Time{}, 0, fmt.Errorf("load series tail: %w", err)
	}
	if !row.Latest.Valid {
		return time.Time{}, 0, sql.ErrNoRows
	}
	return row.Latest.Time.UTC(), row.Upcoming, nil
}

// LockForUpdate takes a row lock on the event for the rest of the
// transaction, serializing slot mutations on it.
func (r *EventRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `SELECT id FROM events WHERE id = $1 FOR UPDATE`
	var locked string
	if err := sqlx.GetContext(ctx, r.exec(exec), &locked, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock event: %w", err)
	}
	return nil
}
