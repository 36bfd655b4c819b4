package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/church-music-api/internal/models"
)

// ErrStaleSlot reports that a conditional slot update matched no row because
// the slot changed since it was read.
var ErrStaleSlot = errors.New("slot changed concurrently")

const assignmentColumns = `id, event_id, role_name, status, max_musicians, user_id, group_id, created_at, updated_at`

// AssignmentRepository persists event role slots.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a slot.
func (r *AssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentPending
	}
	if assignment.MaxMusicians <= 0 {
		assignment.MaxMusicians = 1
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	const query = `INSERT INTO assignments (id, event_id, role_name, status, max_musicians, user_id, group_id, created_at, updated_at)
VALUES (:id, :event_id, :role_name, :status, :max_musicians, :user_id, :group_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// FindByID returns a slot or sql.ErrNoRows.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	return r.Get(ctx, nil, id)
}

// Get reads a slot through exec, so a transaction sees its own writes.
func (r *AssignmentRepository) Get(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &assignment, nil
}

// ListByEvent returns the event's slots in creation order.
func (r *AssignmentRepository) ListByEvent(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE event_id = $1 ORDER BY created_at ASC, id ASC`
	var assignments []models.Assignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, eventID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

type assignmentDetailRow struct {
	models.Assignment
	UserFirstName *string `db:"user_first_name"`
	UserLastName  *string `db:"user_last_name"`
	UserEmail     *string `db:"user_email"`
	GroupName     *string `db:"group_name"`
}

// ListDetailsByEvents returns slots for many events with user and group
// summaries attached.
func (r *AssignmentRepository) ListDetailsByEvents(ctx context.Context, eventIDs []string) ([]models.AssignmentDetail, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT a.id, a.event_id, a.role_name, a.status, a.max_musicians, a.user_id, a.group_id, a.created_at, a.updated_at,
       u.first_name AS user_first_name, u.last_name AS user_last_name, u.email AS user_email, g.name AS group_name
FROM assignments a
LEFT JOIN users u ON u.id = a.user_id
LEFT JOIN groups g ON g.id = a.group_id
WHERE a.event_id = ANY($1)
ORDER BY a.event_id, a.created_at ASC, a.id ASC`
	var rows []assignmentDetailRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(eventIDs)); err != nil {
		return nil, fmt.Errorf("list assignment details: %w", err)
	}

	details := make([]models.AssignmentDetail, 0, len(rows))
	for _, row := range rows {
		detail := models.AssignmentDetail{Assignment: row.Assignment}
		if row.UserID != nil && row.UserEmail != nil {
			detail.User = &models.UserSummary{ID: *row.UserID, Email: *row.UserEmail}
			if row.UserFirstName != nil {
				detail.User.FirstName = *row.UserFirstName
			}
			if row.UserLastName != nil {
				detail.User.LastName = *row.UserLastName
			}
		}
		if row.GroupID != nil && row.GroupName != nil {
			detail.Group = &models.GroupSummary{ID: *row.GroupID, Name: *row.GroupName}
		}
		details = append(details, detail)
	}
	return details, nil
}

// RoleExists reports whether an event already has a slot with the role name.
func (r *AssignmentRepository) RoleExists(ctx context.Context, eventID, roleName string) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE event_id = $1 AND lower(role_name) = lower($2) LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, eventID, roleName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check assignment role: %w", err)
	}
	return true, nil
}

// Fill sets the user on an open slot. The update only applies while the slot
// is still open; otherwise ErrStaleSlot is returned.
func (r *AssignmentRepository) Fill(ctx context.Context, exec sqlx.ExtContext, id, userID string, status models.AssignmentStatus) error {
	const query = `UPDATE assignments SET user_id = $2, status = $3, updated_at = $4
WHERE id = $1 AND user_id IS NULL AND group_id IS NULL`
	return r.conditional(ctx, exec, "fill assignment", query, id, userID, status, time.Now().UTC())
}

// Release clears the user from a slot held by userID and reopens it.
func (r *AssignmentRepository) Release(ctx context.Context, exec sqlx.ExtContext, id, userID string) error {
	const query = `UPDATE assignments SET user_id = NULL, status = 'PENDING', updated_at = $3
WHERE id = $1 AND user_id = $2`
	return r.conditional(ctx, exec, "release assignment", query, id, userID, time.Now().UTC())
}

// Transition moves a slot held by userID from one status to another.
func (r *AssignmentRepository) Transition(ctx context.Context, exec sqlx.ExtContext, id, userID string, from, to models.AssignmentStatus) error {
	const query = `UPDATE assignments SET status = $4, updated_at = $5
WHERE id = $1 AND user_id = $2 AND status = $3`
	return r.conditional(ctx, exec, "transition assignment", query, id, userID, from, to, time.Now().UTC())
}

// FindGroupSlot returns the slot on an event carrying groupID, or the open
// slot named after the group when none carries it.
func (r *AssignmentRepository) FindGroupSlot(ctx context.Context, eventID, groupID, groupName string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
WHERE event_id = $1 AND (group_id = $2 OR (group_id IS NULL AND user_id IS NULL AND role_name = $3))
ORDER BY (group_id IS NOT NULL) DESC, created_at ASC LIMIT 1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, eventID, groupID, groupName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get group assignment: %w", err)
	}
	return &assignment, nil
}

// AttachGroup sets groupID on an open slot.
func (r *AssignmentRepository) AttachGroup(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error {
	const query = `UPDATE assignments SET group_id = $2, status = 'ACCEPTED', updated_at = $3
WHERE id = $1 AND user_id IS NULL AND group_id IS NULL`
	return r.conditional(ctx, exec, "attach group", query, id, groupID, time.Now().UTC())
}

// HoldGroupMembers records the group's current members as holders of the
// slot. They stay held until the group is released.
func (r *AssignmentRepository) HoldGroupMembers(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error {
	const query = `INSERT INTO assignment_group_members (assignment_id, group_id, user_id, created_at)
SELECT $1, gm.group_id, gm.user_id, $3 FROM group_members gm WHERE gm.group_id = $2
ON CONFLICT (assignment_id, user_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, groupID, time.Now().UTC()); err != nil {
		return fmt.Errorf("hold group members: %w", err)
	}
	return nil
}

// ReleaseGroup reopens every slot on the event carrying groupID, drops the
// held members and returns the reopened slot ids.
func (r *AssignmentRepository) ReleaseGroup(ctx context.Context, exec sqlx.ExtContext, eventID, groupID string) ([]string, error) {
	const query = `WITH released AS (
    UPDATE assignments SET group_id = NULL, status = 'PENDING', updated_at = $3
    WHERE event_id = $1 AND group_id = $2 RETURNING id
), dropped AS (
    DELETE FROM assignment_group_members WHERE assignment_id IN (SELECT id FROM released)
)
SELECT id FROM released`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, eventID, groupID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("release group assignments: %w", err)
	}
	return ids, nil
}

// ListGroupMembers returns everyone held by a group assigned on the event:
// its current members plus those who left after the assignment.
func (r *AssignmentRepository) ListGroupMembers(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.GroupMembership, error) {
	const query = `SELECT a.group_id, gm.user_id
FROM assignments a
JOIN group_members gm ON gm.group_id = a.group_id
WHERE a.event_id = $1 AND a.group_id IS NOT NULL
UNION
SELECT a.group_id, h.user_id
FROM assignments a
JOIN assignment_group_members h ON h.assignment_id = a.id
WHERE a.event_id = $1 AND a.group_id IS NOT NULL
ORDER BY 1, 2`
	var members []models.GroupMembership
	if err := sqlx.SelectContext(ctx, r.exec(exec), &members, query, eventID); err != nil {
		return nil, fmt.Errorf("list assigned group members: %w", err)
	}
	return members, nil
}

func (r *AssignmentRepository) conditional(ctx context.Context, exec sqlx.ExtContext, op, query string, args ...interface{}) error {
	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return ErrStaleSlot
	}
	return nil
}
