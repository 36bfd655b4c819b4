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

// GroupRepository persists musician groups and their membership.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	const query = `INSERT INTO groups (id, church_id, name, description, created_at, updated_at)
VALUES (:id, :church_id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// FindByID returns a group or sql.ErrNoRows.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	const query = `SELECT id, church_id, name, description, created_at, updated_at FROM groups WHERE id = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &group, nil
}

// ListByChurch returns the church's groups by name.
func (r *GroupRepository) ListByChurch(ctx context.Context, churchID string) ([]models.Group, error) {
	const query = `SELECT id, church_id, name, description, created_at, updated_at FROM groups WHERE church_id = $1 ORDER BY name ASC`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, churchID); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Delete removes a group. Memberships and group-held slots cascade.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM groups WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted group rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddMember links a user to a group. Re-adding is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	const query = `INSERT INTO group_members (group_id, user_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (group_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember unlinks a user from a group. Slots the group currently fills
// keep holding the user until the group is released from them.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	const query = `WITH held AS (
    INSERT INTO assignment_group_members (assignment_id, group_id, user_id, created_at)
    SELECT a.id, a.group_id, gm.user_id, $3
    FROM assignments a
    JOIN group_members gm ON gm.group_id = a.group_id AND gm.user_id = $2
    WHERE a.group_id = $1
    ON CONFLICT (assignment_id, user_id) DO NOTHING
)
DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check removed member rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMembers returns a group's members.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.first_name, u.last_name, u.email
FROM group_members gm JOIN users u ON u.id = gm.user_id
WHERE gm.group_id = $1 ORDER BY u.last_name ASC, u.first_name ASC`
	var members []models.UserSummary
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// ListMemberships returns every (group, member) pair for the given groups.
func (r *GroupRepository) ListMemberships(ctx context.Context, groupIDs []string) ([]models.GroupMembership, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT group_id, user_id FROM group_members WHERE group_id = ANY($1) ORDER BY group_id, user_id`
	var memberships []models.GroupMembership
	if err := r.db.SelectContext(ctx, &memberships, query, pq.Array(groupIDs)); err != nil {
		return nil, fmt.Errorf("list group memberships: %w", err)
	}
	return memberships, nil
}
