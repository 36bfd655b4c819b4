package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/pkg/database"
)

// PendingInvitationIndex is the partial unique index allowing one PENDING
// invitation per (lower(email), church_id).
const PendingInvitationIndex = "invitations_pending_email_church_idx"

// ErrPendingInvitationExists reports a PENDING invitation for the same email
// and church was committed first.
var ErrPendingInvitationExists = errors.New("pending invitation already exists")

const invitationColumns = `id, email, first_name, last_name, phone, church_id, invited_by, user_id, token, expires_at, status, created_at, updated_at`

// InvitationRepository persists musician invitations.
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository constructs the repository.
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an invitation. A collision on the pending index maps to
// ErrPendingInvitationExists.
func (r *InvitationRepository) Create(ctx context.Context, exec sqlx.ExtContext, invitation *models.Invitation) error {
	if invitation.ID == "" {
		invitation.ID = uuid.NewString()
	}
	if invitation.Status == "" {
		invitation.Status = models.InvitationPending
	}
	now := time.Now().UTC()
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = now
	}
	invitation.UpdatedAt = now

	const query = `INSERT INTO invitations (id, email, first_name, last_name, phone, church_id, invited_by, user_id, token, expires_at, status, created_at, updated_at)
VALUES (:id, :email, :first_name, :last_name, :phone, :church_id, :invited_by, :user_id, :token, :expires_at, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, invitation); err != nil {
		if database.IsUniqueViolation(err, PendingInvitationIndex) {
			return ErrPendingInvitationExists
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// FindPending returns the PENDING invitation for email and church, expired or
// not, or sql.ErrNoRows.
func (r *InvitationRepository) FindPending(ctx context.Context, email, churchID string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
WHERE lower(email) = lower($1) AND church_id = $2 AND status = 'PENDING' LIMIT 1`
	return r.get(ctx, "find pending invitation", query, email, churchID)
}

// FindByToken returns the invitation carrying token.
func (r *InvitationRepository) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1 LIMIT 1`
	return r.get(ctx, "find invitation by token", query, token)
}

// FindByID returns an invitation by identifier.
func (r *InvitationRepository) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return r.get(ctx, "get invitation", query, id)
}

// ListByChurch returns invitations newest first, optionally by status.
func (r *InvitationRepository) ListByChurch(ctx context.Context, churchID string, status *models.InvitationStatus) ([]models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE church_id = $1`
	args := []interface{}{churchID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`
	var invitations []models.Invitation
	if err := r.db.SelectContext(ctx, &invitations, query, args...); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// UpdateStatus moves a PENDING invitation to status.
func (r *InvitationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.InvitationStatus) error {
	const query = `UPDATE invitations SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check invitation rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Refresh replaces the token and expiry of a PENDING invitation.
func (r *InvitationRepository) Refresh(ctx context.Context, exec sqlx.ExtContext, id, token string, expiresAt time.Time) error {
	const query = `UPDATE invitations SET token = $2, expires_at = $3, updated_at = $4 WHERE id = $1 AND status = 'PENDING'`
	result, err := r.exec(exec).ExecContext(ctx, query, id, token, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("refresh invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check invitation rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExpireStale marks every PENDING invitation past its expiry as EXPIRED.
func (r *InvitationRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	const query = `UPDATE invitations SET status = 'EXPIRED', updated_at = $1 WHERE status = 'PENDING' AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check expired invitation rows: %w", err)
	}
	return int(affected), nil
}

func (r *InvitationRepository) get(ctx context.Context, op, query string, args ...interface{}) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := r.db.GetContext(ctx, &invitation, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &invitation, nil
}
