package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-music-api/internal/models"
)

func TestInvitationRepositoryCreateMapsPendingCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invitations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: PendingInvitationIndex})
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	err = repo.Create(context.Background(), tx, &models.Invitation{Email: "a@example.org", ChurchID: "church-1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrPendingInvitationExists)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryFindPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1) AND church_id = $2 AND status = 'PENDING'")).
		WithArgs("A@example.org", "church-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "phone", "church_id", "invited_by", "user_id", "token", "expires_at", "status", "created_at", "updated_at"}).
			AddRow("inv-1", "a@example.org", "Ada", "Lovelace", nil, "church-1", "director-1", "user-1", "tok", now.Add(time.Hour), "PENDING", now, now))

	inv, err := repo.FindPending(context.Background(), "A@example.org", "church-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)
	assert.False(t, inv.IsExpired(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryUpdateStatusRequiresPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations SET status = $2")).
		WithArgs("inv-1", models.InvitationAccepted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, "inv-1", models.InvitationAccepted)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryExpireStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations SET status = 'EXPIRED'")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
