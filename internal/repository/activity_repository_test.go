package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
)

func TestActivityRepositoryCreateAndList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	entry := &models.ActivityLog{ChurchID: "church-1", Action: models.ActivitySlotAssigned, Resource: "assignment", Payload: json.RawMessage(`{"role":"Piano"}`)}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_logs WHERE church_id = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("church-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "church_id", "actor_id", "action", "resource", "resource_id", "payload", "created_at"}).
			AddRow("log-1", "church-1", nil, models.ActivitySlotAssigned, "assignment", "slot-1", []byte(`{}`), time.Now()))
	entries, err := repo.ListByChurch(context.Background(), "church-1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string
	assert.ErrorIs(t, repo.Get(context.Background(), "events:church-1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "events:church-1", map[string]string{"a": "b"}, time.Minute))

	ok, err := repo.Reserve(context.Background(), "invite:church-1:a@example.org", "batch#0", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, repo.ReleaseReservation(context.Background(), "invite:church-1:a@example.org", "batch#0"))
}
