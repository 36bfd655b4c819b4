package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/church-music-api/internal/models"
)

// ChurchRepository reads tenant settings.
type ChurchRepository struct {
	db *sqlx.DB
}

// NewChurchRepository constructs the repository.
func NewChurchRepository(db *sqlx.DB) *ChurchRepository {
	return &ChurchRepository{db: db}
}

// FindByID returns a church or sql.ErrNoRows.
func (r *ChurchRepository) FindByID(ctx context.Context, id string) (*models.Church, error) {
	const query = `SELECT id, name, timezone_offset_minutes, timezone_name, created_at, updated_at FROM churches WHERE id = $1`
	var church models.Church
	if err := r.db.GetContext(ctx, &church, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get church: %w", err)
	}
	return &church, nil
}
