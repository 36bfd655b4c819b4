package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
)

type musicianRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// MusicianService is the church member directory.
type MusicianService struct {
	users  musicianRepository
	logger *zap.Logger
}

// NewMusicianService constructs the service.
func NewMusicianService(users musicianRepository, logger *zap.Logger) *MusicianService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MusicianService{users: users, logger: logger}
}

// List returns the actor's church members. The filter's church is always
// replaced by the actor's.
func (s *MusicianService) List(ctx context.Context, actor Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.ChurchID = actor.ChurchID
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, wrapInternal(err, "failed to list musicians")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if users == nil {
		users = []models.User{}
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one member of the actor's church.
func (s *MusicianService) Get(ctx context.Context, actor Actor, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "musician not found in this church")
		}
		return nil, wrapInternal(err, "failed to load musician")
	}
	if user.ChurchID != actor.ChurchID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "musician not found in this church")
	}
	return user, nil
}
