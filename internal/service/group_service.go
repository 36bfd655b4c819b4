package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/pkg/database"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
)

type groupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListByChurch(ctx context.Context, churchID string) ([]models.Group, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	ListMembers(ctx context.Context, groupID string) ([]models.UserSummary, error)
}

type memberLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateGroupRequest captures fields for creating a group.
type CreateGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	MemberIDs   []string `json:"member_ids" validate:"omitempty,dive,required"`
}

// AddGroupMemberRequest adds one musician to a group.
type AddGroupMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// GroupService manages musician groups within a church.
type GroupService struct {
	groups    groupRepository
	users     memberLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService creates a group service.
func NewGroupService(groups groupRepository, users memberLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{groups: groups, users: users, cache: cache, validator: validate, logger: logger}
}

// List returns the church's groups.
func (s *GroupService) List(ctx context.Context, actor Actor) ([]models.Group, error) {
	groups, err := s.groups.ListByChurch(ctx, actor.ChurchID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list groups")
	}
	return groups, nil
}

// Get returns a group with its members.
func (s *GroupService) Get(ctx context.Context, actor Actor, id string) (*models.GroupDetail, error) {
	group, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	members, err := s.groups.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list group members")
	}
	if members == nil {
		members = []models.UserSummary{}
	}
	return &models.GroupDetail{Group: *group, Members: members}, nil
}

// Create adds a group and its initial members. Group names are unique per church.
func (s *GroupService) Create(ctx context.Context, actor Actor, req CreateGroupRequest) (*models.GroupDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	for _, userID := range req.MemberIDs {
		if err := s.checkMember(ctx, actor, userID); err != nil {
			return nil, err
		}
	}

	group := &models.Group{ChurchID: actor.ChurchID, Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := s.groups.Create(ctx, group); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a group with this name already exists")
		}
		return nil, wrapInternal(err, "failed to create group")
	}
	for _, userID := range req.MemberIDs {
		if err := s.groups.AddMember(ctx, group.ID, userID); err != nil {
			return nil, wrapInternal(err, "failed to add group member")
		}
	}
	s.logger.Info("group created", zap.String("group_id", group.ID), zap.Int("members", len(req.MemberIDs)))
	return s.Get(ctx, actor, group.ID)
}

// Delete removes a group, its memberships and any slots it holds. Members
// are kept.
func (s *GroupService) Delete(ctx context.Context, actor Actor, id string) error {
	group, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.groups.Delete(ctx, group.ID); err != nil {
		return lookupError(err, "group")
	}
	s.cache.InvalidateChurchEvents(ctx, actor.ChurchID)
	return nil
}

// AddMember links a musician of the same church to the group.
func (s *GroupService) AddMember(ctx context.Context, actor Actor, groupID string, req AddGroupMemberRequest) (*models.GroupDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	group, err := s.owned(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMember(ctx, actor, req.UserID); err != nil {
		return nil, err
	}
	if err := s.groups.AddMember(ctx, group.ID, req.UserID); err != nil {
		return nil, wrapInternal(err, "failed to add group member")
	}
	s.cache.InvalidateChurchEvents(ctx, actor.ChurchID)
	return s.Get(ctx, actor, group.ID)
}

// RemoveMember unlinks a musician from the group.
func (s *GroupService) RemoveMember(ctx context.Context, actor Actor, groupID, userID string) error {
	group, err := s.owned(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if err := s.groups.RemoveMember(ctx, group.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "musician is not a member of this group")
		}
		return wrapInternal(err, "failed to remove group member")
	}
	s.cache.InvalidateChurchEvents(ctx, actor.ChurchID)
	return nil
}

func (s *GroupService) owned(ctx context.Context, actor Actor, id string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "group")
	}
	if group.ChurchID != actor.ChurchID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	return group, nil
}

func (s *GroupService) checkMember(ctx context.Context, actor Actor, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "musician not found in this church")
		}
		return wrapInternal(err, "failed to load musician")
	}
	if user.ChurchID != actor.ChurchID {
		return appErrors.Clone(appErrors.ErrNotFound, "musician not found in this church")
	}
	return nil
}
