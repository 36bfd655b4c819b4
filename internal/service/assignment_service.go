package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/repository"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
)

type slotEventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type slotRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Get(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error)
	ListByEvent(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.Assignment, error)
	RoleExists(ctx context.Context, eventID, roleName string) (bool, error)
	Fill(ctx context.Context, exec sqlx.ExtContext, id, userID string, status models.AssignmentStatus) error
	Release(ctx context.Context, exec sqlx.ExtContext, id, userID string) error
	Transition(ctx context.Context, exec sqlx.ExtContext, id, userID string, from, to models.AssignmentStatus) error
	FindGroupSlot(ctx context.Context, eventID, groupID, groupName string) (*models.Assignment, error)
	AttachGroup(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error
	HoldGroupMembers(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error
	ReleaseGroup(ctx context.Context, exec sqlx.ExtContext, eventID, groupID string) ([]string, error)
	ListGroupMembers(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.GroupMembership, error)
}

type groupMembershipReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListMemberships(ctx context.Context, groupIDs []string) ([]models.GroupMembership, error)
}

type musicianDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByChurch(ctx context.Context, churchID string) ([]models.User, error)
}

// SlotPolicy carries the configurable assignment rules.
type SlotPolicy struct {
	AllowMultiRole             bool
	ForbidDuplicateRoles       bool
	SignupRequiresConfirmation bool
}

// OpenSlotRequest opens a role on an event.
type OpenSlotRequest struct {
	EventID      string `json:"event_id" validate:"required"`
	RoleName     string `json:"role_name" validate:"required,max=100"`
	MaxMusicians int    `json:"max_musicians" validate:"omitempty,min=1,max=50"`
}

// AssignmentService resolves who fills which role on an event.
type AssignmentService struct {
	events    slotEventReader
	slots     slotRepository
	groups    groupMembershipReader
	users     musicianDirectory
	tx        txRunner
	cache     *CacheService
	notifier  activityEmitter
	metrics   *MetricsService
	policy    SlotPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// AssignmentServiceDeps groups the collaborators of AssignmentService.
type AssignmentServiceDeps struct {
	Events    slotEventReader
	Slots     slotRepository
	Groups    groupMembershipReader
	Users     musicianDirectory
	Tx        txRunner
	Cache     *CacheService
	Notifier  activityEmitter
	Metrics   *MetricsService
	Policy    SlotPolicy
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(deps AssignmentServiceDeps) *AssignmentService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AssignmentService{
		events:    deps.Events,
		slots:     deps.Slots,
		groups:    deps.Groups,
		users:     deps.Users,
		tx:        deps.Tx,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		policy:    deps.Policy,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// OpenSlot adds an open role to an event.
func (s *AssignmentService) OpenSlot(ctx context.Context, actor Actor, req OpenSlotRequest) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("open", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	event, err := s.event(ctx, actor, req.EventID)
	if err != nil {
		return nil, err
	}
	role := strings.TrimSpace(req.RoleName)
	if s.policy.ForbidDuplicateRoles {
		exists, err := s.slots.RoleExists(ctx, event.ID, role)
		if err != nil {
			return nil, wrapInternal(err, "failed to check existing roles")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRole, fmt.Sprintf("role %q already exists on this event", role))
		}
	}

	slot = &models.Assignment{EventID: event.ID, RoleName: role, Status: models.AssignmentPending, MaxMusicians: req.MaxMusicians}
	if err := s.slots.Create(ctx, nil, slot); err != nil {
		return nil, wrapInternal(err, "failed to open slot")
	}
	s.changed(ctx, actor, event, models.ActivitySlotOpened, slot, "")
	return slot, nil
}

// AssignIndividual puts a musician on a slot as ACCEPTED, replacing any
// previous individual holder.
func (s *AssignmentService) AssignIndividual(ctx context.Context, actor Actor, slotID, musicianID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("assign", err) }()

	slot, event, err := s.slot(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	musician, err := s.users.FindByID(ctx, musicianID)
	if err != nil || musician.ChurchID != event.ChurchID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, wrapInternal(err, "failed to load musician")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "musician not found in this church")
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lock(ctx, exec, slot)
		if err != nil {
			return err
		}
		if current.GroupID != nil {
			return appErrors.Clone(appErrors.ErrSlotOccupiedByGroup, "slot is filled by a group, remove the group first")
		}
		if current.UserID != nil && *current.UserID == musicianID {
			slot = current
			return nil
		}
		if err := s.ensureFree(ctx, exec, event.ID, musicianID, current.ID); err != nil {
			return err
		}
		if current.UserID != nil {
			if err := s.slots.Release(ctx, exec, current.ID, *current.UserID); err != nil {
				return err
			}
		}
		if err := s.slots.Fill(ctx, exec, current.ID, musicianID, models.AssignmentAccepted); err != nil {
			return err
		}
		current.UserID = &musicianID
		current.Status = models.AssignmentAccepted
		slot = current
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to assign musician")
	}

	s.changed(ctx, actor, event, models.ActivitySlotAssigned, slot, musicianID)
	return slot, nil
}

// AssignGroup fills a slot named after the group with the whole group.
// Assigning a group that is already on the event returns its slot.
func (s *AssignmentService) AssignGroup(ctx context.Context, actor Actor, eventID, groupID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("assign_group", err) }()

	event, err := s.event(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil || group.ChurchID != event.ChurchID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, wrapInternal(err, "failed to load group")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found in this church")
	}

	created := false
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.events.LockForUpdate(ctx, exec, event.ID); err != nil {
			return err
		}
		existing, err := s.slots.FindGroupSlot(ctx, event.ID, group.ID, group.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			groupRef := group.ID
			slot = &models.Assignment{EventID: event.ID, RoleName: group.Name, Status: models.AssignmentAccepted, GroupID: &groupRef}
			created = true
			if err := s.slots.Create(ctx, exec, slot); err != nil {
				return err
			}
			return s.slots.HoldGroupMembers(ctx, exec, slot.ID, group.ID)
		case err != nil:
			return err
		}
		slot = existing
		if existing.GroupID != nil && *existing.GroupID == group.ID {
			return nil
		}
		if err := s.slots.AttachGroup(ctx, exec, existing.ID, group.ID); err != nil {
			return err
		}
		if err := s.slots.HoldGroupMembers(ctx, exec, existing.ID, group.ID); err != nil {
			return err
		}
		groupRef := group.ID
		slot.GroupID = &groupRef
		slot.Status = models.AssignmentAccepted
		created = true
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to assign group")
	}

	if created {
		s.changed(ctx, actor, event, models.ActivityGroupAssigned, slot, "")
	}
	return slot, nil
}

// RemoveIndividual reopens a slot held by a musician.
func (s *AssignmentService) RemoveIndividual(ctx context.Context, actor Actor, slotID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("remove", err) }()

	slot, event, err := s.slot(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	var former string
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lock(ctx, exec, slot)
		if err != nil {
			return err
		}
		slot = current
		if current.GroupID != nil {
			return appErrors.Clone(appErrors.ErrSlotOccupiedByGroup, "slot is filled by a group, remove the group instead")
		}
		if current.UserID == nil {
			return nil
		}
		former = *current.UserID
		if err := s.slots.Release(ctx, exec, current.ID, former); err != nil {
			return err
		}
		current.UserID = nil
		current.Status = models.AssignmentPending
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to remove musician")
	}

	if former != "" {
		s.changed(ctx, actor, event, models.ActivitySlotReleased, slot, former)
	}
	return slot, nil
}

// RemoveGroup reopens every slot the group fills on the event.
func (s *AssignmentService) RemoveGroup(ctx context.Context, actor Actor, eventID, groupID string) (released []string, err error) {
	defer func() { s.metrics.RecordSlotTransition("remove_group", err) }()

	event, err := s.event(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.events.LockForUpdate(ctx, exec, event.ID); err != nil {
			return err
		}
		released, err = s.slots.ReleaseGroup(ctx, exec, event.ID, groupID)
		return err
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to remove group")
	}
	if len(released) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group is not assigned to this event")
	}

	for _, id := range released {
		s.changed(ctx, actor, event, models.ActivityGroupReleased, &models.Assignment{ID: id, EventID: event.ID, GroupID: &groupID}, "")
	}
	return released, nil
}

// Signup lets a musician take an open slot for themselves.
func (s *AssignmentService) Signup(ctx context.Context, actor Actor, slotID, musicianID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("signup", err) }()

	if musicianID == "" {
		musicianID = actor.UserID
	}
	if musicianID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "musicians can only sign themselves up")
	}
	slot, event, err := s.slot(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	status := models.AssignmentAccepted
	if s.policy.SignupRequiresConfirmation {
		status = models.AssignmentPending
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lock(ctx, exec, slot)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return appErrors.Clone(appErrors.ErrSlotNotOpen, "slot is already filled")
		}
		if err := s.ensureFree(ctx, exec, event.ID, musicianID, current.ID); err != nil {
			return err
		}
		if err := s.slots.Fill(ctx, exec, current.ID, musicianID, status); err != nil {
			return err
		}
		current.UserID = &musicianID
		current.Status = status
		slot = current
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrSlotNotOpen, "failed to sign up")
	}

	s.changed(ctx, actor, event, models.ActivitySlotSignup, slot, "")
	return slot, nil
}

// Accept confirms a pending slot. Accepting an accepted slot is a no-op.
func (s *AssignmentService) Accept(ctx context.Context, actor Actor, slotID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("accept", err) }()

	slot, event, err := s.slot(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	changed := false
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lock(ctx, exec, slot)
		if err != nil {
			return err
		}
		slot = current
		if current.UserID == nil {
			return appErrors.Clone(appErrors.ErrSlotNotOpen, "slot has no musician to accept")
		}
		if err := s.mayRespond(actor, current); err != nil {
			return err
		}
		if current.Status == models.AssignmentAccepted {
			return nil
		}
		if err := s.slots.Transition(ctx, exec, current.ID, *current.UserID, current.Status, models.AssignmentAccepted); err != nil {
			return err
		}
		current.Status = models.AssignmentAccepted
		changed = true
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to accept slot")
	}

	if changed {
		s.changed(ctx, actor, event, models.ActivitySlotAccepted, slot, "")
	}
	return slot, nil
}

// Decline releases the holder and reopens the slot. Declining an open slot
// is a no-op.
func (s *AssignmentService) Decline(ctx context.Context, actor Actor, slotID string) (slot *models.Assignment, err error) {
	defer func() { s.metrics.RecordSlotTransition("decline", err) }()

	slot, event, err := s.slot(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	var former string
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lock(ctx, exec, slot)
		if err != nil {
			return err
		}
		slot = current
		if current.GroupID != nil {
			return appErrors.Clone(appErrors.ErrSlotOccupiedByGroup, "group slots are released by removing the group")
		}
		if current.UserID == nil {
			return nil
		}
		if err := s.mayRespond(actor, current); err != nil {
			return err
		}
		former = *current.UserID
		if err := s.slots.Release(ctx, exec, current.ID, former); err != nil {
			return err
		}
		current.UserID = nil
		current.Status = models.AssignmentPending
		return nil
	})
	if err != nil {
		return nil, slotError(err, appErrors.ErrConcurrentModified, "failed to decline slot")
	}

	if former != "" {
		s.changed(ctx, actor, event, models.ActivitySlotDeclined, slot, "")
	}
	return slot, nil
}

// Occupancy returns every musician filling a role on the event, individual
// holders first taking precedence over group membership.
func (s *AssignmentService) Occupancy(ctx context.Context, actor Actor, eventID string) ([]models.Occupant, error) {
	event, err := s.event(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.occupancy(ctx, nil, event.ID)
	if err != nil {
		return nil, err
	}
	occupants := make([]models.Occupant, 0, len(occupied))
	for _, occupant := range occupied {
		occupants = append(occupants, occupant)
	}
	sort.Slice(occupants, func(i, j int) bool { return occupants[i].UserID < occupants[j].UserID })
	return occupants, nil
}

// EligibleIndividuals lists church musicians free to take a role on the
// event. Members of pendingGroupIDs are excluded as well, so a caller
// staging group assignments sees the list it will have once they apply.
func (s *AssignmentService) EligibleIndividuals(ctx context.Context, actor Actor, eventID string, pendingGroupIDs []string) ([]models.UserSummary, error) {
	event, err := s.event(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.occupancy(ctx, nil, event.ID)
	if err != nil {
		return nil, err
	}

	overlay := map[string]struct{}{}
	pending := make([]string, 0, len(pendingGroupIDs))
	for _, id := range pendingGroupIDs {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		group, err := s.groups.FindByID(ctx, id)
		if err != nil || group.ChurchID != event.ChurchID {
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, wrapInternal(err, "failed to load pending group")
			}
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("pending group %s not found in this church", id))
		}
		pending = append(pending, group.ID)
	}
	if len(pending) > 0 {
		memberships, err := s.groups.ListMemberships(ctx, pending)
		if err != nil {
			return nil, wrapInternal(err, "failed to load pending group members")
		}
		for _, m := range memberships {
			overlay[m.UserID] = struct{}{}
		}
	}

	users, err := s.users.ListByChurch(ctx, event.ChurchID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list musicians")
	}
	eligible := make([]models.UserSummary, 0, len(users))
	for _, user := range users {
		if _, busy := occupied[user.ID]; busy {
			continue
		}
		if _, staged := overlay[user.ID]; staged {
			continue
		}
		eligible = append(eligible, user.Summary())
	}
	return eligible, nil
}

// occupancy builds the authoritative occupied set of an event. Inside a
// transaction exec must be the transaction so the reads share its connection.
func (s *AssignmentService) occupancy(ctx context.Context, exec sqlx.ExtContext, eventID string) (map[string]models.Occupant, error) {
	slots, err := s.slots.ListByEvent(ctx, exec, eventID)
	if err != nil {
		return nil, wrapInternal(err, "failed to load event slots")
	}
	occupied := make(map[string]models.Occupant)
	groupSlots := make(map[string]string)
	for _, slot := range slots {
		if slot.GroupID != nil {
			groupSlots[*slot.GroupID] = slot.ID
		}
		if slot.UserID == nil {
			continue
		}
		if _, ok := occupied[*slot.UserID]; ok {
			continue
		}
		occupied[*slot.UserID] = models.Occupant{UserID: *slot.UserID, Source: models.OccupiedIndividually, AssignmentID: slot.ID}
	}
	if len(groupSlots) == 0 {
		return occupied, nil
	}

	members, err := s.slots.ListGroupMembers(ctx, exec, eventID)
	if err != nil {
		return nil, wrapInternal(err, "failed to load assigned group members")
	}
	for _, m := range members {
		if _, ok := occupied[m.UserID]; ok {
			continue
		}
		groupID := m.GroupID
		occupied[m.UserID] = models.Occupant{UserID: m.UserID, Source: models.OccupiedViaGroup, AssignmentID: groupSlots[groupID], GroupID: &groupID}
	}
	return occupied, nil
}

// ensureFree rejects a musician who already fills another role on the event.
func (s *AssignmentService) ensureFree(ctx context.Context, exec sqlx.ExtContext, eventID, musicianID, slotID string) error {
	if s.policy.AllowMultiRole {
		return nil
	}
	occupied, err := s.occupancy(ctx, exec, eventID)
	if err != nil {
		return err
	}
	occupant, ok := occupied[musicianID]
	if !ok || (occupant.Source == models.OccupiedIndividually && occupant.AssignmentID == slotID) {
		return nil
	}
	if occupant.Source == models.OccupiedViaGroup {
		return appErrors.Clone(appErrors.ErrMusicianAlreadyAssigned, "musician already plays on this event with an assigned group")
	}
	return appErrors.Clone(appErrors.ErrMusicianAlreadyAssigned, "musician already fills another role on this event")
}

func (s *AssignmentService) mayRespond(actor Actor, slot *models.Assignment) error {
	if slot.UserID != nil && *slot.UserID == actor.UserID {
		return nil
	}
	if actor.Role.IsLeadership() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the assigned musician or leadership can respond to this slot")
}

func (s *AssignmentService) event(ctx context.Context, actor Actor, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "event")
	}
	if event.ChurchID != actor.ChurchID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

func (s *AssignmentService) slot(ctx context.Context, actor Actor, id string) (*models.Assignment, *models.Event, error) {
	slot, err := s.slots.FindByID(ctx, id)
	if err != nil {
		return nil, nil, lookupError(err, "assignment")
	}
	event, err := s.event(ctx, actor, slot.EventID)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, nil, err
	}
	return slot, event, nil
}

// lock serializes mutations on the slot's event and re-reads the slot.
func (s *AssignmentService) lock(ctx context.Context, exec sqlx.ExtContext, slot *models.Assignment) (*models.Assignment, error) {
	if err := s.events.LockForUpdate(ctx, exec, slot.EventID); err != nil {
		return nil, err
	}
	current, err := s.slots.Get(ctx, exec, slot.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, err
	}
	return current, nil
}

func (s *AssignmentService) changed(ctx context.Context, actor Actor, event *models.Event, action string, slot *models.Assignment, notify string) {
	s.cache.InvalidateChurchEvents(ctx, event.ChurchID)
	if s.notifier == nil {
		return
	}
	activity := Activity{
		ChurchID:   event.ChurchID,
		ActorID:    actor.UserID,
		Action:     action,
		Resource:   "assignment",
		ResourceID: slot.ID,
		Payload:    map[string]interface{}{"event_id": event.ID, "role_name": slot.RoleName, "status": string(slot.Status)},
	}
	if slot.UserID != nil {
		activity.Payload["user_id"] = *slot.UserID
	}
	if slot.GroupID != nil {
		activity.Payload["group_id"] = *slot.GroupID
	}
	if notify != "" && notify != actor.UserID {
		local := event.StartAt.Format("2006-01-02 15:04 MST")
		activity.NotifyUserID = notify
		switch action {
		case models.ActivitySlotAssigned:
			activity.Subject = fmt.Sprintf("You are scheduled for %s", event.Name)
			activity.Body = fmt.Sprintf("You have been assigned the %s role for %s (%s).", slot.RoleName, event.Name, local)
		case models.ActivitySlotReleased:
			activity.Subject = fmt.Sprintf("Schedule change for %s", event.Name)
			activity.Body = fmt.Sprintf("You are no longer scheduled as %s for %s (%s).", slot.RoleName, event.Name, local)
		}
	}
	s.notifier.Emit(ctx, activity)
}

// slotError maps a failed slot transaction. A stale compare-and-swap
// becomes onStale; domain errors pass through.
func slotError(err error, onStale *appErrors.Error, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrStaleSlot) {
		return appErrors.Clone(onStale, "")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return txError(err, message)
}
