package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/repository"
)

// memDB backs the repository stubs used by service tests.
type memDB struct {
	mu          sync.Mutex
	seq         int
	churches    map[string]*models.Church
	events      map[string]*models.Event
	slots       map[string]*models.Assignment
	users       map[string]*models.User
	groups      map[string]*models.Group
	members     map[string][]string
	held        map[string][]string
	invitations map[string]*models.Invitation
	locked      []string
}

func newMemDB() *memDB {
	return &memDB{
		churches:    map[string]*models.Church{},
		events:      map[string]*models.Event{},
		slots:       map[string]*models.Assignment{},
		users:       map[string]*models.User{},
		groups:      map[string]*models.Group{},
		members:     map[string][]string{},
		held:        map[string][]string{},
		invitations: map[string]*models.Invitation{},
	}
}

func (m *memDB) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memDB) addChurch(id string, offset int) {
	m.churches[id] = &models.Church{ID: id, Name: id, TimezoneOffsetMinutes: offset}
}

func (m *memDB) addUser(id, churchID string, role models.UserRole) {
	m.users[id] = &models.User{ID: id, ChurchID: churchID, Email: id + "@example.org", FirstName: id, Role: role, IsVerified: true}
}

// hold records userID as a holder of the group slot. Callers hold mu.
func (m *memDB) hold(slotID, userID string) {
	for _, existing := range m.held[slotID] {
		if existing == userID {
			return
		}
	}
	m.held[slotID] = append(m.held[slotID], userID)
}

func (m *memDB) addGroup(id, churchID, name string, members ...string) {
	m.groups[id] = &models.Group{ID: id, ChurchID: churchID, Name: name}
	m.members[id] = members
}

// memTx runs units of work one at a time, standing in for the event row lock.
// When db is set, users and invitations are restored if the work fails.
type memTx struct {
	mu    sync.Mutex
	db    *memDB
	calls int
	err   error
}

func (t *memTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return t.err
	}
	if t.db == nil {
		return fn(nil)
	}
	users, invitations := t.db.snapshot()
	if err := fn(nil); err != nil {
		t.db.restore(users, invitations)
		return err
	}
	return nil
}

func (m *memDB) snapshot() (map[string]*models.User, map[string]*models.Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make(map[string]*models.User, len(m.users))
	for id, u := range m.users {
		cp := *u
		users[id] = &cp
	}
	invitations := make(map[string]*models.Invitation, len(m.invitations))
	for id, inv := range m.invitations {
		cp := *inv
		invitations[id] = &cp
	}
	return users, invitations
}

func (m *memDB) restore(users map[string]*models.User, invitations map[string]*models.Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
	m.invitations = invitations
}

func (t *memTx) Ping(ctx context.Context) error { return t.err }

type memChurches struct{ db *memDB }

func (r memChurches) FindByID(ctx context.Context, id string) (*models.Church, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	church, ok := r.db.churches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *church
	return &cp, nil
}

type memEvents struct{ db *memDB }

func (r memEvents) Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if event.ID == "" {
		event.ID = r.db.nextID("event")
	}
	if event.Status == "" {
		event.Status = models.EventStatusConfirmed
	}
	cp := *event
	r.db.events[event.ID] = &cp
	return nil
}

func (r memEvents) FindByID(ctx context.Context, id string) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	event, ok := r.db.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *event
	return &cp, nil
}

func (r memEvents) List(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var events []models.Event
	for _, e := range r.db.events {
		if e.ChurchID != filter.ChurchID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.StartAt != nil && e.StartAt.Before(*filter.StartAt) {
			continue
		}
		if filter.EndAt != nil && e.StartAt.After(*filter.EndAt) {
			continue
		}
		events = append(events, *e)
	}
	sortEvents(events)
	return events, nil
}

func (r memEvents) Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.events[event.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *event
	r.db.events[event.ID] = &cp
	return nil
}

func (r memEvents) ListSeries(ctx context.Context, seriesID string) ([]models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.series(seriesID), nil
}

func (r memEvents) CountChildren(ctx context.Context, exec sqlx.ExtContext, parentID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for _, e := range r.db.events {
		if e.ParentEventID != nil && *e.ParentEventID == parentID {
			count++
		}
	}
	return count, nil
}

func (r memEvents) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := r.db.events[id]; !ok {
			continue
		}
		delete(r.db.events, id)
		deleted++
		for _, e := range r.db.events {
			if e.ParentEventID != nil && *e.ParentEventID == id {
				e.ParentEventID = nil
			}
		}
		for slotID, slot := range r.db.slots {
			if slot.EventID == id {
				delete(r.db.slots, slotID)
			}
		}
	}
	return deleted, nil
}

func (r memEvents) ListOpenEndedSeeds(ctx context.Context) ([]models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var seeds []models.Event
	for _, e := range r.db.events {
		if e.IsSeed() && e.RecurrenceEnd == nil {
			seeds = append(seeds, *e)
		}
	}
	sortEvents(seeds)
	return seeds, nil
}

func (r memEvents) SeriesTail(ctx context.Context, seedID string, after time.Time) (time.Time, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	series := r.db.series(seedID)
	if len(series) == 0 {
		return time.Time{}, 0, sql.ErrNoRows
	}
	upcoming := 0
	for _, e := range series {
		if e.StartAt.After(after) {
			upcoming++
		}
	}
	return series[len(series)-1].StartAt, upcoming, nil
}

func (r memEvents) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.events[id]; !ok {
		return sql.ErrNoRows
	}
	r.db.locked = append(r.db.locked, id)
	return nil
}

func (m *memDB) series(seriesID string) []models.Event {
	var events []models.Event
	for _, e := range m.events {
		if e.ID == seriesID || (e.ParentEventID != nil && *e.ParentEventID == seriesID) {
			events = append(events, *e)
		}
	}
	sortEvents(events)
	return events
}

func sortEvents(events []models.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
}

type memSlots struct{ db *memDB }

func (r memSlots) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if slot.ID == "" {
		slot.ID = r.db.nextID("slot")
	}
	if slot.Status == "" {
		slot.Status = models.AssignmentPending
	}
	if slot.MaxMusicians <= 0 {
		slot.MaxMusicians = 1
	}
	slot.CreatedAt = time.Unix(int64(r.db.seq), 0)
	cp := *slot
	r.db.slots[slot.ID] = &cp
	return nil
}

func (r memSlots) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot, ok := r.db.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *slot
	return &cp, nil
}

func (r memSlots) Get(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	return r.FindByID(ctx, id)
}

func (r memSlots) ListByEvent(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.eventSlots(eventID), nil
}

func (r memSlots) ListDetailsByEvents(ctx context.Context, eventIDs []string) ([]models.AssignmentDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var details []models.AssignmentDetail
	for _, id := range eventIDs {
		for _, slot := range r.db.eventSlots(id) {
			detail := models.AssignmentDetail{Assignment: slot}
			if slot.UserID != nil {
				if user, ok := r.db.users[*slot.UserID]; ok {
					summary := user.Summary()
					detail.User = &summary
				}
			}
			if slot.GroupID != nil {
				if group, ok := r.db.groups[*slot.GroupID]; ok {
					detail.Group = &models.GroupSummary{ID: group.ID, Name: group.Name}
				}
			}
			details = append(details, detail)
		}
	}
	return details, nil
}

func (r memSlots) RoleExists(ctx context.Context, eventID, roleName string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, slot := range r.db.eventSlots(eventID) {
		if strings.EqualFold(slot.RoleName, roleName) {
			return true, nil
		}
	}
	return false, nil
}

func (r memSlots) Fill(ctx context.Context, exec sqlx.ExtContext, id, userID string, status models.AssignmentStatus) error {
	return r.update(id, func(slot *models.Assignment) bool {
		if !slot.IsOpen() {
			return false
		}
		slot.UserID = &userID
		slot.Status = status
		return true
	})
}

func (r memSlots) Release(ctx context.Context, exec sqlx.ExtContext, id, userID string) error {
	return r.update(id, func(slot *models.Assignment) bool {
		if slot.UserID == nil || *slot.UserID != userID {
			return false
		}
		slot.UserID = nil
		slot.Status = models.AssignmentPending
		return true
	})
}

func (r memSlots) Transition(ctx context.Context, exec sqlx.ExtContext, id, userID string, from, to models.AssignmentStatus) error {
	return r.update(id, func(slot *models.Assignment) bool {
		if slot.UserID == nil || *slot.UserID != userID || slot.Status != from {
			return false
		}
		slot.Status = to
		return true
	})
}

func (r memSlots) FindGroupSlot(ctx context.Context, eventID, groupID, groupName string) (*models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var open *models.Assignment
	for _, slot := range r.db.eventSlots(eventID) {
		slot := slot
		if slot.GroupID != nil && *slot.GroupID == groupID {
			return &slot, nil
		}
		if open == nil && slot.IsOpen() && slot.RoleName == groupName {
			open = &slot
		}
	}
	if open == nil {
		return nil, sql.ErrNoRows
	}
	return open, nil
}

func (r memSlots) AttachGroup(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error {
	return r.update(id, func(slot *models.Assignment) bool {
		if !slot.IsOpen() {
			return false
		}
		slot.GroupID = &groupID
		slot.Status = models.AssignmentAccepted
		return true
	})
}

func (r memSlots) ReleaseGroup(ctx context.Context, exec sqlx.ExtContext, eventID, groupID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []string
	for _, slot := range r.db.slots {
		if slot.EventID == eventID && slot.GroupID != nil && *slot.GroupID == groupID {
			slot.GroupID = nil
			slot.Status = models.AssignmentPending
			delete(r.db.held, slot.ID)
			ids = append(ids, slot.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memSlots) HoldGroupMembers(ctx context.Context, exec sqlx.ExtContext, id, groupID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, userID := range r.db.members[groupID] {
		r.db.hold(id, userID)
	}
	return nil
}

func (r memSlots) ListGroupMembers(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.GroupMembership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var members []models.GroupMembership
	for _, slot := range r.db.eventSlots(eventID) {
		if slot.GroupID == nil {
			continue
		}
		seen := map[string]bool{}
		for _, userID := range append(append([]string{}, r.db.members[*slot.GroupID]...), r.db.held[slot.ID]...) {
			if seen[userID] {
				continue
			}
			seen[userID] = true
			members = append(members, models.GroupMembership{GroupID: *slot.GroupID, UserID: userID})
		}
	}
	return members, nil
}

func (r memSlots) update(id string, apply func(*models.Assignment) bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	slot, ok := r.db.slots[id]
	if !ok || !apply(slot) {
		return repository.ErrStaleSlot
	}
	return nil
}

func (m *memDB) eventSlots(eventID string) []models.Assignment {
	var slots []models.Assignment
	for _, slot := range m.slots {
		if slot.EventID == eventID {
			slots = append(slots, *slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].CreatedAt.Before(slots[j].CreatedAt) })
	return slots
}

type memUsers struct{ db *memDB }

func (r memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (r memUsers) ListByChurch(ctx context.Context, churchID string) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var users []models.User
	for _, u := range r.db.users {
		if u.ChurchID == churchID {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

type memGroups struct{ db *memDB }

func (r memGroups) FindByID(ctx context.Context, id string) (*models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	group, ok := r.db.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *group
	return &cp, nil
}

func (r memGroups) ListMemberships(ctx context.Context, groupIDs []string) ([]models.GroupMembership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var memberships []models.GroupMembership
	for _, id := range groupIDs {
		for _, userID := range r.db.members[id] {
			memberships = append(memberships, models.GroupMembership{GroupID: id, UserID: userID})
		}
	}
	return memberships, nil
}

// recordingEmitter captures emitted activities.
type recordingEmitter struct {
	mu         sync.Mutex
	activities []Activity
}

func (e *recordingEmitter) Emit(ctx context.Context, activity Activity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activities = append(e.activities, activity)
}

func (e *recordingEmitter) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	actions := make([]string, len(e.activities))
	for i, a := range e.activities {
		actions[i] = a.Action
	}
	return actions
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
