package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/repository"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
)

type slotFixture struct {
	db       *memDB
	emitter  *recordingEmitter
	svc      *AssignmentService
	director Actor
	eventID  string
}

func newSlotFixture(t *testing.T, policy SlotPolicy) *slotFixture {
	t.Helper()
	db := newMemDB()
	db.addChurch("church-1", 0)
	db.addChurch("church-2", 0)
	db.addUser("director", "church-1", models.RoleDirector)
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		db.addUser(id, "church-1", models.RoleMusician)
	}
	db.addUser("outsider", "church-2", models.RoleMusician)
	db.addGroup("choir", "church-1", "Choir", "m2", "m3")
	db.addGroup("band", "church-1", "Band", "m3", "m4")
	db.addGroup("foreign", "church-2", "Visitors", "outsider")
	db.events["event-1"] = &models.Event{ID: "event-1", ChurchID: "church-1", Name: "Sunday Service", StartAt: time.Date(2024, 1, 7, 15, 0, 0, 0, time.UTC)}

	fx := &slotFixture{
		db:       db,
		emitter:  &recordingEmitter{},
		director: Actor{UserID: "director", ChurchID: "church-1", Role: models.RoleDirector},
		eventID:  "event-1",
	}
	fx.svc = NewAssignmentService(AssignmentServiceDeps{
		Events:   memEvents{db},
		Slots:    memSlots{db},
		Groups:   memGroups{db},
		Users:    memUsers{db},
		Tx:       &memTx{},
		Notifier: fx.emitter,
		Policy:   policy,
	})
	return fx
}

func (fx *slotFixture) open(t *testing.T, role string) *models.Assignment {
	t.Helper()
	slot, err := fx.svc.OpenSlot(context.Background(), fx.director, OpenSlotRequest{EventID: fx.eventID, RoleName: role})
	require.NoError(t, err)
	return slot
}

func musician(id string) Actor {
	return Actor{UserID: id, ChurchID: "church-1", Role: models.RoleMusician}
}

func eligibleIDs(users []models.UserSummary) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func TestAssignmentServiceOpenSlot(t *testing.T) {
	fx := newSlotFixture(t, SlotPolicy{})
	slot := fx.open(t, "Piano")
	assert.True(t, slot.IsOpen())
	assert.Equal(t, models.AssignmentPending, slot.Status)

	_, err := fx.svc.OpenSlot(context.Background(), fx.director, OpenSlotRequest{EventID: fx.eventID, RoleName: "piano"})
	require.NoError(t, err, "duplicate roles are allowed by default")

	strict := newSlotFixture(t, SlotPolicy{ForbidDuplicateRoles: true})
	strict.open(t, "Piano")
	_, err = strict.svc.OpenSlot(context.Background(), strict.director, OpenSlotRequest{EventID: strict.eventID, RoleName: "piano"})
	assert.Equal(t, appErrors.ErrDuplicateRole.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.OpenSlot(context.Background(), Actor{ChurchID: "church-2"}, OpenSlotRequest{EventID: fx.eventID, RoleName: "Bass"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.OpenSlot(context.Background(), fx.director, OpenSlotRequest{EventID: fx.eventID})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceAssignIndividual(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	piano := fx.open(t, "Piano")

	slot, err := fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, slot.UserID)
	assert.Equal(t, "m1", *slot.UserID)
	assert.Equal(t, models.AssignmentAccepted, slot.Status)

	last := fx.emitter.activities[len(fx.emitter.activities)-1]
	assert.Equal(t, models.ActivitySlotAssigned, last.Action)
	assert.Equal(t, "m1", last.NotifyUserID)

	slot, err = fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m5")
	require.NoError(t, err)
	assert.Equal(t, "m5", *slot.UserID)

	_, err = fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "outsider")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceOneRolePerEvent(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	piano := fx.open(t, "Piano")
	drums := fx.open(t, "Drums")

	_, err := fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m1")
	require.NoError(t, err)
	_, err = fx.svc.AssignIndividual(ctx, fx.director, drums.ID, "m1")
	assert.Equal(t, appErrors.ErrMusicianAlreadyAssigned.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	_, err = fx.svc.AssignIndividual(ctx, fx.director, drums.ID, "m2")
	assert.Equal(t, appErrors.ErrMusicianAlreadyAssigned.Code, appErrors.FromError(err).Code)

	multi := newSlotFixture(t, SlotPolicy{AllowMultiRole: true})
	a := multi.open(t, "Piano")
	b := multi.open(t, "Organ")
	_, err = multi.svc.AssignIndividual(ctx, multi.director, a.ID, "m1")
	require.NoError(t, err)
	_, err = multi.svc.AssignIndividual(ctx, multi.director, b.ID, "m1")
	assert.NoError(t, err)
}

func TestAssignmentServiceNoDoubleAcceptUnderRace(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	slots := []*models.Assignment{fx.open(t, "Piano"), fx.open(t, "Organ"), fx.open(t, "Keys")}

	var wg sync.WaitGroup
	errs := make([]error, len(slots))
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = fx.svc.AssignIndividual(ctx, fx.director, id, "m1")
		}(i, slot.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, appErrors.ErrMusicianAlreadyAssigned.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, 1, succeeded)

	occupants, err := fx.svc.Occupancy(ctx, fx.director, fx.eventID)
	require.NoError(t, err)
	require.Len(t, occupants, 1)
	assert.Equal(t, "m1", occupants[0].UserID)
}

func TestAssignmentServiceGroupLifecycleAndEligibility(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})

	before, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "m1", "m2", "m3", "m4", "m5"}, eligibleIDs(before))

	slot, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	assert.Equal(t, "Choir", slot.RoleName)
	require.NotNil(t, slot.GroupID)

	again, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	assert.Equal(t, slot.ID, again.ID)
	assert.Len(t, fx.db.eventSlots(fx.eventID), 1)

	during, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "m1", "m4", "m5"}, eligibleIDs(during))

	_, err = fx.svc.AssignIndividual(ctx, fx.director, slot.ID, "m1")
	assert.Equal(t, appErrors.ErrSlotOccupiedByGroup.Code, appErrors.FromError(err).Code)

	released, err := fx.svc.RemoveGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	assert.Equal(t, []string{slot.ID}, released)
	reopened := fx.db.slots[slot.ID]
	assert.True(t, reopened.IsOpen())

	after, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, nil)
	require.NoError(t, err)
	assert.Equal(t, eligibleIDs(before), eligibleIDs(after))

	_, err = fx.svc.RemoveGroup(ctx, fx.director, fx.eventID, "choir")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	reused, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	assert.Equal(t, slot.ID, reused.ID, "open slot named after the group is reused")
}

func TestAssignmentServiceGroupKeepsFormerMembersHeld(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	groups := NewGroupService(memGroupStore{memGroups{fx.db}}, memUsers{fx.db}, nil, nil, nil)
	piano := fx.open(t, "Piano")

	choir, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	_, err = groups.AddMember(ctx, fx.director, "choir", AddGroupMemberRequest{UserID: "m5"})
	require.NoError(t, err)
	require.NoError(t, groups.RemoveMember(ctx, fx.director, "choir", "m2"))
	require.NoError(t, groups.RemoveMember(ctx, fx.director, "choir", "m5"))

	eligible, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "m1", "m4"}, eligibleIDs(eligible))

	occupants, err := fx.svc.Occupancy(ctx, fx.director, fx.eventID)
	require.NoError(t, err)
	held := map[string]models.OccupancySource{}
	for _, o := range occupants {
		held[o.UserID] = o.Source
	}
	assert.Equal(t, models.OccupiedViaGroup, held["m2"])
	assert.Equal(t, models.OccupiedViaGroup, held["m5"])

	_, err = fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m2")
	assert.Equal(t, appErrors.ErrMusicianAlreadyAssigned.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.RemoveGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	assert.Empty(t, fx.db.held[choir.ID])

	slot, err := fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m2")
	require.NoError(t, err)
	assert.Equal(t, "m2", *slot.UserID)
}

func TestAssignmentServiceEligibilityOverlay(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	_, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)

	eligible, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, []string{"band"})
	require.NoError(t, err)
	assert.Equal(t, []string{"director", "m1", "m5"}, eligibleIDs(eligible))

	_, err = fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, []string{"foreign"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceOccupancySources(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	vocals := fx.open(t, "Vocals")
	_, err := fx.svc.AssignIndividual(ctx, fx.director, vocals.ID, "m2")
	require.NoError(t, err)
	_, err = fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)
	_, err = fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "band")
	require.NoError(t, err)

	occupants, err := fx.svc.Occupancy(ctx, fx.director, fx.eventID)
	require.NoError(t, err)
	require.Len(t, occupants, 3)

	bySource := map[string]models.OccupancySource{}
	for _, o := range occupants {
		bySource[o.UserID] = o.Source
	}
	assert.Equal(t, models.OccupiedIndividually, bySource["m2"])
	assert.Equal(t, models.OccupiedViaGroup, bySource["m3"])
	assert.Equal(t, models.OccupiedViaGroup, bySource["m4"])
}

func TestAssignmentServiceSignupAcceptDecline(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{SignupRequiresConfirmation: true})
	bass := fx.open(t, "Bass")

	_, err := fx.svc.Signup(ctx, musician("m1"), bass.ID, "m2")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	slot, err := fx.svc.Signup(ctx, musician("m1"), bass.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPending, slot.Status)

	_, err = fx.svc.Signup(ctx, musician("m2"), bass.ID, "m2")
	assert.Equal(t, appErrors.ErrSlotNotOpen.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Accept(ctx, musician("m2"), bass.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	slot, err = fx.svc.Accept(ctx, musician("m1"), bass.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, slot.Status)

	events := len(fx.emitter.activities)
	slot, err = fx.svc.Accept(ctx, musician("m1"), bass.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, slot.Status)
	assert.Len(t, fx.emitter.activities, events, "repeated accept emits nothing")

	slot, err = fx.svc.Decline(ctx, musician("m1"), bass.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsOpen())
	assert.Equal(t, models.AssignmentPending, slot.Status)

	slot, err = fx.svc.Decline(ctx, musician("m1"), bass.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsOpen())

	instant := newSlotFixture(t, SlotPolicy{})
	keys := instant.open(t, "Keys")
	slot, err = instant.svc.Signup(ctx, musician("m3"), keys.ID, "m3")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentAccepted, slot.Status)
}

func TestAssignmentServiceRemoveIndividual(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	guitar := fx.open(t, "Guitar")
	_, err := fx.svc.AssignIndividual(ctx, fx.director, guitar.ID, "m4")
	require.NoError(t, err)

	slot, err := fx.svc.RemoveIndividual(ctx, fx.director, guitar.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsOpen())

	last := fx.emitter.activities[len(fx.emitter.activities)-1]
	assert.Equal(t, models.ActivitySlotReleased, last.Action)
	assert.Equal(t, "m4", last.NotifyUserID)

	eligible, err := fx.svc.EligibleIndividuals(ctx, fx.director, fx.eventID, nil)
	require.NoError(t, err)
	assert.Contains(t, eligibleIDs(eligible), "m4")
}

type staleSlots struct{ memSlots }

func (staleSlots) Fill(ctx context.Context, exec sqlx.ExtContext, id, userID string, status models.AssignmentStatus) error {
	return repository.ErrStaleSlot
}

type txConn struct{ sqlx.ExtContext }

type connTx struct{ conn sqlx.ExtContext }

func (t connTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	return fn(t.conn)
}

type readTrackingSlots struct {
	memSlots
	mu    sync.Mutex
	reads []sqlx.ExtContext
}

func (r *readTrackingSlots) track(exec sqlx.ExtContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, exec)
}

func (r *readTrackingSlots) Get(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	r.track(exec)
	return r.memSlots.Get(ctx, exec, id)
}

func (r *readTrackingSlots) ListByEvent(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.Assignment, error) {
	r.track(exec)
	return r.memSlots.ListByEvent(ctx, exec, eventID)
}

func (r *readTrackingSlots) ListGroupMembers(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.GroupMembership, error) {
	r.track(exec)
	return r.memSlots.ListGroupMembers(ctx, exec, eventID)
}

func TestAssignmentServiceReadsInsideTransaction(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	piano := fx.open(t, "Piano")
	_, err := fx.svc.AssignGroup(ctx, fx.director, fx.eventID, "choir")
	require.NoError(t, err)

	conn := &txConn{}
	tracked := &readTrackingSlots{memSlots: memSlots{fx.db}}
	fx.svc.tx = connTx{conn: conn}
	fx.svc.slots = tracked

	_, err = fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m1")
	require.NoError(t, err)
	_, err = fx.svc.Signup(ctx, musician("m4"), piano.ID, "m4")
	assert.Equal(t, appErrors.ErrSlotNotOpen.Code, appErrors.FromError(err).Code)

	require.GreaterOrEqual(t, len(tracked.reads), 4)
	for i, exec := range tracked.reads {
		assert.True(t, exec == sqlx.ExtContext(conn), "read %d bypassed the transaction", i)
	}
}

func TestAssignmentServiceStaleWriteIsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	fx := newSlotFixture(t, SlotPolicy{})
	piano := fx.open(t, "Piano")
	fx.svc.slots = staleSlots{memSlots{fx.db}}

	_, err := fx.svc.AssignIndividual(ctx, fx.director, piano.ID, "m1")
	assert.Equal(t, appErrors.ErrConcurrentModified.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Signup(ctx, musician("m1"), piano.ID, "m1")
	assert.Equal(t, appErrors.ErrSlotNotOpen.Code, appErrors.FromError(err).Code)
}
