package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/recurrence"
	"github.com/noah-isme/church-music-api/pkg/templates"
)

type eventFixture struct {
	db      *memDB
	tx      *memTx
	emitter *recordingEmitter
	svc     *EventService
}

func newEventFixture(t *testing.T, maxInstances int, now time.Time) *eventFixture {
	t.Helper()
	db := newMemDB()
	db.addChurch("church-1", -300)
	db.addChurch("church-2", 60)
	catalog, err := templates.Parse([]byte(`
event_types:
  - name: Sunday Service
    color: "#1E88E5"
    slots:
      - role: Piano
      - role: Vocals
        max_musicians: 3
`))
	require.NoError(t, err)

	fx := &eventFixture{db: db, tx: &memTx{}, emitter: &recordingEmitter{}}
	fx.svc = NewEventService(EventServiceDeps{
		Churches: memChurches{db},
		Events:   memEvents{db},
		Slots:    memSlots{db},
		Tx:       fx.tx,
		Expander: recurrence.NewExpander(maxInstances),
		Catalog:  catalog,
		Notifier: fx.emitter,
		Clock:    fixedClock{now: now},
	})
	return fx
}

func weeklyRequest() CreateEventRequest {
	end := "2024-01-28"
	return CreateEventRequest{
		ChurchID:          "church-1",
		CreatedBy:         "director-1",
		Name:              "Sunday Service",
		Date:              "2024-01-07",
		StartTime:         "10:00",
		IsRecurring:       true,
		RecurrencePattern: "weekly",
		RecurrenceEndDate: &end,
		Slots:             []models.SlotTemplate{{RoleName: "Piano"}, {RoleName: "Drums"}},
	}
}

func TestEventServiceCreateWeeklySeries(t *testing.T) {
	fx := newEventFixture(t, 0, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	result, err := fx.svc.Create(context.Background(), weeklyRequest())
	require.NoError(t, err)
	require.Len(t, result.Instances, 3)
	assert.False(t, result.Truncated)

	seed := result.Event
	assert.True(t, seed.IsSeed())
	assert.Equal(t, time.Date(2024, 1, 7, 15, 0, 0, 0, time.UTC), seed.StartAt)
	assert.Equal(t, "2024-01-07", seed.LocalDate)
	assert.Equal(t, "10:00", seed.LocalTime)

	previous := seed.StartAt
	for _, instance := range result.Instances {
		require.NotNil(t, instance.ParentEventID)
		assert.Equal(t, seed.ID, *instance.ParentEventID)
		assert.False(t, instance.IsRecurring)
		assert.True(t, instance.StartAt.After(previous))
		assert.Equal(t, "10:00", instance.LocalTime)
		previous = instance.StartAt

		require.Len(t, instance.Assignments, 2)
		assert.Equal(t, "Piano", instance.Assignments[0].RoleName)
		assert.Equal(t, "Drums", instance.Assignments[1].RoleName)
		assert.True(t, instance.Assignments[0].IsOpen())
	}
	assert.Equal(t, "2024-01-28", result.Instances[2].LocalDate)
	assert.Equal(t, 1, fx.tx.calls)
	assert.Equal(t, []string{models.ActivityEventCreated}, fx.emitter.actions())
}

func TestEventServiceCreateUsesTemplateSlots(t *testing.T) {
	fx := newEventFixture(t, 0, time.Now())
	eventType := "sunday service"

	result, err := fx.svc.Create(context.Background(), CreateEventRequest{
		ChurchID:  "church-1",
		Name:      "Morning",
		Date:      "2024-02-04",
		StartTime: "09:30",
		EventType: &eventType,
	})
	require.NoError(t, err)
	require.Len(t, result.Event.Assignments, 2)
	assert.Equal(t, 3, result.Event.Assignments[1].MaxMusicians)
	require.NotNil(t, result.Event.EventTypeColor)
	assert.Equal(t, "#1E88E5", *result.Event.EventTypeColor)
	assert.Empty(t, result.Instances)
}

func TestEventServiceCreateValidation(t *testing.T) {
	fx := newEventFixture(t, 0, time.Now())

	cases := map[string]func(*CreateEventRequest){
		"recurring without pattern": func(r *CreateEventRequest) { r.RecurrencePattern = "" },
		"custom without interval":   func(r *CreateEventRequest) { r.RecurrencePattern = "custom" },
		"unknown pattern":           func(r *CreateEventRequest) { r.RecurrencePattern = "daily" },
		"end before start": func(r *CreateEventRequest) {
			end := "2023-12-01"
			r.RecurrenceEndDate = &end
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := weeklyRequest()
			mutate(&req)
			_, err := fx.svc.Create(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}

	req := weeklyRequest()
	req.StartTime = "9am"
	_, err := fx.svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTimeInput.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.db.events)
}

func TestEventServiceCreateTruncatesAtCap(t *testing.T) {
	fx := newEventFixture(t, 4, time.Now())
	req := weeklyRequest()
	req.RecurrenceEndDate = nil

	result, err := fx.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.Instances, 3)
	assert.True(t, result.Truncated)
}

func TestEventServiceDeleteScopes(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())

	result, err := fx.svc.Create(ctx, weeklyRequest())
	require.NoError(t, err)
	require.Len(t, fx.db.events, 4)

	summary, err := fx.svc.Delete(ctx, "church-1", result.Instances[0].ID, "director-1", models.DeleteScopeSingle)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deleted)
	assert.Len(t, fx.db.events, 3)

	summary, err = fx.svc.Delete(ctx, "church-1", result.Instances[1].ID, "director-1", models.DeleteScopeFuture)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{result.Instances[1].ID, result.Instances[2].ID}, summary.DeletedIDs)
	assert.Len(t, fx.db.events, 1)
	assert.Contains(t, fx.db.events, result.Event.ID)

	summary, err = fx.svc.Delete(ctx, "church-1", result.Event.ID, "director-1", models.DeleteScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deleted)
	assert.Empty(t, fx.db.events)
	assert.Empty(t, fx.db.slots)
}

func TestEventServiceDeleteSeedOrphansChildren(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())

	result, err := fx.svc.Create(ctx, weeklyRequest())
	require.NoError(t, err)

	summary, err := fx.svc.Delete(ctx, "church-1", result.Event.ID, "director-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.DeleteScopeSingle, summary.Scope)
	assert.Equal(t, 3, summary.Orphaned)
	require.Len(t, fx.db.events, 3)
	for _, e := range fx.db.events {
		assert.Nil(t, e.ParentEventID)
		assert.Empty(t, e.SeriesID())
	}
}

func TestEventServiceDeleteErrors(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())
	result, err := fx.svc.Create(ctx, weeklyRequest())
	require.NoError(t, err)

	_, err = fx.svc.Delete(ctx, "church-1", "missing", "director-1", models.DeleteScopeAll)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Delete(ctx, "church-2", result.Event.ID, "director-1", models.DeleteScopeAll)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Delete(ctx, "church-1", result.Event.ID, "director-1", "everything")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Len(t, fx.db.events, 4)
}

func TestEventServiceUpdate(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())
	req := weeklyRequest()
	end := "11:30"
	req.EndTime = &end
	result, err := fx.svc.Create(ctx, req)
	require.NoError(t, err)

	name := "Late Service"
	start := "10:30"
	updated, err := fx.svc.Update(ctx, "church-1", result.Instances[0].ID, "director-1", UpdateEventRequest{Name: &name, StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, "Late Service", updated.Name)
	assert.Equal(t, "10:30", updated.LocalTime)
	assert.Equal(t, "2024-01-14", updated.LocalDate)
	require.NotNil(t, updated.EndAt)
	assert.Equal(t, time.Date(2024, 1, 14, 16, 30, 0, 0, time.UTC), *updated.EndAt)
	assert.Equal(t, "Sunday Service", fx.db.events[result.Event.ID].Name)

	late := "12:00"
	_, err = fx.svc.Update(ctx, "church-1", result.Instances[0].ID, "director-1", UpdateEventRequest{StartTime: &late})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	recurring := true
	_, err = fx.svc.Update(ctx, "church-1", result.Instances[1].ID, "director-1", UpdateEventRequest{IsRecurring: &recurring})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEventServiceUpdateRecurringWithoutPattern(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())
	result, err := fx.svc.Create(ctx, CreateEventRequest{ChurchID: "church-1", Name: "Rehearsal", Date: "2024-03-01", StartTime: "19:00"})
	require.NoError(t, err)

	recurring := true
	_, err = fx.svc.Update(ctx, "church-1", result.Event.ID, "director-1", UpdateEventRequest{IsRecurring: &recurring})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	pattern := "monthly"
	updated, err := fx.svc.Update(ctx, "church-1", result.Event.ID, "director-1", UpdateEventRequest{IsRecurring: &recurring, RecurrencePattern: &pattern})
	require.NoError(t, err)
	assert.True(t, updated.IsSeed())
}

func TestEventServiceListByLocalDates(t *testing.T) {
	ctx := context.Background()
	fx := newEventFixture(t, 0, time.Now())
	_, err := fx.svc.Create(ctx, weeklyRequest())
	require.NoError(t, err)

	events, err := fx.svc.List(ctx, ListEventsRequest{ChurchID: "church-1", StartDate: "2024-01-14", EndDate: "2024-01-21"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2024-01-14", events[0].LocalDate)
	assert.Equal(t, "2024-01-21", events[1].LocalDate)

	_, err = fx.svc.List(ctx, ListEventsRequest{ChurchID: "church-1", StartDate: "2024-01-21", EndDate: "2024-01-14"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.List(ctx, ListEventsRequest{ChurchID: "church-1", StartDate: "14/01/2024"})
	assert.Equal(t, appErrors.ErrInvalidTimeInput.Code, appErrors.FromError(err).Code)
}

func TestEventServiceExtendOpenEndedSeries(t *testing.T) {
	ctx := context.Background()
	seedStart := time.Date(2024, 1, 7, 15, 0, 0, 0, time.UTC)
	fx := newEventFixture(t, 4, seedStart.Add(15*24*time.Hour))
	req := weeklyRequest()
	req.RecurrenceEndDate = nil
	result, err := fx.svc.Create(ctx, req)
	require.NoError(t, err)
	require.Len(t, fx.db.events, 4)

	summary, err := fx.svc.Extend(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Series)
	assert.Equal(t, 3, summary.Instances)

	series := fx.db.series(result.Event.ID)
	require.Len(t, series, 7)
	assert.Equal(t, seedStart.AddDate(0, 0, 42), series[6].StartAt)
	assert.Len(t, fx.db.eventSlots(series[6].ID), 2)

	summary, err = fx.svc.Extend(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Instances)
}
