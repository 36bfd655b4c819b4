package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/recurrence"
	"github.com/noah-isme/church-music-api/pkg/templates"
	"github.com/noah-isme/church-music-api/pkg/timezone"
)

type churchReader interface {
	FindByID(ctx context.Context, id string) (*models.Church, error)
}

type eventRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
	Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error
	ListSeries(ctx context.Context, seriesID string) ([]models.Event, error)
	CountChildren(ctx context.Context, exec sqlx.ExtContext, parentID string) (int, error)
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int, error)
	ListOpenEndedSeeds(ctx context.Context) ([]models.Event, error)
	SeriesTail(ctx context.Context, seedID string, after time.Time) (time.Time, int, error)
}

type eventSlotRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error
	ListByEvent(ctx context.Context, exec sqlx.ExtContext, eventID string) ([]models.Assignment, error)
	ListDetailsByEvents(ctx context.Context, eventIDs []string) ([]models.AssignmentDetail, error)
}

// EventService manages events, recurring series and scoped deletion.
type EventService struct {
	churches  churchReader
	events    eventRepository
	slots     eventSlotRepository
	tx        txRunner
	expander  *recurrence.Expander
	catalog   *templates.Catalog
	cache     *CacheService
	notifier  activityEmitter
	metrics   *MetricsService
	clock     timezone.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// EventServiceDeps groups the collaborators of EventService.
type EventServiceDeps struct {
	Churches  churchReader
	Events    eventRepository
	Slots     eventSlotRepository
	Tx        txRunner
	Expander  *recurrence.Expander
	Catalog   *templates.Catalog
	Cache     *CacheService
	Notifier  activityEmitter
	Metrics   *MetricsService
	Clock     timezone.Clock
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewEventService constructs the service.
func NewEventService(deps EventServiceDeps) *EventService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Expander == nil {
		deps.Expander = recurrence.NewExpander(0)
	}
	if deps.Catalog == nil {
		deps.Catalog = templates.Empty()
	}
	if deps.Clock == nil {
		deps.Clock = timezone.SystemClock{}
	}
	svc := &EventService{
		churches:  deps.Churches,
		events:    deps.Events,
		slots:     deps.Slots,
		tx:        deps.Tx,
		expander:  deps.Expander,
		catalog:   deps.Catalog,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
	_ = svc.validator.RegisterValidation("event_status", func(fl validator.FieldLevel) bool {
		switch models.EventStatus(strings.ToLower(fl.Field().String())) {
		case models.EventStatusConfirmed, models.EventStatusTentative, models.EventStatusCancelled, models.EventStatusPending, models.EventStatusError:
			return true
		}
		return false
	})
	_ = svc.validator.RegisterValidation("recurrence_pattern", func(fl validator.FieldLevel) bool {
		return recurrence.Pattern(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// CreateEventRequest describes create payload. Dates and times are church-local.
type CreateEventRequest struct {
	ChurchID               string                `json:"-"`
	CreatedBy              string                `json:"-"`
	Name                   string                `json:"name" validate:"required,max=200"`
	Description            *string               `json:"description" validate:"omitempty,max=2000"`
	Location               *string               `json:"location" validate:"omitempty,max=200"`
	Date                   string                `json:"date" validate:"required"`
	StartTime              string                `json:"start_time" validate:"required"`
	EndTime                *string               `json:"end_time"`
	Status                 string                `json:"status" validate:"omitempty,event_status"`
	EventType              *string               `json:"event_type" validate:"omitempty,max=100"`
	EventTypeColor         *string               `json:"event_type_color" validate:"omitempty,hexcolor"`
	IsRecurring            bool                  `json:"is_recurring"`
	RecurrencePattern      string                `json:"recurrence_pattern" validate:"omitempty,recurrence_pattern"`
	RecurrenceIntervalDays *int                  `json:"recurrence_interval_days" validate:"omitempty,min=1,max=366"`
	RecurrenceEndDate      *string               `json:"recurrence_end_date"`
	Slots                  []models.SlotTemplate `json:"slots" validate:"omitempty,max=50,dive"`
}

// UpdateEventRequest carries partial updates; nil fields are left untouched.
type UpdateEventRequest struct {
	Name                   *string `json:"name" validate:"omitempty,max=200"`
	Description            *string `json:"description" validate:"omitempty,max=2000"`
	Location               *string `json:"location" validate:"omitempty,max=200"`
	Date                   *string `json:"date"`
	StartTime              *string `json:"start_time"`
	EndTime                *string `json:"end_time"`
	Status                 *string `json:"status" validate:"omitempty,event_status"`
	EventType              *string `json:"event_type" validate:"omitempty,max=100"`
	EventTypeColor         *string `json:"event_type_color" validate:"omitempty,hexcolor"`
	IsRecurring            *bool   `json:"is_recurring"`
	RecurrencePattern      *string `json:"recurrence_pattern" validate:"omitempty,recurrence_pattern"`
	RecurrenceIntervalDays *int    `json:"recurrence_interval_days" validate:"omitempty,min=1,max=366"`
	RecurrenceEndDate      *string `json:"recurrence_end_date"`
}

// ListEventsRequest filters a church's events by status and local date range.
type ListEventsRequest struct {
	ChurchID  string
	Status    string
	StartDate string
	EndDate   string
}

// CreateEventResult is the created event plus any generated series instances.
type CreateEventResult struct {
	Event     models.EventDetail   `json:"event"`
	Instances []models.EventDetail `json:"instances,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
}

// ExtendSummary reports a series extension pass.
type ExtendSummary struct {
	Series    int `json:"series"`
	Instances int `json:"instances"`
}

// List returns events with their slots.
func (s *EventService) List(ctx context.Context, req ListEventsRequest) ([]models.EventDetail, error) {
	church, err := s.church(ctx, req.ChurchID)
	if err != nil {
		return nil, err
	}
	offset := s.offset(church, s.clock.Now())

	filter := models.EventFilter{ChurchID: church.ID}
	if req.Status != "" {
		status := models.EventStatus(strings.ToLower(req.Status))
		if err := s.validator.Var(string(status), "event_status"); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of confirmed, tentative, cancelled, pending, error")
		}
		filter.Status = &status
	}
	if req.StartDate != "" {
		start, err := timezone.ParseLocalDate(req.StartDate, offset)
		if err != nil {
			return nil, timeInputError(err)
		}
		filter.StartAt = &start
	}
	if req.EndDate != "" {
		day, err := timezone.ParseLocalDate(req.EndDate, offset)
		if err != nil {
			return nil, timeInputError(err)
		}
		end := timezone.EndOfLocalDay(day, offset)
		filter.EndAt = &end
	}
	if filter.StartAt != nil && filter.EndAt != nil && filter.EndAt.Before(*filter.StartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be on or after start date")
	}

	key := EventListKey(filter)
	var cached []models.EventDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, wrapInternal(err, "failed to list events")
	}
	details, err := s.withSlots(ctx, church, events)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, details, 0)
	return details, nil
}

// Get returns one event of the church with its slots.
func (s *EventService) Get(ctx context.Context, churchID, id string) (*models.EventDetail, error) {
	church, err := s.church(ctx, churchID)
	if err != nil {
		return nil, err
	}
	event, err := s.owned(ctx, churchID, id)
	if err != nil {
		return nil, err
	}
	details, err := s.withSlots(ctx, church, []models.Event{*event})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// Create stores an event, its slots and, for a series, every generated
// instance in a single transaction.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest) (*CreateEventResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	church, err := s.church(ctx, req.ChurchID)
	if err != nil {
		return nil, err
	}

	pattern := recurrence.Pattern(strings.ToLower(req.RecurrencePattern))
	if req.IsRecurring && pattern == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_pattern is required when is_recurring is true")
	}
	if !req.IsRecurring && (pattern != "" || req.RecurrenceEndDate != nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence fields require is_recurring to be true")
	}
	if pattern == recurrence.Custom && req.RecurrenceIntervalDays == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_interval_days is required for custom recurrence")
	}

	offset, err := s.offsetForDate(church, req.Date)
	if err != nil {
		return nil, err
	}
	startAt, endAt, err := eventWindow(req.Date, req.StartTime, req.EndTime, offset)
	if err != nil {
		return nil, err
	}

	seed := models.Event{
		ChurchID:       church.ID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Location:       req.Location,
		StartAt:        startAt,
		EndAt:          endAt,
		Status:         models.EventStatus(strings.ToLower(req.Status)),
		EventTypeName:  req.EventType,
		EventTypeColor: req.EventTypeColor,
		CreatedBy:      req.CreatedBy,
	}
	slots := req.Slots
	if req.EventType != nil {
		if preset, ok := s.catalog.Lookup(*req.EventType); ok {
			if len(slots) == 0 {
				slots = presetSlots(preset)
			}
			if seed.EventTypeColor == nil && preset.Color != "" {
				color := preset.Color
				seed.EventTypeColor = &color
			}
		}
	}

	starts := []time.Time{startAt}
	truncated := false
	if req.IsRecurring {
		p := models.RecurrencePattern(pattern)
		seed.IsRecurring = true
		seed.RecurrencePattern = &p
		if pattern == recurrence.Custom {
			seed.RecurrenceIntervalDays = req.RecurrenceIntervalDays
		}
		if req.RecurrenceEndDate != nil {
			until, err := timezone.ParseLocalDate(*req.RecurrenceEndDate, offset)
			if err != nil {
				return nil, timeInputError(err)
			}
			seed.RecurrenceEnd = &until
		}
		starts, truncated, err = s.expander.Occurrences(startAt, ruleFor(seed, offset))
		if err != nil {
			return nil, recurrenceError(err)
		}
	}

	created := make([]models.Event, 0, len(starts))
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		for i, start := range starts {
			instance := seed
			if i > 0 {
				instance = childOf(seed, start)
			}
			if err := s.events.Create(ctx, exec, &instance); err != nil {
				return err
			}
			if i == 0 {
				seed.ID = instance.ID
			}
			if err := s.openSlots(ctx, exec, instance.ID, slots); err != nil {
				return err
			}
			created = append(created, instance)
		}
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to create event")
	}

	s.cache.InvalidateChurchEvents(ctx, church.ID)
	s.metrics.RecordEventCreated(seed.IsRecurring, len(created))
	s.emit(ctx, Activity{
		ChurchID:   church.ID,
		ActorID:    req.CreatedBy,
		Action:     models.ActivityEventCreated,
		Resource:   "event",
		ResourceID: seed.ID,
		Payload:    map[string]interface{}{"name": seed.Name, "instances": len(created), "truncated": truncated},
	})

	details, err := s.withSlots(ctx, church, created)
	if err != nil {
		return nil, err
	}
	result := &CreateEventResult{Event: details[0], Truncated: truncated}
	if len(details) > 1 {
		result.Instances = details[1:]
	}
	return result, nil
}

// Update applies a partial update to one event. Series siblings are untouched.
func (s *EventService) Update(ctx context.Context, churchID, id, actorID string, req UpdateEventRequest) (*models.EventDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	church, err := s.church(ctx, churchID)
	if err != nil {
		return nil, err
	}
	event, err := s.owned(ctx, churchID, id)
	if err != nil {
		return nil, err
	}

	offset := s.offset(church, event.StartAt)
	date, clock := timezone.ToDisplay(event.StartAt, offset)
	if req.Date != nil || req.StartTime != nil || req.EndTime != nil {
		if req.Date != nil {
			date = *req.Date
			if offset, err = s.offsetForDate(church, date); err != nil {
				return nil, err
			}
		}
		if req.StartTime != nil {
			clock = *req.StartTime
		}
		endTime := req.EndTime
		if endTime == nil && event.EndAt != nil {
			_, end := timezone.ToDisplay(*event.EndAt, offset)
			endTime = &end
		}
		startAt, endAt, err := eventWindow(date, clock, endTime, offset)
		if err != nil {
			return nil, err
		}
		event.StartAt, event.EndAt = startAt, endAt
	}

	if req.Name != nil {
		event.Name = strings.TrimSpace(*req.Name)
		if event.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be empty")
		}
	}
	if req.Description != nil {
		event.Description = strPtr(*req.Description)
	}
	if req.Location != nil {
		event.Location = strPtr(*req.Location)
	}
	if req.Status != nil {
		event.Status = models.EventStatus(strings.ToLower(*req.Status))
	}
	if req.EventType != nil {
		event.EventTypeName = strPtr(*req.EventType)
	}
	if req.EventTypeColor != nil {
		event.EventTypeColor = strPtr(*req.EventTypeColor)
	}
	if req.IsRecurring != nil {
		if *req.IsRecurring && event.ParentEventID != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a series instance cannot become a recurring seed")
		}
		event.IsRecurring = *req.IsRecurring
	}
	if req.RecurrencePattern != nil {
		p := models.RecurrencePattern(strings.ToLower(*req.RecurrencePattern))
		event.RecurrencePattern = &p
	}
	if req.RecurrenceIntervalDays != nil {
		event.RecurrenceIntervalDays = req.RecurrenceIntervalDays
	}
	if req.RecurrenceEndDate != nil {
		until, err := timezone.ParseLocalDate(*req.RecurrenceEndDate, offset)
		if err != nil {
			return nil, timeInputError(err)
		}
		event.RecurrenceEnd = &until
	}
	if event.IsRecurring && (event.RecurrencePattern == nil || *event.RecurrencePattern == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_pattern is required when is_recurring is true")
	}
	if event.IsRecurring && *event.RecurrencePattern == models.RecurrenceCustom && event.RecurrenceIntervalDays == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_interval_days is required for custom recurrence")
	}

	if err := s.events.Update(ctx, nil, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, wrapInternal(err, "failed to update event")
	}

	s.cache.InvalidateChurchEvents(ctx, church.ID)
	s.emit(ctx, Activity{ChurchID: church.ID, ActorID: actorID, Action: models.ActivityEventUpdated, Resource: "event", ResourceID: event.ID,
		Payload: map[string]interface{}{"name": event.Name}})

	details, err := s.withSlots(ctx, church, []models.Event{*event})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// Delete removes an event and, depending on scope, other series instances.
// Deleting a seed with scope single leaves its children as parentless
// one-off events.
func (s *EventService) Delete(ctx context.Context, churchID, id, actorID string, scope models.DeleteScope) (*models.DeletionSummary, error) {
	if scope == "" {
		scope = models.DeleteScopeSingle
	}
	switch scope {
	case models.DeleteScopeSingle, models.DeleteScopeFuture, models.DeleteScopeAll:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must be one of single, future, all")
	}

	target, err := s.owned(ctx, churchID, id)
	if err != nil {
		return nil, err
	}

	ids := []string{target.ID}
	seriesID := target.SeriesID()
	if seriesID != "" && scope != models.DeleteScopeSingle {
		series, err := s.events.ListSeries(ctx, seriesID)
		if err != nil {
			return nil, wrapInternal(err, "failed to load event series")
		}
		ids = seriesScope(series, target, scope)
	}

	summary := &models.DeletionSummary{Scope: scope}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if target.IsSeed() && scope == models.DeleteScopeSingle {
			orphans, err := s.events.CountChildren(ctx, exec, target.ID)
			if err != nil {
				return err
			}
			summary.Orphaned = orphans
		}
		deleted, err := s.events.DeleteByIDs(ctx, exec, ids)
		if err != nil {
			return err
		}
		summary.Deleted = deleted
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to delete event")
	}
	summary.DeletedIDs = ids

	s.cache.InvalidateChurchEvents(ctx, churchID)
	s.emit(ctx, Activity{ChurchID: churchID, ActorID: actorID, Action: models.ActivityEventDeleted, Resource: "event", ResourceID: target.ID,
		Payload: map[string]interface{}{"scope": string(scope), "deleted": summary.Deleted, "orphaned": summary.Orphaned}})
	return summary, nil
}

// Extend materializes upcoming instances of open-ended series so each keeps
// up to the expander cap of future instances after now.
func (s *EventService) Extend(ctx context.Context) (*ExtendSummary, error) {
	seeds, err := s.events.ListOpenEndedSeeds(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list open-ended series")
	}
	now := s.clock.Now()
	churches := map[string]*models.Church{}
	summary := &ExtendSummary{}

	for _, seed := range seeds {
		church, ok := churches[seed.ChurchID]
		if !ok {
			church, err = s.church(ctx, seed.ChurchID)
			if err != nil {
				s.logger.Warn("skip series extension, church unavailable", zap.String("seed_id", seed.ID), zap.Error(err))
				continue
			}
			churches[seed.ChurchID] = church
		}

		added, err := s.extendSeries(ctx, church, seed, now)
		if err != nil {
			s.logger.Error("series extension failed", zap.String("seed_id", seed.ID), zap.Error(err))
			continue
		}
		if added > 0 {
			summary.Series++
			summary.Instances += added
		}
	}

	s.metrics.RecordInstances(summary.Instances)
	return summary, nil
}

func (s *EventService) extendSeries(ctx context.Context, church *models.Church, seed models.Event, now time.Time) (int, error) {
	latest, upcoming, err := s.events.SeriesTail(ctx, seed.ID, now)
	if err != nil {
		return 0, err
	}
	needed := s.expander.MaxInstances() - upcoming
	if needed <= 0 {
		return 0, nil
	}
	offset := s.offset(church, seed.StartAt)
	starts, err := s.expander.Next(seed.StartAt, ruleFor(seed, offset), latest, needed)
	if err != nil || len(starts) == 0 {
		return 0, err
	}
	template, err := s.slots.ListByEvent(ctx, nil, seed.ID)
	if err != nil {
		return 0, err
	}
	slots := make([]models.SlotTemplate, 0, len(template))
	for _, slot := range template {
		if slot.GroupID != nil {
			continue
		}
		slots = append(slots, models.SlotTemplate{RoleName: slot.RoleName, MaxMusicians: slot.MaxMusicians})
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		for _, start := range starts {
			child := childOf(seed, start)
			if err := s.events.Create(ctx, exec, &child); err != nil {
				return err
			}
			if err := s.openSlots(ctx, exec, child.ID, slots); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.cache.InvalidateChurchEvents(ctx, church.ID)
	s.emit(ctx, Activity{ChurchID: church.ID, Action: models.ActivitySeriesExtended, Resource: "event", ResourceID: seed.ID,
		Payload: map[string]interface{}{"instances": len(starts)}})
	return len(starts), nil
}

func (s *EventService) openSlots(ctx context.Context, exec sqlx.ExtContext, eventID string, slots []models.SlotTemplate) error {
	for _, slot := range slots {
		assignment := models.Assignment{
			EventID:      eventID,
			RoleName:     strings.TrimSpace(slot.RoleName),
			Status:       models.AssignmentPending,
			MaxMusicians: slot.MaxMusicians,
		}
		if err := s.slots.Create(ctx, exec, &assignment); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventService) withSlots(ctx context.Context, church *models.Church, events []models.Event) ([]models.EventDetail, error) {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	slots, err := s.slots.ListDetailsByEvents(ctx, ids)
	if err != nil {
		return nil, wrapInternal(err, "failed to load event assignments")
	}
	byEvent := make(map[string][]models.AssignmentDetail, len(events))
	for _, slot := range slots {
		byEvent[slot.EventID] = append(byEvent[slot.EventID], slot)
	}

	details := make([]models.EventDetail, len(events))
	for i, e := range events {
		date, clock := timezone.ToDisplay(e.StartAt, s.offset(church, e.StartAt))
		assignments := byEvent[e.ID]
		if assignments == nil {
			assignments = []models.AssignmentDetail{}
		}
		details[i] = models.EventDetail{Event: e, LocalDate: date, LocalTime: clock, Assignments: assignments}
	}
	return details, nil
}

func (s *EventService) church(ctx context.Context, id string) (*models.Church, error) {
	church, err := s.churches.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "church")
	}
	return church, nil
}

func (s *EventService) owned(ctx context.Context, churchID, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "event")
	}
	if event.ChurchID != churchID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

func (s *EventService) offset(church *models.Church, at time.Time) int {
	return timezone.OffsetAt(deref(church.TimezoneName), church.TimezoneOffsetMinutes, at)
}

// offsetForDate resolves the church offset around midday of a local date.
func (s *EventService) offsetForDate(church *models.Church, date string) (int, error) {
	noon, err := timezone.ToStorageInstant(date, "12:00", church.TimezoneOffsetMinutes)
	if err != nil {
		return 0, timeInputError(err)
	}
	return s.offset(church, noon), nil
}

func (s *EventService) emit(ctx context.Context, activity Activity) {
	if s.notifier != nil {
		s.notifier.Emit(ctx, activity)
	}
}

func eventWindow(date, startTime string, endTime *string, offset int) (time.Time, *time.Time, error) {
	startAt, err := timezone.ToStorageInstant(date, startTime, offset)
	if err != nil {
		return time.Time{}, nil, timeInputError(err)
	}
	if endTime == nil || *endTime == "" {
		return startAt, nil, nil
	}
	endAt, err := timezone.ToStorageInstant(date, *endTime, offset)
	if err != nil {
		return time.Time{}, nil, timeInputError(err)
	}
	if !endAt.After(startAt) {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return startAt, &endAt, nil
}

func ruleFor(seed models.Event, offset int) recurrence.Rule {
	rule := recurrence.Rule{Location: timezone.Zone(offset)}
	if seed.RecurrencePattern != nil {
		rule.Pattern = recurrence.Pattern(*seed.RecurrencePattern)
	}
	if seed.RecurrenceIntervalDays != nil {
		rule.IntervalDays = *seed.RecurrenceIntervalDays
	}
	if seed.RecurrenceEnd != nil {
		until := *seed.RecurrenceEnd
		rule.Until = &until
	}
	return rule
}

// childOf copies the seed's content onto a new instance at start.
func childOf(seed models.Event, start time.Time) models.Event {
	child := models.Event{
		ChurchID:       seed.ChurchID,
		Name:           seed.Name,
		Description:    seed.Description,
		Location:       seed.Location,
		StartAt:        start,
		Status:         seed.Status,
		EventTypeName:  seed.EventTypeName,
		EventTypeColor: seed.EventTypeColor,
		CreatedBy:      seed.CreatedBy,
	}
	if seed.EndAt != nil {
		end := start.Add(seed.EndAt.Sub(seed.StartAt))
		child.EndAt = &end
	}
	parent := seed.ID
	child.ParentEventID = &parent
	return child
}

func seriesScope(series []models.Event, target *models.Event, scope models.DeleteScope) []string {
	ids := make([]string, 0, len(series))
	for _, e := range series {
		if scope == models.DeleteScopeFuture && e.StartAt.Before(target.StartAt) {
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 {
		ids = append(ids, target.ID)
	}
	return ids
}

func presetSlots(preset templates.EventType) []models.SlotTemplate {
	slots := make([]models.SlotTemplate, len(preset.Slots))
	for i, slot := range preset.Slots {
		slots[i] = models.SlotTemplate{RoleName: slot.RoleName, MaxMusicians: slot.MaxMusicians}
	}
	return slots
}

func timeInputError(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrInvalidTimeInput.Code, appErrors.ErrInvalidTimeInput.Status, err.Error())
}

func recurrenceError(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}
