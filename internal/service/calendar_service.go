package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/pkg/timezone"
)

const (
	calendarProductID   = "-//church-music-api//schedule feed//EN"
	defaultEventSpan    = time.Hour
	defaultFeedLookback = 30 * 24 * time.Hour
	defaultFeedHorizon  = 180 * 24 * time.Hour
)

type eventLister interface {
	List(ctx context.Context, req ListEventsRequest) ([]models.EventDetail, error)
}

// CalendarFeedRequest bounds the feed by church-local dates. Empty bounds
// default to a window around today.
type CalendarFeedRequest struct {
	ChurchID  string
	StartDate string
	EndDate   string
}

// CalendarService publishes a church's schedule as an iCalendar feed.
type CalendarService struct {
	events   eventLister
	churches churchReader
	clock    timezone.Clock
	logger   *zap.Logger
}

// NewCalendarService constructs the service.
func NewCalendarService(events eventLister, churches churchReader, clock timezone.Clock, logger *zap.Logger) *CalendarService {
	if clock == nil {
		clock = timezone.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{events: events, churches: churches, clock: clock, logger: logger}
}

// Feed renders one VEVENT per event in range.
func (s *CalendarService) Feed(ctx context.Context, req CalendarFeedRequest) ([]byte, error) {
	church, err := s.churches.FindByID(ctx, req.ChurchID)
	if err != nil {
		return nil, lookupError(err, "church")
	}
	now := s.clock.Now()
	offset := timezone.OffsetAt(deref(church.TimezoneName), church.TimezoneOffsetMinutes, now)
	if req.StartDate == "" {
		req.StartDate, _ = timezone.ToDisplay(now.Add(-defaultFeedLookback), offset)
	}
	if req.EndDate == "" {
		req.EndDate, _ = timezone.ToDisplay(now.Add(defaultFeedHorizon), offset)
	}

	events, err := s.events.List(ctx, ListEventsRequest{ChurchID: church.ID, StartDate: req.StartDate, EndDate: req.EndDate})
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetName(church.Name + " music schedule")
	for _, event := range events {
		addFeedEvent(cal, event, now)
	}
	s.logger.Debug("calendar feed rendered", zap.String("church_id", church.ID), zap.Int("events", len(events)))
	return []byte(cal.Serialize()), nil
}

func addFeedEvent(cal *ical.Calendar, event models.EventDetail, stamp time.Time) {
	vevent := cal.AddEvent(event.ID + "@church-music-api")
	vevent.SetDtStampTime(stamp)
	vevent.SetCreatedTime(event.CreatedAt)
	vevent.SetModifiedAt(event.UpdatedAt)
	vevent.SetStartAt(event.StartAt)
	end := event.StartAt.Add(defaultEventSpan)
	if event.EndAt != nil {
		end = *event.EndAt
	}
	vevent.SetEndAt(end)
	vevent.SetSummary(event.Name)
	vevent.SetStatus(feedStatus(event.Status))
	if event.Location != nil {
		vevent.SetLocation(*event.Location)
	}
	if event.EventTypeColor != nil {
		vevent.SetProperty(ical.ComponentProperty("COLOR"), *event.EventTypeColor)
	}
	if description := feedDescription(event); description != "" {
		vevent.SetDescription(description)
	}
}

func feedStatus(status models.EventStatus) ical.ObjectStatus {
	switch status {
	case models.EventStatusCancelled:
		return ical.ObjectStatusCancelled
	case models.EventStatusConfirmed:
		return ical.ObjectStatusConfirmed
	}
	return ical.ObjectStatusTentative
}

// feedDescription lists each role with its holder, or "open".
func feedDescription(event models.EventDetail) string {
	var lines []string
	if event.Description != nil && *event.Description != "" {
		lines = append(lines, *event.Description)
	}
	for _, slot := range event.Assignments {
		holder := "open"
		switch {
		case slot.User != nil:
			holder = strings.TrimSpace(slot.User.FirstName + " " + slot.User.LastName)
		case slot.Group != nil:
			holder = slot.Group.Name
		}
		lines = append(lines, fmt.Sprintf("%s: %s", slot.RoleName, holder))
	}
	return strings.Join(lines, "\n")
}
