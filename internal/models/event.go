package models

import "time"

// EventStatus enumerates event lifecycle states.
type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusPending   EventStatus = "pending"
	EventStatusError     EventStatus = "error"
)

// RecurrencePattern names how a series repeats.
type RecurrencePattern string

const (
	RecurrenceWeekly    RecurrencePattern = "weekly"
	RecurrenceBiweekly  RecurrencePattern = "biweekly"
	RecurrenceMonthly   RecurrencePattern = "monthly"
	RecurrenceQuarterly RecurrencePattern = "quarterly"
	RecurrenceCustom    RecurrencePattern = "custom"
)

// DeleteScope selects which instances of a series a delete touches.
type DeleteScope string

const (
	DeleteScopeSingle DeleteScope = "single"
	DeleteScopeFuture DeleteScope = "future"
	DeleteScopeAll    DeleteScope = "all"
)

// Event is a scheduled service. A seed has IsRecurring set and no parent,
// a child has a parent, a one-off has neither.
type Event struct {
	ID                     string             `db:"id" json:"id"`
	ChurchID               string             `db:"church_id" json:"church_id"`
	Name                   string             `db:"name" json:"name"`
	Description            *string            `db:"description" json:"description,omitempty"`
	Location               *string            `db:"location" json:"location,omitempty"`
	StartAt                time.Time          `db:"start_at" json:"start_at"`
	EndAt                  *time.Time         `db:"end_at" json:"end_at,omitempty"`
	Status                 EventStatus        `db:"status" json:"status"`
	EventTypeName          *string            `db:"event_type_name" json:"event_type_name,omitempty"`
	EventTypeColor         *string            `db:"event_type_color" json:"event_type_color,omitempty"`
	IsRecurring            bool               `db:"is_recurring" json:"is_recurring"`
	RecurrencePattern      *RecurrencePattern `db:"recurrence_pattern" json:"recurrence_pattern,omitempty"`
	RecurrenceIntervalDays *int               `db:"recurrence_interval_days" json:"recurrence_interval_days,omitempty"`
	RecurrenceEnd          *time.Time         `db:"recurrence_end" json:"recurrence_end,omitempty"`
	ParentEventID          *string            `db:"parent_event_id" json:"parent_event_id,omitempty"`
	CreatedBy              string             `db:"created_by" json:"created_by"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// IsSeed reports whether the event heads a recurring series.
func (e Event) IsSeed() bool {
	return e.IsRecurring && e.ParentEventID == nil
}

// SeriesID returns the id of the series seed, or "" for one-off events.
func (e Event) SeriesID() string {
	if e.ParentEventID != nil {
		return *e.ParentEventID
	}
	if e.IsRecurring {
		return e.ID
	}
	return ""
}

// EventFilter narrows event listings.
type EventFilter struct {
	ChurchID string
	Status   *EventStatus
	StartAt  *time.Time
	EndAt    *time.Time
}

// EventDetail is an event with its slots.
type EventDetail struct {
	Event
	LocalDate   string             `json:"local_date"`
	LocalTime   string             `json:"local_time"`
	Assignments []AssignmentDetail `json:"assignments"`
}

// DeletionSummary reports the outcome of a scoped delete.
type DeletionSummary struct {
	Scope      DeleteScope `json:"scope"`
	DeletedIDs []string    `json:"deleted_ids"`
	Deleted    int         `json:"deleted"`
	Orphaned   int         `json:"orphaned"`
}
