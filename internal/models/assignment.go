package models

import "time"

// AssignmentStatus enumerates slot response states.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "PENDING"
	AssignmentAccepted AssignmentStatus = "ACCEPTED"
	AssignmentDeclined AssignmentStatus = "DECLINED"
)

// Assignment is one role slot on one event. A slot with neither a user nor
// a group is open.
type Assignment struct {
	ID           string           `db:"id" json:"id"`
	EventID      string           `db:"event_id" json:"event_id"`
	RoleName     string           `db:"role_name" json:"role_name"`
	Status       AssignmentStatus `db:"status" json:"status"`
	MaxMusicians int              `db:"max_musicians" json:"max_musicians"`
	UserID       *string          `db:"user_id" json:"user_id,omitempty"`
	GroupID      *string          `db:"group_id" json:"group_id,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether nobody fills the slot.
func (a Assignment) IsOpen() bool {
	return a.UserID == nil && a.GroupID == nil
}

// AssignmentDetail embeds user and group summaries for listings.
type AssignmentDetail struct {
	Assignment
	User  *UserSummary  `json:"user,omitempty"`
	Group *GroupSummary `json:"group,omitempty"`
}

// SlotTemplate is a role to open on a new event.
type SlotTemplate struct {
	RoleName     string `json:"role_name" validate:"required,max=100"`
	MaxMusicians int    `json:"max_musicians" validate:"omitempty,min=1,max=50"`
}

// OccupancySource tells how a musician came to fill a role on an event.
type OccupancySource string

const (
	OccupiedIndividually OccupancySource = "INDIVIDUAL"
	OccupiedViaGroup     OccupancySource = "GROUP"
)

// Occupant is one musician in an event's occupied set.
type Occupant struct {
	UserID       string          `json:"user_id"`
	Source       OccupancySource `json:"source"`
	AssignmentID string          `json:"assignment_id"`
	GroupID      *string         `json:"group_id,omitempty"`
}

// GroupMembership links a group assigned on an event to one of its members.
type GroupMembership struct {
	GroupID string `db:"group_id"`
	UserID  string `db:"user_id"`
}
