package models

import (
	"encoding/json"
	"time"
)

// Activity actions.
const (
	ActivityEventCreated       = "EVENT_CREATED"
	ActivityEventUpdated       = "EVENT_UPDATED"
	ActivityEventDeleted       = "EVENT_DELETED"
	ActivitySlotOpened         = "SLOT_OPENED"
	ActivitySlotAssigned       = "SLOT_ASSIGNED"
	ActivitySlotReleased       = "SLOT_RELEASED"
	ActivitySlotSignup         = "SLOT_SIGNUP"
	ActivitySlotAccepted       = "SLOT_ACCEPTED"
	ActivitySlotDeclined       = "SLOT_DECLINED"
	ActivityGroupAssigned      = "GROUP_ASSIGNED"
	ActivityGroupReleased      = "GROUP_RELEASED"
	ActivityInvitationSent     = "INVITATION_SENT"
	ActivityInvitationAccepted = "INVITATION_ACCEPTED"
	ActivityInvitationRevoked  = "INVITATION_REVOKED"
	ActivityInvitationResent   = "INVITATION_RESENT"
	ActivitySeriesExtended     = "SERIES_EXTENDED"
)

// ActivityLog is a persisted activity entry.
type ActivityLog struct {
	ID         string          `db:"id" json:"id"`
	ChurchID   string          `db:"church_id" json:"church_id"`
	ActorID    *string         `db:"actor_id" json:"actor_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
