package models

import "time"

// InvitationStatus enumerates invitation lifecycle states.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// Invitation onboards a musician into a church.
type Invitation struct {
	ID        string           `db:"id" json:"id"`
	Email     string           `db:"email" json:"email"`
	FirstName string           `db:"first_name" json:"first_name"`
	LastName  string           `db:"last_name" json:"last_name"`
	Phone     *string          `db:"phone" json:"phone,omitempty"`
	ChurchID  string           `db:"church_id" json:"church_id"`
	InvitedBy string           `db:"invited_by" json:"invited_by"`
	UserID    *string          `db:"user_id" json:"user_id,omitempty"`
	Token     string           `db:"token" json:"-"`
	ExpiresAt time.Time        `db:"expires_at" json:"expires_at"`
	Status    InvitationStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether a pending invitation is past its expiry.
func (i Invitation) IsExpired(now time.Time) bool {
	return i.Status == InvitationPending && !now.Before(i.ExpiresAt)
}

// Delivery reports how an invitation email was handled.
type Delivery string

const (
	DeliverySent      Delivery = "sent"
	DeliverySimulated Delivery = "simulated"
)

// InviteRecord is one musician to invite.
type InviteRecord struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// InvitationCredentials are returned once, at creation time.
type InvitationCredentials struct {
	Email             string `json:"email"`
	TemporaryPassword string `json:"temporary_password"`
	InviteLink        string `json:"invite_link"`
}

// InvitationResult is the outcome of one successful invite.
type InvitationResult struct {
	Invitation  Invitation            `json:"invitation"`
	Credentials InvitationCredentials `json:"credentials"`
	Delivery    Delivery              `json:"delivery"`
}

// BatchFailure is one rejected bulk record.
type BatchFailure struct {
	Index  int    `json:"index"`
	Email  string `json:"email"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BatchResult summarises a bulk invite.
type BatchResult struct {
	SuccessfulCount int                `json:"successful_count"`
	FailedCount     int                `json:"failed_count"`
	Successful      []InvitationResult `json:"successful"`
	Failed          []BatchFailure     `json:"failed"`
}
