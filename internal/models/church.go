package models

import "time"

// Church is a tenant. Dates and times are displayed in its local offset.
type Church struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	TimezoneOffsetMinutes int       `db:"timezone_offset_minutes" json:"timezone_offset_minutes"`
	TimezoneName          *string   `db:"timezone_name" json:"timezone_name,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}
