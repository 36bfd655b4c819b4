package models

import "time"

// Group is a named set of musicians that can fill a role together.
type Group struct {
	ID          string    `db:"id" json:"id"`
	ChurchID    string    `db:"church_id" json:"church_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupSummary is the compact group view embedded in assignments.
type GroupSummary struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// GroupDetail is a group with its members.
type GroupDetail struct {
	Group
	Members []UserSummary `json:"members"`
}
