package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleDirector          UserRole = "DIRECTOR"
	RoleAssociateDirector UserRole = "ASSOCIATE_DIRECTOR"
	RoleMusician          UserRole = "MUSICIAN"
	RolePastor            UserRole = "PASTOR"
	RoleAssociatePastor   UserRole = "ASSOCIATE_PASTOR"
)

// IsLeadership reports whether the role may manage schedules and invitations.
func (r UserRole) IsLeadership() bool {
	switch r {
	case RoleDirector, RoleAssociateDirector, RolePastor, RoleAssociatePastor:
		return true
	}
	return false
}

// User represents a church member stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	ChurchID     string    `db:"church_id" json:"church_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Role         UserRole  `db:"role" json:"role"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Pin          *string   `db:"pin" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Summary returns the public projection of the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// UserSummary is the compact user view embedded in other resources.
type UserSummary struct {
	ID        string `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserFilter captures filtering criteria for listing church members.
type UserFilter struct {
	ChurchID  string
	Role      *UserRole
	Verified  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
