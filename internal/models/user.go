package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleLibrarian UserRole = "LIBRARIAN"
	RoleStudent   UserRole = "STUDENT"
)

// Valid returns true when the role is a supported value.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	StudentID    *string    `db:"student_id" json:"student_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// JWTClaims carries the authenticated identity inside access tokens.
type JWTClaims struct {
	UserID    string   `json:"uid"`
	Email     string   `json:"email"`
	Role      UserRole `json:"role"`
	StudentID string   `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
