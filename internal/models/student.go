package models

import "time"

// Student represents a library member in the students table.
type Student struct {
	ID             string    `db:"id" json:"id"`
	RegisterNumber string    `db:"register_number" json:"register_number"`
	FullName       string    `db:"full_name" json:"full_name"`
	Department     string    `db:"department" json:"department"`
	Year           int       `db:"year" json:"year"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Search     string
	Department string
	Year       int
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
