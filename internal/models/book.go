package models

import "time"

// Book represents a title in the catalog with its copy counters.
type Book struct {
	ID              string    `db:"id" json:"id"`
	ISBN            string    `db:"isbn" json:"isbn"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	Publisher       string    `db:"publisher" json:"publisher"`
	Category        string    `db:"category" json:"category"`
	ShelfLocation   string    `db:"shelf_location" json:"shelf_location"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BookFilter scopes catalog listing queries.
type BookFilter struct {
	Search        string
	Category      string
	AvailableOnly bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
