package models

import "time"

// ResourceType enumerates bookable physical resources.
type ResourceType string

const (
	ResourceSeat      ResourceType = "SEAT"
	ResourceComputer  ResourceType = "COMPUTER"
	ResourceStudyRoom ResourceType = "STUDY_ROOM"
)

// Valid returns true when the resource type is supported.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceSeat, ResourceComputer, ResourceStudyRoom:
		return true
	default:
		return false
	}
}

// BookingStatus marks the lifecycle of a resource booking.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "ACTIVE"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// ResourceBooking reserves a seat, computer or study room for a window.
type ResourceBooking struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	ResourceType ResourceType  `db:"resource_type" json:"resource_type"`
	ResourceID   string        `db:"resource_id" json:"resource_id"`
	StartsAt     time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt       time.Time     `db:"ends_at" json:"ends_at"`
	Status       BookingStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingRecord extends a booking with student metadata.
type BookingRecord struct {
	ResourceBooking
	StudentName    string `db:"student_name" json:"student_name"`
	RegisterNumber string `db:"register_number" json:"register_number"`
}

// BookingFilter scopes booking listing queries.
type BookingFilter struct {
	StudentID    string
	ResourceType *ResourceType
	ResourceID   string
	DateFrom     *time.Time
	DateTo       *time.Time
	Status       *BookingStatus
	Page         int
	PageSize     int
}
