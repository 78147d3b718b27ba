package models

import "time"

// FineStatus marks whether a fine has been settled.
type FineStatus string

const (
	FineStatusUnpaid FineStatus = "UNPAID"
	FineStatusPaid   FineStatus = "PAID"
	FineStatusWaived FineStatus = "WAIVED"
)

// Fine represents an overdue charge assessed against a loan.
type Fine struct {
	ID         string     `db:"id" json:"id"`
	IssueID    string     `db:"issue_id" json:"issue_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Amount     float64    `db:"amount" json:"amount"`
	DaysLate   int        `db:"days_late" json:"days_late"`
	Status     FineStatus `db:"status" json:"status"`
	AssessedAt time.Time  `db:"assessed_at" json:"assessed_at"`
	PaidAt     *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FineRecord extends a fine with student and loan metadata.
type FineRecord struct {
	Fine
	StudentName    string `db:"student_name" json:"student_name"`
	RegisterNumber string `db:"register_number" json:"register_number"`
	BookTitle      string `db:"book_title" json:"book_title"`
}

// FineFilter scopes fine listing queries.
type FineFilter struct {
	StudentID string
	Status    *FineStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
