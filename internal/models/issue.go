package models

import "time"

// IssueStatus marks the lifecycle of a book loan.
type IssueStatus string

const (
	IssueStatusIssued   IssueStatus = "ISSUED"
	IssueStatusReturned IssueStatus = "RETURNED"
	IssueStatusOverdue  IssueStatus = "OVERDUE"
)

// BookIssue represents a single loan of a copy to a student.
type BookIssue struct {
	ID         string      `db:"id" json:"id"`
	BookID     string      `db:"book_id" json:"book_id"`
	StudentID  string      `db:"student_id" json:"student_id"`
	IssuedAt   time.Time   `db:"issued_at" json:"issued_at"`
	DueAt      time.Time   `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time  `db:"returned_at" json:"returned_at,omitempty"`
	Status     IssueStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// BookIssueRecord extends a loan with book and student metadata.
type BookIssueRecord struct {
	BookIssue
	BookTitle      string `db:"book_title" json:"book_title"`
	StudentName    string `db:"student_name" json:"student_name"`
	RegisterNumber string `db:"register_number" json:"register_number"`
}

// IssueFilter scopes loan listing queries.
type IssueFilter struct {
	StudentID string
	BookID    string
	Status    *IssueStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
