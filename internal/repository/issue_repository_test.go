package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

func newIssueMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestIssueRepositoryCreateIssueDecrementsCopies(t *testing.T) {
	db, mock, cleanup := newIssueMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books SET available_copies = available_copies - 1").
		WithArgs(sqlmock.AnyArg(), "book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO book_issues").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	issue := &models.BookIssue{
		BookID:    "book-1",
		StudentID: "student-1",
		IssuedAt:  now,
		DueAt:     now.Add(14 * 24 * time.Hour),
		Status:    models.IssueStatusIssued,
	}
	require.NoError(t, repo.CreateIssue(context.Background(), issue))
	assert.NotEmpty(t, issue.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryCreateIssueNoCopies(t *testing.T) {
	db, mock, cleanup := newIssueMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books SET available_copies = available_copies - 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateIssue(context.Background(), &models.BookIssue{BookID: "book-1", StudentID: "student-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrBookUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryReturnIssue(t *testing.T) {
	db, mock, cleanup := newIssueMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	issuedAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "book_id", "student_id", "issued_at", "due_at", "returned_at", "status", "created_at", "updated_at"}).
		AddRow("issue-1", "book-1", "student-1", issuedAt, issuedAt.Add(14*24*time.Hour), nil, "ISSUED", issuedAt, issuedAt)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, book_id, student_id, issued_at").
		WithArgs("issue-1").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE book_issues SET returned_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET available_copies = available_copies \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	returnedAt := time.Now().UTC()
	issue, err := repo.ReturnIssue(context.Background(), "issue-1", returnedAt)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReturned, issue.Status)
	require.NotNil(t, issue.ReturnedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryReturnIssueAlreadyReturned(t *testing.T) {
	db, mock, cleanup := newIssueMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	returnedAt := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "book_id", "student_id", "issued_at", "due_at", "returned_at", "status", "created_at", "updated_at"}).
		AddRow("issue-1", "book-1", "student-1", returnedAt, returnedAt, returnedAt, "RETURNED", returnedAt, returnedAt)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, book_id, student_id, issued_at").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.ReturnIssue(context.Background(), "issue-1", returnedAt)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
