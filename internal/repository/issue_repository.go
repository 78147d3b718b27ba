package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

// IssueRepository handles persistence for book loans. Issue and return both
// adjust the book's available-copies counter in the same transaction as the
// loan row.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// List returns loans matching the filter.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.BookIssueRecord, int, error) {
	base := `FROM book_issues bi
JOIN books b ON b.id = bi.book_id
JOIN students s ON s.id = bi.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("bi.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		where = append(where, fmt.Sprintf("bi.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("bi.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT bi.id, bi.book_id, bi.student_id, bi.issued_at, bi.due_at, bi.returned_at, bi.status,
	bi.created_at, bi.updated_at, b.title AS book_title, s.full_name AS student_name, s.register_number
	%s WHERE %s ORDER BY bi.issued_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	rows := []models.BookIssueRecord{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	return rows, total, nil
}

// FindByID returns a single loan.
func (r *IssueRepository) FindByID(ctx context.Context, id string) (*models.BookIssue, error) {
	const query = `SELECT id, book_id, student_id, issued_at, due_at, returned_at, status, created_at, updated_at
FROM book_issues WHERE id = $1`
	var issue models.BookIssue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CountActiveByStudent returns the student's open loan count.
func (r *IssueRepository) CountActiveByStudent(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM book_issues WHERE student_id = $1 AND status <> 'RETURNED'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count active issues: %w", err)
	}
	return count, nil
}

// CreateIssue inserts a loan and decrements the available-copies counter,
// failing with ErrBookUnavailable when no copy is left.
func (r *IssueRepository) CreateIssue(ctx context.Context, issue *models.BookIssue) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1, updated_at = $1
WHERE id = $2 AND available_copies > 0`, time.Now().UTC(), issue.BookID)
	if err != nil {
		return fmt.Errorf("decrement copies: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
		err = appErrors.ErrBookUnavailable
		return err
	}

	now := time.Now().UTC()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now

	const insertQuery = `INSERT INTO book_issues (id, book_id, student_id, issued_at, due_at, returned_at, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err = tx.ExecContext(ctx, insertQuery, issue.ID, issue.BookID, issue.StudentID, issue.IssuedAt, issue.DueAt,
		issue.ReturnedAt, issue.Status, issue.CreatedAt, issue.UpdatedAt); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit issue transaction: %w", err)
	}
	return nil
}

// ReturnIssue marks a loan returned and increments the available-copies
// counter in one transaction.
func (r *IssueRepository) ReturnIssue(ctx context.Context, id string, returnedAt time.Time) (issue *models.BookIssue, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin return transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.BookIssue
	const selectQuery = `SELECT id, book_id, student_id, issued_at, due_at, returned_at, status, created_at, updated_at
FROM book_issues WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.ErrNotFound
		}
		return nil, err
	}
	if current.Status == models.IssueStatusReturned {
		err = appErrors.Clone(appErrors.ErrConflict, "loan already returned")
		return nil, err
	}

	const updateQuery = `UPDATE book_issues SET returned_at = $1, status = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, updateQuery, returnedAt, models.IssueStatusReturned, returnedAt, id); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies + 1, updated_at = $1 WHERE id = $2`,
		returnedAt, current.BookID); err != nil {
		return nil, fmt.Errorf("increment copies: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return transaction: %w", err)
	}

	current.ReturnedAt = &returnedAt
	current.Status = models.IssueStatusReturned
	current.UpdatedAt = returnedAt
	return &current, nil
}

// ListOverdue returns open loans past their due date without a fine yet.
// Used by the background fine sweep.
func (r *IssueRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]models.BookIssue, error) {
	const query = `SELECT bi.id, bi.book_id, bi.student_id, bi.issued_at, bi.due_at, bi.returned_at, bi.status, bi.created_at, bi.updated_at
FROM book_issues bi
LEFT JOIN fines f ON f.issue_id = bi.id
WHERE bi.status <> 'RETURNED' AND bi.due_at < $1 AND f.id IS NULL
ORDER BY bi.due_at ASC`
	issues := []models.BookIssue{}
	if err := r.db.SelectContext(ctx, &issues, query, asOf); err != nil {
		return nil, fmt.Errorf("list overdue issues: %w", err)
	}
	return issues, nil
}

// MarkOverdue flips open past-due loans to OVERDUE.
func (r *IssueRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	const query = `UPDATE book_issues SET status = 'OVERDUE', updated_at = $1
WHERE status = 'ISSUED' AND due_at < $1`
	res, err := r.db.ExecContext(ctx, query, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
