package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
)

// FineRepository handles persistence for overdue fines.
type FineRepository struct {
	db *sqlx.DB
}

// NewFineRepository constructs the repository.
func NewFineRepository(db *sqlx.DB) *FineRepository {
	return &FineRepository{db: db}
}

// List returns fines matching the filter.
func (r *FineRepository) List(ctx context.Context, filter models.FineFilter) ([]models.FineRecord, int, error) {
	base := `FROM fines f
JOIN students s ON s.id = f.student_id
JOIN book_issues bi ON bi.id = f.issue_id
JOIN books b ON b.id = bi.book_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("f.status = $%d", len(args)+1))
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

	query := fmt.Sprintf(`SELECT f.id, f.issue_id, f.student_id, f.amount, f.days_late, f.status, f.assessed_at, f.paid_at,
	f.created_at, f.updated_at, s.full_name AS student_name, s.register_number, b.title AS book_title
	%s WHERE %s ORDER BY f.assessed_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	rows := []models.FineRecord{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fines: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fines: %w", err)
	}
	return rows, total, nil
}

// FindByID returns a single fine.
func (r *FineRepository) FindByID(ctx context.Context, id string) (*models.Fine, error) {
	const query = `SELECT id, issue_id, student_id, amount, days_late, status, assessed_at, paid_at, created_at, updated_at
FROM fines WHERE id = $1`
	var fine models.Fine
	if err := r.db.GetContext(ctx, &fine, query, id); err != nil {
		return nil, err
	}
	return &fine, nil
}

// Create inserts a fine.
func (r *FineRepository) Create(ctx context.Context, fine *models.Fine) error {
	now := time.Now().UTC()
	if fine.ID == "" {
		fine.ID = uuid.NewString()
	}
	if fine.AssessedAt.IsZero() {
		fine.AssessedAt = now
	}
	fine.CreatedAt = now
	fine.UpdatedAt = now

	const query = `INSERT INTO fines (id, issue_id, student_id, amount, days_late, status, assessed_at, paid_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, fine.ID, fine.IssueID, fine.StudentID, fine.Amount, fine.DaysLate,
		fine.Status, fine.AssessedAt, fine.PaidAt, fine.CreatedAt, fine.UpdatedAt); err != nil {
		return fmt.Errorf("insert fine: %w", err)
	}
	return nil
}

// SetStatus updates a fine's settlement status.
func (r *FineRepository) SetStatus(ctx context.Context, id string, status models.FineStatus, paidAt *time.Time) error {
	const query = `UPDATE fines SET status = $1, paid_at = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, status, paidAt, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update fine status: %w", err)
	}
	return nil
}
