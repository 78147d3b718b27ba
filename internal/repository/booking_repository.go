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

// BookingRepository handles persistence for physical resource bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// List returns bookings matching the filter.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingRecord, int, error) {
	base := `FROM resource_bookings rb
JOIN students s ON s.id = rb.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("rb.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ResourceType != nil {
		where = append(where, fmt.Sprintf("rb.resource_type = $%d", len(args)+1))
		args = append(args, *filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where = append(where, fmt.Sprintf("rb.resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("rb.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("rb.starts_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("rb.ends_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf(`SELECT rb.id, rb.student_id, rb.resource_type, rb.resource_id, rb.starts_at, rb.ends_at, rb.status,
	rb.created_at, rb.updated_at, s.full_name AS student_name, s.register_number
	%s WHERE %s ORDER BY rb.starts_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	rows := []models.BookingRecord{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return rows, total, nil
}

// FindByID returns a single booking.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.ResourceBooking, error) {
	const query = `SELECT id, student_id, resource_type, resource_id, starts_at, ends_at, status, created_at, updated_at
FROM resource_bookings WHERE id = $1`
	var booking models.ResourceBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// HasOverlap reports whether an active booking already occupies the resource
// during the requested window.
func (r *BookingRepository) HasOverlap(ctx context.Context, resourceType models.ResourceType, resourceID string, startsAt, endsAt time.Time) (bool, error) {
	const query = `SELECT COUNT(*) FROM resource_bookings
WHERE resource_type = $1 AND resource_id = $2 AND status = 'ACTIVE'
AND starts_at < $4 AND ends_at > $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, resourceType, resourceID, startsAt, endsAt); err != nil {
		return false, fmt.Errorf("check booking overlap: %w", err)
	}
	return count > 0, nil
}

// Create inserts a booking.
func (r *BookingRepository) Create(ctx context.Context, booking *models.ResourceBooking) error {
	now := time.Now().UTC()
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now

	const query = `INSERT INTO resource_bookings (id, student_id, resource_type, resource_id, starts_at, ends_at, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, booking.ID, booking.StudentID, booking.ResourceType, booking.ResourceID,
		booking.StartsAt, booking.EndsAt, booking.Status, booking.CreatedAt, booking.UpdatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// SetStatus updates the booking lifecycle status.
func (r *BookingRepository) SetStatus(ctx context.Context, id string, status models.BookingStatus) error {
	const query = `UPDATE resource_bookings SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}
