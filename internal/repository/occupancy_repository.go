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
)

// OccupancyRepository persists the entry/exit ledger and the live-occupancy
// snapshot. Both tables are mutated in lockstep inside one transaction so a
// crash can never leave a ledger row without its snapshot counterpart.
type OccupancyRepository struct {
	db *sqlx.DB
}

// NewOccupancyRepository constructs the repository.
func NewOccupancyRepository(db *sqlx.DB) *OccupancyRepository {
	return &OccupancyRepository{db: db}
}

// FindLive returns the live-occupancy row for a student, or nil when the
// student is currently outside.
func (r *OccupancyRepository) FindLive(ctx context.Context, studentID string) (*models.LiveOccupancy, error) {
	const query = `SELECT student_id, entered_at, last_seen_at, latitude, longitude
FROM live_occupancy WHERE student_id = $1`
	var live models.LiveOccupancy
	if err := r.db.GetContext(ctx, &live, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find live occupancy: %w", err)
	}
	return &live, nil
}

// ApplyEntry atomically appends an entry event and inserts the live row.
func (r *OccupancyRepository) ApplyEntry(ctx context.Context, event *models.OccupancyEvent) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}

	const liveQuery = `INSERT INTO live_occupancy (student_id, entered_at, last_seen_at, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, liveQuery, event.StudentID, event.RecordedAt, event.RecordedAt, event.Latitude, event.Longitude); err != nil {
		return fmt.Errorf("insert live occupancy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit entry transaction: %w", err)
	}
	return nil
}

// ApplyExit atomically appends an exit event (with its duration backfill) and
// deletes the live row.
func (r *OccupancyRepository) ApplyExit(ctx context.Context, event *models.OccupancyEvent) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM live_occupancy WHERE student_id = $1`, event.StudentID); err != nil {
		return fmt.Errorf("delete live occupancy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit exit transaction: %w", err)
	}
	return nil
}

// Heartbeat refreshes last-seen and position for a student already inside.
// No ledger row is written.
func (r *OccupancyRepository) Heartbeat(ctx context.Context, studentID string, at time.Time, lat, lon float64) error {
	const query = `UPDATE live_occupancy SET last_seen_at = $1, latitude = $2, longitude = $3 WHERE student_id = $4`
	if _, err := r.db.ExecContext(ctx, query, at, lat, lon, studentID); err != nil {
		return fmt.Errorf("update live occupancy: %w", err)
	}
	return nil
}

// CountLive returns the number of students currently inside.
func (r *OccupancyRepository) CountLive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM live_occupancy`); err != nil {
		return 0, fmt.Errorf("count live occupancy: %w", err)
	}
	return count, nil
}

// ListOccupants returns everyone currently inside with minutes derived at
// query time.
func (r *OccupancyRepository) ListOccupants(ctx context.Context) ([]models.Occupant, error) {
	const query = `SELECT lo.student_id, s.full_name AS student_name, s.register_number, s.department,
	lo.entered_at, lo.last_seen_at,
	FLOOR(EXTRACT(EPOCH FROM (NOW() - lo.entered_at)) / 60)::int AS minutes_inside
FROM live_occupancy lo
JOIN students s ON s.id = lo.student_id
ORDER BY lo.entered_at ASC`
	occupants := []models.Occupant{}
	if err := r.db.SelectContext(ctx, &occupants, query); err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	return occupants, nil
}

// ListEvents returns ledger rows matching the filter, newest first.
func (r *OccupancyRepository) ListEvents(ctx context.Context, filter models.OccupancyLogFilter) ([]models.OccupancyEventRecord, int, error) {
	base := `FROM occupancy_events oe
JOIN students s ON s.id = oe.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("oe.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Kind != nil {
		where = append(where, fmt.Sprintf("oe.kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("oe.recorded_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("oe.recorded_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	// Exports request up to 5000 rows in one page.
	if size > 5000 {
		size = 5000
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT oe.id, oe.student_id, oe.kind, oe.latitude, oe.longitude, oe.accuracy_meters,
	oe.recorded_at, oe.device_info, oe.valid, oe.duration_minutes,
	s.full_name AS student_name, s.register_number, s.department
	%s WHERE %s
	ORDER BY oe.recorded_at DESC
	LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	rows := []models.OccupancyEventRecord{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list occupancy events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count occupancy events: %w", err)
	}
	return rows, total, nil
}

// EventHistory returns a student's full ledger in timestamp order. Used by
// reconciliation tests to check the alternation invariant.
func (r *OccupancyRepository) EventHistory(ctx context.Context, studentID string) ([]models.OccupancyEvent, error) {
	const query = `SELECT id, student_id, kind, latitude, longitude, accuracy_meters, recorded_at, device_info, valid, duration_minutes
FROM occupancy_events WHERE student_id = $1 ORDER BY recorded_at ASC`
	events := []models.OccupancyEvent{}
	if err := r.db.SelectContext(ctx, &events, query, studentID); err != nil {
		return nil, fmt.Errorf("load event history: %w", err)
	}
	return events, nil
}

// RebuildLive reconstructs the live table from the ledger: a student is
// inside iff their most recent event is an entry. The whole rebuild runs in
// one transaction so readers never observe a half-empty snapshot.
func (r *OccupancyRepository) RebuildLive(ctx context.Context) (restored int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rebuild transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM live_occupancy`); err != nil {
		return 0, fmt.Errorf("clear live occupancy: %w", err)
	}

	const restoreQuery = `INSERT INTO live_occupancy (student_id, entered_at, last_seen_at, latitude, longitude)
SELECT latest.student_id, latest.recorded_at, latest.recorded_at, latest.latitude, latest.longitude
FROM (
	SELECT DISTINCT ON (student_id) student_id, kind, recorded_at, latitude, longitude
	FROM occupancy_events
	ORDER BY student_id, recorded_at DESC
) latest
WHERE latest.kind = 'entry'`
	res, err := tx.ExecContext(ctx, restoreQuery)
	if err != nil {
		return 0, fmt.Errorf("restore live occupancy: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil {
		restored = int(n)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rebuild transaction: %w", err)
	}
	return restored, nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, event *models.OccupancyEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	const query = `INSERT INTO occupancy_events (id, student_id, kind, latitude, longitude, accuracy_meters, recorded_at, device_info, valid, duration_minutes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, query, event.ID, event.StudentID, event.Kind, event.Latitude, event.Longitude,
		event.AccuracyMeters, event.RecordedAt, event.DeviceInfo, event.Valid, event.DurationMinutes); err != nil {
		return fmt.Errorf("insert occupancy event: %w", err)
	}
	return nil
}
