package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
)

// PermissionRepository persists the per-student location tracking opt-in.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// FindByStudent returns the student's permission row, or nil when the student
// never opted in.
func (r *PermissionRepository) FindByStudent(ctx context.Context, studentID string) (*models.LocationPermission, error) {
	const query = `SELECT id, student_id, granted, device_info, ip_address, user_agent, granted_at, is_active
FROM location_permissions WHERE student_id = $1`
	var perm models.LocationPermission
	if err := r.db.GetContext(ctx, &perm, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find location permission: %w", err)
	}
	return &perm, nil
}

// Upsert creates or updates the unique permission row for a student. Rows are
// never hard-deleted; revocation flips the flags.
func (r *PermissionRepository) Upsert(ctx context.Context, perm *models.LocationPermission) error {
	now := time.Now().UTC()
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if perm.GrantedAt.IsZero() {
		perm.GrantedAt = now
	}

	const query = `INSERT INTO location_permissions (id, student_id, granted, device_info, ip_address, user_agent, granted_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id) DO UPDATE SET
	granted = EXCLUDED.granted,
	device_info = EXCLUDED.device_info,
	ip_address = EXCLUDED.ip_address,
	user_agent = EXCLUDED.user_agent,
	granted_at = EXCLUDED.granted_at,
	is_active = EXCLUDED.is_active`
	if _, err := r.db.ExecContext(ctx, query, perm.ID, perm.StudentID, perm.Granted, perm.DeviceInfo, perm.IPAddress, perm.UserAgent, perm.GrantedAt, perm.Active); err != nil {
		return fmt.Errorf("upsert location permission: %w", err)
	}
	return nil
}
