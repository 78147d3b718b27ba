package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
)

// GeofenceRepository handles persistence for geofence configuration.
type GeofenceRepository struct {
	db *sqlx.DB
}

// NewGeofenceRepository constructs the repository.
func NewGeofenceRepository(db *sqlx.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

// FindActive returns the single active geofence. sql.ErrNoRows surfaces when
// none is configured; callers translate that into the fail-closed condition.
func (r *GeofenceRepository) FindActive(ctx context.Context) (*models.GeofenceConfig, error) {
	const query = `SELECT id, label, center_lat, center_lon, radius_meters, active, created_at, updated_at
FROM geofence_configs WHERE active = true ORDER BY updated_at DESC LIMIT 1`
	var fence models.GeofenceConfig
	if err := r.db.GetContext(ctx, &fence, query); err != nil {
		return nil, err
	}
	return &fence, nil
}

// Replace activates the provided geofence and deactivates every other row in
// one transaction, preserving the single-active invariant.
func (r *GeofenceRepository) Replace(ctx context.Context, fence *models.GeofenceConfig) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin geofence replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE geofence_configs SET active = false, updated_at = $1 WHERE active = true`, now); err != nil {
		return fmt.Errorf("deactivate geofences: %w", err)
	}

	if fence.ID == "" {
		fence.ID = uuid.NewString()
	}
	fence.Active = true
	fence.CreatedAt = now
	fence.UpdatedAt = now

	const insertQuery = `INSERT INTO geofence_configs (id, label, center_lat, center_lon, radius_meters, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, true, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertQuery, fence.ID, fence.Label, fence.CenterLat, fence.CenterLon, fence.RadiusMeters, fence.CreatedAt, fence.UpdatedAt); err != nil {
		return fmt.Errorf("insert geofence: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit geofence replace: %w", err)
	}
	return nil
}
