package models

import "time"

// GeofenceConfig is a circular campus boundary. At most one row is active at
// any time; the repository enforces this by deactivating the previous row in
// the same transaction that activates a new one.
type GeofenceConfig struct {
	ID           string    `db:"id" json:"id"`
	Label        string    `db:"label" json:"label"`
	CenterLat    float64   `db:"center_lat" json:"center_lat"`
	CenterLon    float64   `db:"center_lon" json:"center_lon"`
	RadiusMeters int       `db:"radius_meters" json:"radius_meters"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
