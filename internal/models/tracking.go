package models

import "time"

// Transition classifies the outcome of a processed location sample.
// Only entries and exits touch the occupancy ledger; the two "still" cases
// are heartbeats.
type Transition string

const (
	TransitionEntry        Transition = "entry"
	TransitionExit         Transition = "exit"
	TransitionStillInside  Transition = "still_inside"
	TransitionStillOutside Transition = "still_outside"
)

// StatusChanged reports whether the transition crossed the boundary.
func (t Transition) StatusChanged() bool {
	return t == TransitionEntry || t == TransitionExit
}

// Wire returns the transition vocabulary exposed to clients: "entry",
// "exit" or "none".
func (t Transition) Wire() string {
	if t.StatusChanged() {
		return string(t)
	}
	return "none"
}

// OccupancyEventKind is the ledger event type.
type OccupancyEventKind string

const (
	EventEntry OccupancyEventKind = "entry"
	EventExit  OccupancyEventKind = "exit"
)

// LocationPermission is the per-student opt-in gate for location tracking.
// At most one row exists per student; revocation toggles flags instead of
// deleting the row.
type LocationPermission struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Granted    bool      `db:"granted" json:"granted"`
	DeviceInfo string    `db:"device_info" json:"device_info"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	GrantedAt  time.Time `db:"granted_at" json:"granted_at"`
	Active     bool      `db:"is_active" json:"is_active"`
}

// Allowed reports whether the permission authorizes location updates.
func (p *LocationPermission) Allowed() bool {
	return p != nil && p.Granted && p.Active
}

// OccupancyEvent is one row of the append-only entry/exit ledger. Rows are
// never updated except the duration backfill on the terminating exit, and
// never deleted.
type OccupancyEvent struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	Kind            OccupancyEventKind `db:"kind" json:"kind"`
	Latitude        float64            `db:"latitude" json:"latitude"`
	Longitude       float64            `db:"longitude" json:"longitude"`
	AccuracyMeters  float64            `db:"accuracy_meters" json:"accuracy_meters"`
	RecordedAt      time.Time          `db:"recorded_at" json:"recorded_at"`
	DeviceInfo      string             `db:"device_info" json:"device_info"`
	Valid           bool               `db:"valid" json:"valid"`
	DurationMinutes *int               `db:"duration_minutes" json:"duration_minutes,omitempty"`
}

// OccupancyEventRecord extends a ledger row with student metadata.
type OccupancyEventRecord struct {
	OccupancyEvent
	StudentName    string `db:"student_name" json:"student_name"`
	RegisterNumber string `db:"register_number" json:"register_number"`
	Department     string `db:"department" json:"department"`
}

// LiveOccupancy is the denormalized snapshot of a student currently inside
// the geofence. A row exists iff the student's latest ledger event is an
// unmatched entry.
type LiveOccupancy struct {
	StudentID  string    `db:"student_id" json:"student_id"`
	EnteredAt  time.Time `db:"entered_at" json:"entered_at"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
}

// Occupant is a live-occupancy row joined with the student directory,
// with minutes inside derived at query time.
type Occupant struct {
	StudentID      string    `db:"student_id" json:"student_id"`
	StudentName    string    `db:"student_name" json:"student_name"`
	RegisterNumber string    `db:"register_number" json:"register_number"`
	Department     string    `db:"department" json:"department"`
	EnteredAt      time.Time `db:"entered_at" json:"entered_at"`
	LastSeenAt     time.Time `db:"last_seen_at" json:"last_seen_at"`
	MinutesInside  int       `db:"minutes_inside" json:"minutes_inside"`
}

// LocationSample is a transient GPS fix carried in request payloads. Only
// transitions derived from samples are persisted, never the samples
// themselves.
type LocationSample struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	RecordedAt     time.Time
	DeviceInfo     string
}

// OccupancyLogFilter scopes ledger queries.
type OccupancyLogFilter struct {
	StudentID string
	Kind      *OccupancyEventKind
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
