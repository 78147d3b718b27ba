package models

// HourlyCount is one bucket of the entry histogram.
type HourlyCount struct {
	Hour  int `db:"hour" json:"hour"`
	Count int `db:"count" json:"count"`
}

// DepartmentCount aggregates visits per department.
type DepartmentCount struct {
	Department string `db:"department" json:"department"`
	Count      int    `db:"count" json:"count"`
}

// TrackingAnalytics is the dashboard aggregation over the occupancy ledger.
type TrackingAnalytics struct {
	Date            string            `json:"date"`
	EntryCount      int               `json:"entry_count"`
	ExitCount       int               `json:"exit_count"`
	UniqueVisitors  int               `json:"unique_visitors"`
	CurrentlyInside int               `json:"currently_inside"`
	HourlyEntries   []HourlyCount     `json:"hourly_entries"`
	Departments     []DepartmentCount `json:"departments"`
}
