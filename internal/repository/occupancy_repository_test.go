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
)

func newOccupancyMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestOccupancyRepositoryApplyEntryIsTransactional(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO occupancy_events").
		WithArgs(sqlmock.AnyArg(), "student-1", models.EventEntry, 13.0827, 80.2707, 8.0, sqlmock.AnyArg(), "android", true, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO live_occupancy").
		WithArgs("student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), 13.0827, 80.2707).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	event := &models.OccupancyEvent{
		StudentID:      "student-1",
		Kind:           models.EventEntry,
		Latitude:       13.0827,
		Longitude:      80.2707,
		AccuracyMeters: 8.0,
		DeviceInfo:     "android",
		Valid:          true,
	}
	require.NoError(t, repo.ApplyEntry(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryApplyEntryRollsBackOnLiveInsertFailure(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO occupancy_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO live_occupancy").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ApplyEntry(context.Background(), &models.OccupancyEvent{
		StudentID: "student-1",
		Kind:      models.EventEntry,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryApplyExitDeletesLiveRow(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	duration := 125
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO occupancy_events").
		WithArgs(sqlmock.AnyArg(), "student-1", models.EventExit, 13.10, 80.30, 12.0, sqlmock.AnyArg(), "android", true, &duration).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM live_occupancy WHERE student_id").
		WithArgs("student-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyExit(context.Background(), &models.OccupancyEvent{
		StudentID:       "student-1",
		Kind:            models.EventExit,
		Latitude:        13.10,
		Longitude:       80.30,
		AccuracyMeters:  12.0,
		DeviceInfo:      "android",
		Valid:           true,
		DurationMinutes: &duration,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryHeartbeatDoesNotTouchLedger(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE live_occupancy SET last_seen_at").
		WithArgs(at, 13.0828, 80.2708, "student-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Heartbeat(context.Background(), "student-1", at, 13.0828, 80.2708))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryFindLiveAbsentMeansOutside(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	mock.ExpectQuery("SELECT student_id, entered_at, last_seen_at, latitude, longitude").
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "entered_at", "last_seen_at", "latitude", "longitude"}))

	live, err := repo.FindLive(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Nil(t, live)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryRebuildLive(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM live_occupancy").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO live_occupancy").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	restored, err := repo.RebuildLive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryListEvents(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "latitude", "longitude", "accuracy_meters",
		"recorded_at", "device_info", "valid", "duration_minutes", "student_name", "register_number", "department"}).
		AddRow("evt-1", "student-1", "entry", 13.0827, 80.2707, 5.0, now, "android", true, nil, "Priya", "21CS042", "CSE")
	mock.ExpectQuery("SELECT oe.id, oe.student_id, oe.kind").
		WithArgs("student-1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.ListEvents(context.Background(), models.OccupancyLogFilter{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Priya", events[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyRepositoryListEventsPageSizeBounds(t *testing.T) {
	db, mock, cleanup := newOccupancyMock(t)
	defer cleanup()
	repo := NewOccupancyRepository(db)

	emptyRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "student_id", "kind", "latitude", "longitude", "accuracy_meters",
			"recorded_at", "device_info", "valid", "duration_minutes", "student_name", "register_number", "department"})
	}

	// Unset page size falls back to 20 rows.
	mock.ExpectQuery("LIMIT 20 OFFSET 0").WillReturnRows(emptyRows())
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	_, _, err := repo.ListEvents(context.Background(), models.OccupancyLogFilter{})
	require.NoError(t, err)

	// Oversized requests clamp to the export bound, never below it.
	mock.ExpectQuery("LIMIT 5000 OFFSET 0").WillReturnRows(emptyRows())
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	_, _, err = repo.ListEvents(context.Background(), models.OccupancyLogFilter{PageSize: 9999})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
