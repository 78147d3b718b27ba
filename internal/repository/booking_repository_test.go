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

func newBookingMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookingRepositoryHasOverlap(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(models.ResourceStudyRoom, "room-2", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	overlap, err := repo.HasOverlap(context.Background(), models.ResourceStudyRoom, "room-2", start, end)
	require.NoError(t, err)
	assert.True(t, overlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec("INSERT INTO resource_bookings").
		WithArgs(sqlmock.AnyArg(), "student-1", models.ResourceSeat, "seat-14", sqlmock.AnyArg(), sqlmock.AnyArg(),
			models.BookingStatusActive, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.ResourceBooking{
		StudentID:    "student-1",
		ResourceType: models.ResourceSeat,
		ResourceID:   "seat-14",
		StartsAt:     time.Now().UTC(),
		EndsAt:       time.Now().UTC().Add(time.Hour),
		Status:       models.BookingStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), booking))
	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
