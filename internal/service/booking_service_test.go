package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

type mockBookingRepo struct {
	bookings map[string]models.ResourceBooking
	overlap  bool
}

func (m *mockBookingRepo) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingRecord, int, error) {
	records := make([]models.BookingRecord, 0, len(m.bookings))
	for _, booking := range m.bookings {
		records = append(records, models.BookingRecord{ResourceBooking: booking})
	}
	return records, len(records), nil
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*models.ResourceBooking, error) {
	if booking, ok := m.bookings[id]; ok {
		return &booking, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) HasOverlap(ctx context.Context, resourceType models.ResourceType, resourceID string, startsAt, endsAt time.Time) (bool, error) {
	return m.overlap, nil
}

func (m *mockBookingRepo) Create(ctx context.Context, booking *models.ResourceBooking) error {
	if m.bookings == nil {
		m.bookings = make(map[string]models.ResourceBooking)
	}
	m.bookings[booking.ID] = *booking
	return nil
}

func (m *mockBookingRepo) SetStatus(ctx context.Context, id string, status models.BookingStatus) error {
	booking := m.bookings[id]
	booking.Status = status
	m.bookings[id] = booking
	return nil
}

func validBookingRequest() CreateBookingRequest {
	start := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	return CreateBookingRequest{
		StudentID:    "stu-1",
		ResourceType: "study_room",
		ResourceID:   "room-2",
		StartsAt:     start,
		EndsAt:       start.Add(2 * time.Hour),
	}
}

func TestBookingCreate(t *testing.T) {
	repo := &mockBookingRepo{bookings: make(map[string]models.ResourceBooking)}
	svc := NewBookingService(repo, validator.New(), zap.NewNop())

	booking, err := svc.Create(context.Background(), validBookingRequest())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusActive, booking.Status)
	assert.Equal(t, models.ResourceStudyRoom, booking.ResourceType)
	assert.Len(t, repo.bookings, 1)
}

func TestBookingCreateOverlap(t *testing.T) {
	repo := &mockBookingRepo{overlap: true}
	svc := NewBookingService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), validBookingRequest())
	require.ErrorIs(t, err, appErrors.ErrBookingConflict)
}

func TestBookingCreateInvalidWindow(t *testing.T) {
	svc := NewBookingService(&mockBookingRepo{}, validator.New(), zap.NewNop())

	req := validBookingRequest()
	req.EndsAt = req.StartsAt
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingCreateUnknownResourceType(t *testing.T) {
	svc := NewBookingService(&mockBookingRepo{}, validator.New(), zap.NewNop())

	req := validBookingRequest()
	req.ResourceType = "locker"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingCancel(t *testing.T) {
	repo := &mockBookingRepo{bookings: map[string]models.ResourceBooking{
		"bk-1": {ID: "bk-1", Status: models.BookingStatusActive},
	}}
	svc := NewBookingService(repo, validator.New(), zap.NewNop())

	require.NoError(t, svc.Cancel(context.Background(), "bk-1"))
	assert.Equal(t, models.BookingStatusCancelled, repo.bookings["bk-1"].Status)
}

func TestBookingCancelNotActive(t *testing.T) {
	repo := &mockBookingRepo{bookings: map[string]models.ResourceBooking{
		"bk-1": {ID: "bk-1", Status: models.BookingStatusCompleted},
	}}
	svc := NewBookingService(repo, validator.New(), zap.NewNop())

	err := svc.Cancel(context.Background(), "bk-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
