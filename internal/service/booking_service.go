package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

type bookingRepository interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.ResourceBooking, error)
	HasOverlap(ctx context.Context, resourceType models.ResourceType, resourceID string, startsAt, endsAt time.Time) (bool, error)
	Create(ctx context.Context, booking *models.ResourceBooking) error
	SetStatus(ctx context.Context, id string, status models.BookingStatus) error
}

// CreateBookingRequest reserves a resource for a time window.
type CreateBookingRequest struct {
	StudentID    string    `json:"student_id" validate:"required"`
	ResourceType string    `json:"resource_type" validate:"required,resource_type"`
	ResourceID   string    `json:"resource_id" validate:"required"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	EndsAt       time.Time `json:"ends_at" validate:"required"`
}

// BookingService handles seat, computer and study room reservations.
type BookingService struct {
	repo      bookingRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       nowFunc
}

// NewBookingService constructs the booking service.
func NewBookingService(repo bookingRepository, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BookingService{repo: repo, validator: validate, logger: logger, now: utcNow}
	svc.validator.RegisterValidation("resource_type", func(fl validator.FieldLevel) bool {
		return models.ResourceType(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// List returns bookings and pagination metadata.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingRecord, *models.Pagination, error) {
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, paginate(filter.Page, filter.PageSize, total), nil
}

// Create reserves the resource when the window is free.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*models.ResourceBooking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ends_at must be after starts_at")
	}
	resourceType := models.ResourceType(strings.ToUpper(req.ResourceType))
	taken, err := s.repo.HasOverlap(ctx, resourceType, req.ResourceID, req.StartsAt.UTC(), req.EndsAt.UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check availability")
	}
	if taken {
		return nil, appErrors.ErrBookingConflict
	}
	now := s.now()
	booking := &models.ResourceBooking{
		ID:           uuid.NewString(),
		StudentID:    req.StudentID,
		ResourceType: resourceType,
		ResourceID:   req.ResourceID,
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		Status:       models.BookingStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	s.logger.Info("resource booked",
		zap.String("resource_type", string(booking.ResourceType)),
		zap.String("resource_id", booking.ResourceID))
	return booking, nil
}

// Cancel releases an active booking.
func (s *BookingService) Cancel(ctx context.Context, id string) error {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.Status != models.BookingStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "booking is not active")
	}
	if err := s.repo.SetStatus(ctx, id, models.BookingStatusCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	return nil
}
