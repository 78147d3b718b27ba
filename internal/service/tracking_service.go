package service

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/geo"
)

const geofenceCacheKey = "tracking:geofence:active"

type geofenceRepository interface {
	FindActive(ctx context.Context) (*models.GeofenceConfig, error)
	Replace(ctx context.Context, fence *models.GeofenceConfig) error
}

type permissionRepository interface {
	FindByStudent(ctx context.Context, studentID string) (*models.LocationPermission, error)
	Upsert(ctx context.Context, perm *models.LocationPermission) error
}

type occupancyRepository interface {
	FindLive(ctx context.Context, studentID string) (*models.LiveOccupancy, error)
	ApplyEntry(ctx context.Context, event *models.OccupancyEvent) error
	ApplyExit(ctx context.Context, event *models.OccupancyEvent) error
	Heartbeat(ctx context.Context, studentID string, at time.Time, lat, lon float64) error
	CountLive(ctx context.Context) (int, error)
	ListOccupants(ctx context.Context) ([]models.Occupant, error)
	ListEvents(ctx context.Context, filter models.OccupancyLogFilter) ([]models.OccupancyEventRecord, int, error)
	RebuildLive(ctx context.Context) (int, error)
}

type trackingStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error)
}

// TrackingService implements the geofence presence engine. It classifies each
// location sample against the active fence and the student's live occupancy
// row, and persists only the resulting transitions.
type TrackingService struct {
	geofences   geofenceRepository
	permissions permissionRepository
	occupancy   occupancyRepository
	students    trackingStudentRepository
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	geofenceTTL time.Duration
	now         func() time.Time

	// Striped per-student locks. Two students may share a stripe, which
	// only serializes them more than strictly required, never less.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

// NewTrackingService constructs the presence engine.
func NewTrackingService(
	geofences geofenceRepository,
	permissions permissionRepository,
	occupancy occupancyRepository,
	students trackingStudentRepository,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	geofenceTTL time.Duration,
) *TrackingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if geofenceTTL <= 0 {
		geofenceTTL = 30 * time.Second
	}
	return &TrackingService{
		geofences:   geofences,
		permissions: permissions,
		occupancy:   occupancy,
		students:    students,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		geofenceTTL: geofenceTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// UpdateLocationRequest carries one GPS fix from a student device.
type UpdateLocationRequest struct {
	StudentID      string     `json:"student_id"`
	RegisterNumber string     `json:"register_number"`
	Latitude       float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64    `json:"longitude" validate:"min=-180,max=180"`
	AccuracyMeters float64    `json:"accuracy_meters" validate:"omitempty,min=0"`
	RecordedAt     *time.Time `json:"recorded_at"`
	DeviceInfo     string     `json:"device_info"`
}

// UpdateLocationResult reports the classification of one sample.
type UpdateLocationResult struct {
	StudentID       string  `json:"student_id"`
	StudentName     string  `json:"student_name"`
	Inside          bool    `json:"inside"`
	DistanceMeters  float64 `json:"distance_meters"`
	Transition      string  `json:"transition"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Message         string  `json:"message"`
}

// PermissionRequest records or revokes a student's tracking consent.
type PermissionRequest struct {
	StudentID      string `json:"student_id"`
	RegisterNumber string `json:"register_number"`
	Granted        bool   `json:"granted"`
	DeviceInfo     string `json:"device_info"`
	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent"`
}

// GeofenceRequest replaces the active campus boundary.
type GeofenceRequest struct {
	Label        string  `json:"label" validate:"required"`
	CenterLat    float64 `json:"center_lat" validate:"min=-90,max=90"`
	CenterLon    float64 `json:"center_lon" validate:"min=-180,max=180"`
	RadiusMeters int     `json:"radius_meters" validate:"required,min=10,max=10000"`
}

// OccupancySnapshot is the current-occupancy read model.
type OccupancySnapshot struct {
	Count     int               `json:"count"`
	AsOf      time.Time         `json:"as_of"`
	Occupants []models.Occupant `json:"occupants"`
}

// UpdateLocation processes one location sample end to end. Updates for the
// same student are serialized so the read-classify-write sequence never
// interleaves; updates for different students proceed concurrently.
func (s *TrackingService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) (*UpdateLocationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		s.reject("validation")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location payload")
	}
	student, err := s.resolveStudent(ctx, req.StudentID, req.RegisterNumber)
	if err != nil {
		s.reject("unknown_student")
		return nil, err
	}
	if !student.Active {
		s.reject("inactive_student")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student account is inactive")
	}

	perm, err := s.permissions.FindByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tracking permission")
	}
	if !perm.Allowed() {
		s.reject("permission_denied")
		return nil, appErrors.ErrLocationPermissionDenied
	}

	fence, err := s.activeFence(ctx)
	if err != nil {
		return nil, err
	}

	recordedAt := s.now()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	lock := s.studentLock(student.ID)
	lock.Lock()
	defer lock.Unlock()

	live, err := s.occupancy.FindLive(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load occupancy state")
	}

	distance := geo.DistanceMeters(req.Latitude, req.Longitude, fence.CenterLat, fence.CenterLon)
	inside := distance <= float64(fence.RadiusMeters)

	result := &UpdateLocationResult{
		StudentID:      student.ID,
		StudentName:    student.FullName,
		Inside:         inside,
		DistanceMeters: distance,
	}

	transition := classify(live != nil, inside)
	switch transition {
	case models.TransitionEntry:
		event := s.newEvent(student.ID, models.EventEntry, req, recordedAt)
		if err := s.occupancy.ApplyEntry(ctx, event); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record entry")
		}
		result.Message = "entry recorded"
	case models.TransitionExit:
		event := s.newEvent(student.ID, models.EventExit, req, recordedAt)
		minutes := flooredMinutes(live.EnteredAt, recordedAt)
		event.DurationMinutes = &minutes
		if err := s.occupancy.ApplyExit(ctx, event); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record exit")
		}
		result.DurationMinutes = &minutes
		result.Message = "exit recorded"
	case models.TransitionStillInside:
		if err := s.occupancy.Heartbeat(ctx, student.ID, recordedAt, req.Latitude, req.Longitude); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh occupancy")
		}
		result.Message = "still inside"
	default:
		result.Message = "still outside"
	}

	result.Transition = transition.Wire()
	if s.metrics != nil {
		s.metrics.RecordTransition(string(transition))
	}
	s.logger.Debug("location processed",
		zap.String("student_id", student.ID),
		zap.String("transition", string(transition)),
		zap.Float64("distance_m", distance))
	return result, nil
}

// GrantPermission upserts the consent record for a student.
func (s *TrackingService) GrantPermission(ctx context.Context, req PermissionRequest) (*models.LocationPermission, error) {
	student, err := s.resolveStudent(ctx, req.StudentID, req.RegisterNumber)
	if err != nil {
		return nil, err
	}
	perm := &models.LocationPermission{
		ID:         uuid.NewString(),
		StudentID:  student.ID,
		Granted:    req.Granted,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		GrantedAt:  s.now(),
		Active:     true,
	}
	if err := s.permissions.Upsert(ctx, perm); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save tracking permission")
	}
	s.logger.Info("tracking permission updated",
		zap.String("student_id", student.ID),
		zap.Bool("granted", req.Granted))
	return perm, nil
}

// ActiveGeofence returns the currently active boundary.
func (s *TrackingService) ActiveGeofence(ctx context.Context) (*models.GeofenceConfig, error) {
	fence, err := s.activeFence(ctx)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrNoActiveGeofence.Code {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active geofence configured")
		}
		return nil, err
	}
	return fence, nil
}

// SetGeofence activates a new boundary, deactivating the previous one.
func (s *TrackingService) SetGeofence(ctx context.Context, req GeofenceRequest) (*models.GeofenceConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid geofence payload")
	}
	now := s.now()
	fence := &models.GeofenceConfig{
		ID:           uuid.NewString(),
		Label:        req.Label,
		CenterLat:    req.CenterLat,
		CenterLon:    req.CenterLon,
		RadiusMeters: req.RadiusMeters,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.geofences.Replace(ctx, fence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace geofence")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, geofenceCacheKey)
	}
	s.logger.Info("geofence replaced",
		zap.String("label", fence.Label),
		zap.Int("radius_m", fence.RadiusMeters))
	return fence, nil
}

// CurrentOccupancy returns the live headcount and roster.
func (s *TrackingService) CurrentOccupancy(ctx context.Context) (*OccupancySnapshot, error) {
	count, err := s.occupancy.CountLive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count occupancy")
	}
	occupants, err := s.occupancy.ListOccupants(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list occupants")
	}
	if s.metrics != nil {
		s.metrics.SetLiveOccupancy(count)
	}
	return &OccupancySnapshot{Count: count, AsOf: s.now(), Occupants: occupants}, nil
}

// Logs returns ledger events with pagination metadata. Defaults are applied
// before the repository call so the envelope always reflects the fetch.
func (s *TrackingService) Logs(ctx context.Context, filter models.OccupancyLogFilter) ([]models.OccupancyEventRecord, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	events, total, err := s.occupancy.ListEvents(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list occupancy events")
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// RebuildLive reconciles the live table from the ledger and returns the
// number of restored rows.
func (s *TrackingService) RebuildLive(ctx context.Context) (int, error) {
	restored, err := s.occupancy.RebuildLive(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rebuild live occupancy")
	}
	if s.metrics != nil {
		s.metrics.SetLiveOccupancy(restored)
	}
	s.logger.Info("live occupancy rebuilt", zap.Int("restored", restored))
	return restored, nil
}

func (s *TrackingService) resolveStudent(ctx context.Context, id, registerNumber string) (*models.Student, error) {
	var (
		student *models.Student
		err     error
	)
	switch {
	case id != "":
		student, err = s.students.FindByID(ctx, id)
	case registerNumber != "":
		student, err = s.students.FindByRegisterNumber(ctx, registerNumber)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id or register_number is required")
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// activeFence resolves the active geofence through the short-TTL cache. No
// fence means tracking fails closed.
func (s *TrackingService) activeFence(ctx context.Context) (*models.GeofenceConfig, error) {
	var cached models.GeofenceConfig
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, geofenceCacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}
	fence, err := s.geofences.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNoActiveGeofence
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load geofence")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, geofenceCacheKey, fence, s.geofenceTTL)
	}
	return fence, nil
}

func (s *TrackingService) studentLock(studentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(studentID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *TrackingService) newEvent(studentID string, kind models.OccupancyEventKind, req UpdateLocationRequest, at time.Time) *models.OccupancyEvent {
	return &models.OccupancyEvent{
		ID:             uuid.NewString(),
		StudentID:      studentID,
		Kind:           kind,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		RecordedAt:     at,
		DeviceInfo:     req.DeviceInfo,
		Valid:          true,
	}
}

func (s *TrackingService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejectedUpdate(reason)
	}
}

func classify(wasInside, isInside bool) models.Transition {
	switch {
	case !wasInside && isInside:
		return models.TransitionEntry
	case wasInside && !isInside:
		return models.TransitionExit
	case wasInside && isInside:
		return models.TransitionStillInside
	default:
		return models.TransitionStillOutside
	}
}

// flooredMinutes returns whole minutes between entry and exit, never
// negative even when clocks disagree.
func flooredMinutes(enteredAt, exitedAt time.Time) int {
	minutes := int(exitedAt.Sub(enteredAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}
