package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

// Fence centered on the library entrance in Chennai, 100 m radius.
const (
	testCenterLat = 13.0827
	testCenterLon = 80.2707
)

type mockGeofenceRepo struct {
	fence    *models.GeofenceConfig
	replaced []*models.GeofenceConfig
}

func (m *mockGeofenceRepo) FindActive(ctx context.Context) (*models.GeofenceConfig, error) {
	if m.fence == nil {
		return nil, sql.ErrNoRows
	}
	return m.fence, nil
}

func (m *mockGeofenceRepo) Replace(ctx context.Context, fence *models.GeofenceConfig) error {
	m.replaced = append(m.replaced, fence)
	m.fence = fence
	return nil
}

type mockPermissionRepo struct {
	perms    map[string]*models.LocationPermission
	upserted []*models.LocationPermission
}

func (m *mockPermissionRepo) FindByStudent(ctx context.Context, studentID string) (*models.LocationPermission, error) {
	return m.perms[studentID], nil
}

func (m *mockPermissionRepo) Upsert(ctx context.Context, perm *models.LocationPermission) error {
	if m.perms == nil {
		m.perms = make(map[string]*models.LocationPermission)
	}
	m.perms[perm.StudentID] = perm
	m.upserted = append(m.upserted, perm)
	return nil
}

type mockOccupancyRepo struct {
	mu          sync.Mutex
	live        map[string]*models.LiveOccupancy
	events      []*models.OccupancyEvent
	heartbeats  []string
	restored    int
	eventFilter models.OccupancyLogFilter
}

func newMockOccupancyRepo() *mockOccupancyRepo {
	return &mockOccupancyRepo{live: make(map[string]*models.LiveOccupancy)}
}

func (m *mockOccupancyRepo) FindLive(ctx context.Context, studentID string) (*models.LiveOccupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.live[studentID]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (m *mockOccupancyRepo) ApplyEntry(ctx context.Context, event *models.OccupancyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.live[event.StudentID] = &models.LiveOccupancy{
		StudentID:  event.StudentID,
		EnteredAt:  event.RecordedAt,
		LastSeenAt: event.RecordedAt,
		Latitude:   event.Latitude,
		Longitude:  event.Longitude,
	}
	return nil
}

func (m *mockOccupancyRepo) ApplyExit(ctx context.Context, event *models.OccupancyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	delete(m.live, event.StudentID)
	return nil
}

func (m *mockOccupancyRepo) Heartbeat(ctx context.Context, studentID string, at time.Time, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, studentID)
	if row, ok := m.live[studentID]; ok {
		row.LastSeenAt = at
		row.Latitude = lat
		row.Longitude = lon
	}
	return nil
}

func (m *mockOccupancyRepo) CountLive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live), nil
}

func (m *mockOccupancyRepo) ListOccupants(ctx context.Context) ([]models.Occupant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	occupants := make([]models.Occupant, 0, len(m.live))
	for _, row := range m.live {
		occupants = append(occupants, models.Occupant{StudentID: row.StudentID, EnteredAt: row.EnteredAt})
	}
	return occupants, nil
}

func (m *mockOccupancyRepo) ListEvents(ctx context.Context, filter models.OccupancyLogFilter) ([]models.OccupancyEventRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventFilter = filter
	records := make([]models.OccupancyEventRecord, 0, len(m.events))
	for _, ev := range m.events {
		records = append(records, models.OccupancyEventRecord{OccupancyEvent: *ev})
	}
	return records, len(records), nil
}

func (m *mockOccupancyRepo) RebuildLive(ctx context.Context) (int, error) {
	return m.restored, nil
}

func (m *mockOccupancyRepo) eventKinds() []models.OccupancyEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]models.OccupancyEventKind, 0, len(m.events))
	for _, ev := range m.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

type mockTrackingStudentRepo struct {
	students map[string]models.Student
}

func (m *mockTrackingStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTrackingStudentRepo) FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error) {
	for _, s := range m.students {
		if s.RegisterNumber == registerNumber {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

type trackingFixture struct {
	svc         *TrackingService
	geofences   *mockGeofenceRepo
	permissions *mockPermissionRepo
	occupancy   *mockOccupancyRepo
	students    *mockTrackingStudentRepo
}

func newTrackingFixture(t *testing.T) *trackingFixture {
	t.Helper()
	geofences := &mockGeofenceRepo{fence: &models.GeofenceConfig{
		ID:           "fence-1",
		Label:        "Central Library",
		CenterLat:    testCenterLat,
		CenterLon:    testCenterLon,
		RadiusMeters: 100,
		Active:       true,
	}}
	permissions := &mockPermissionRepo{perms: map[string]*models.LocationPermission{
		"stu-1": {ID: "perm-1", StudentID: "stu-1", Granted: true, Active: true},
	}}
	occupancy := newMockOccupancyRepo()
	students := &mockTrackingStudentRepo{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", RegisterNumber: "REG001", FullName: "Asha Kumar", Department: "CSE", Active: true},
		"stu-2": {ID: "stu-2", RegisterNumber: "REG002", FullName: "Ravi Menon", Department: "ECE", Active: false},
	}}
	svc := NewTrackingService(geofences, permissions, occupancy, students, nil, nil, validator.New(), zap.NewNop(), time.Second)
	return &trackingFixture{svc: svc, geofences: geofences, permissions: permissions, occupancy: occupancy, students: students}
}

func insideRequest(studentID string) UpdateLocationRequest {
	return UpdateLocationRequest{StudentID: studentID, Latitude: testCenterLat, Longitude: testCenterLon, AccuracyMeters: 5}
}

func outsideRequest(studentID string) UpdateLocationRequest {
	// Roughly 1.1 km north of the fence center.
	return UpdateLocationRequest{StudentID: studentID, Latitude: testCenterLat + 0.01, Longitude: testCenterLon, AccuracyMeters: 5}
}

func TestUpdateLocationPermissionDenied(t *testing.T) {
	f := newTrackingFixture(t)
	f.permissions.perms["stu-1"].Granted = false

	_, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-1"))
	require.ErrorIs(t, err, appErrors.ErrLocationPermissionDenied)
	assert.Empty(t, f.occupancy.events)
}

func TestUpdateLocationMissingPermissionRow(t *testing.T) {
	f := newTrackingFixture(t)
	delete(f.permissions.perms, "stu-1")

	_, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-1"))
	require.ErrorIs(t, err, appErrors.ErrLocationPermissionDenied)
}

func TestUpdateLocationEntry(t *testing.T) {
	f := newTrackingFixture(t)

	result, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-1"))
	require.NoError(t, err)
	assert.True(t, result.Inside)
	assert.Equal(t, "entry", result.Transition)
	assert.Less(t, result.DistanceMeters, 100.0)

	require.Len(t, f.occupancy.events, 1)
	assert.Equal(t, models.EventEntry, f.occupancy.events[0].Kind)
	assert.Contains(t, f.occupancy.live, "stu-1")
}

func TestUpdateLocationHeartbeatDoesNotDuplicateEntry(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)

	result, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, "none", result.Transition)
	assert.True(t, result.Inside)

	assert.Len(t, f.occupancy.events, 1)
	assert.Equal(t, []string{"stu-1"}, f.occupancy.heartbeats)
}

func TestUpdateLocationExitComputesDuration(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	entered := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return entered }
	_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return entered.Add(125 * time.Minute) }
	result, err := f.svc.UpdateLocation(ctx, outsideRequest("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, "exit", result.Transition)
	assert.False(t, result.Inside)
	require.NotNil(t, result.DurationMinutes)
	assert.Equal(t, 125, *result.DurationMinutes)

	require.Len(t, f.occupancy.events, 2)
	exit := f.occupancy.events[1]
	assert.Equal(t, models.EventExit, exit.Kind)
	require.NotNil(t, exit.DurationMinutes)
	assert.Equal(t, 125, *exit.DurationMinutes)
	assert.NotContains(t, f.occupancy.live, "stu-1")
}

func TestUpdateLocationDurationFloorsPartialMinutes(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	entered := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return entered }
	_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return entered.Add(10*time.Minute + 59*time.Second) }
	result, err := f.svc.UpdateLocation(ctx, outsideRequest("stu-1"))
	require.NoError(t, err)
	require.NotNil(t, result.DurationMinutes)
	assert.Equal(t, 10, *result.DurationMinutes)
}

func TestUpdateLocationDurationClampedWhenClocksDisagree(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	entered := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return entered }
	_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)

	// Exit stamped before the entry it closes.
	f.svc.now = func() time.Time { return entered.Add(-5 * time.Minute) }
	result, err := f.svc.UpdateLocation(ctx, outsideRequest("stu-1"))
	require.NoError(t, err)
	require.NotNil(t, result.DurationMinutes)
	assert.Equal(t, 0, *result.DurationMinutes)
}

func TestUpdateLocationStillOutsideTouchesNothing(t *testing.T) {
	f := newTrackingFixture(t)

	result, err := f.svc.UpdateLocation(context.Background(), outsideRequest("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, "none", result.Transition)
	assert.False(t, result.Inside)
	assert.Empty(t, f.occupancy.events)
	assert.Empty(t, f.occupancy.heartbeats)
}

func TestUpdateLocationBoundaryCountsInside(t *testing.T) {
	f := newTrackingFixture(t)
	f.geofences.fence.RadiusMeters = 0

	// Zero distance against a zero radius still counts as inside.
	result, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-1"))
	require.NoError(t, err)
	assert.True(t, result.Inside)
	assert.Equal(t, "entry", result.Transition)
}

func TestUpdateLocationNoActiveGeofence(t *testing.T) {
	f := newTrackingFixture(t)
	f.geofences.fence = nil

	_, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-1"))
	require.ErrorIs(t, err, appErrors.ErrNoActiveGeofence)
	assert.Empty(t, f.occupancy.events)
}

func TestUpdateLocationValidation(t *testing.T) {
	f := newTrackingFixture(t)

	_, err := f.svc.UpdateLocation(context.Background(), UpdateLocationRequest{StudentID: "stu-1", Latitude: 91, Longitude: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.UpdateLocation(context.Background(), UpdateLocationRequest{Latitude: 1, Longitude: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateLocationUnknownStudent(t *testing.T) {
	f := newTrackingFixture(t)

	_, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-404"))
	require.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}

func TestUpdateLocationInactiveStudent(t *testing.T) {
	f := newTrackingFixture(t)
	f.permissions.perms["stu-2"] = &models.LocationPermission{StudentID: "stu-2", Granted: true, Active: true}

	_, err := f.svc.UpdateLocation(context.Background(), insideRequest("stu-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateLocationResolvesByRegisterNumber(t *testing.T) {
	f := newTrackingFixture(t)

	req := insideRequest("")
	req.RegisterNumber = "REG001"
	result, err := f.svc.UpdateLocation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", result.StudentID)
	assert.Equal(t, "entry", result.Transition)
}

func TestUpdateLocationConcurrentSameStudent(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialization collapses the burst into one entry plus heartbeats.
	kinds := f.occupancy.eventKinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, models.EventEntry, kinds[0])
	assert.Len(t, f.occupancy.heartbeats, 15)
}

func TestUpdateLocationAlternatesEntryExit(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	sequence := []UpdateLocationRequest{
		insideRequest("stu-1"),
		insideRequest("stu-1"),
		outsideRequest("stu-1"),
		outsideRequest("stu-1"),
		insideRequest("stu-1"),
		outsideRequest("stu-1"),
	}
	for _, req := range sequence {
		_, err := f.svc.UpdateLocation(ctx, req)
		require.NoError(t, err)
	}

	kinds := f.occupancy.eventKinds()
	require.Equal(t, []models.OccupancyEventKind{
		models.EventEntry, models.EventExit, models.EventEntry, models.EventExit,
	}, kinds)
	assert.Empty(t, f.occupancy.live)
}

func TestGrantPermission(t *testing.T) {
	f := newTrackingFixture(t)

	perm, err := f.svc.GrantPermission(context.Background(), PermissionRequest{
		StudentID:  "stu-1",
		Granted:    true,
		DeviceInfo: "Pixel 8",
		IPAddress:  "10.0.0.5",
	})
	require.NoError(t, err)
	assert.True(t, perm.Granted)
	assert.True(t, perm.Active)
	assert.NotEmpty(t, perm.ID)
	require.Len(t, f.permissions.upserted, 1)
}

func TestGrantPermissionUnknownStudent(t *testing.T) {
	f := newTrackingFixture(t)

	_, err := f.svc.GrantPermission(context.Background(), PermissionRequest{StudentID: "stu-404", Granted: true})
	require.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}

func TestSetGeofenceReplacesActive(t *testing.T) {
	f := newTrackingFixture(t)

	fence, err := f.svc.SetGeofence(context.Background(), GeofenceRequest{
		Label:        "Annex Reading Hall",
		CenterLat:    13.09,
		CenterLon:    80.27,
		RadiusMeters: 75,
	})
	require.NoError(t, err)
	assert.True(t, fence.Active)
	assert.NotEmpty(t, fence.ID)
	require.Len(t, f.geofences.replaced, 1)
	assert.Equal(t, 75, f.geofences.fence.RadiusMeters)
}

func TestSetGeofenceValidation(t *testing.T) {
	f := newTrackingFixture(t)

	_, err := f.svc.SetGeofence(context.Background(), GeofenceRequest{Label: "bad", CenterLat: 95, CenterLon: 0, RadiusMeters: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.SetGeofence(context.Background(), GeofenceRequest{Label: "tiny", CenterLat: 0, CenterLon: 0, RadiusMeters: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestActiveGeofenceNotFound(t *testing.T) {
	f := newTrackingFixture(t)
	f.geofences.fence = nil

	_, err := f.svc.ActiveGeofence(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCurrentOccupancy(t *testing.T) {
	f := newTrackingFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateLocation(ctx, insideRequest("stu-1"))
	require.NoError(t, err)

	snapshot, err := f.svc.CurrentOccupancy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Count)
	require.Len(t, snapshot.Occupants, 1)
	assert.Equal(t, "stu-1", snapshot.Occupants[0].StudentID)
}

func TestLogsDefaultsMatchFetch(t *testing.T) {
	f := newTrackingFixture(t)
	f.occupancy.events = []*models.OccupancyEvent{
		{ID: "ev-1", StudentID: "stu-1", Kind: models.EventEntry, RecordedAt: time.Now().UTC()},
	}

	events, pagination, err := f.svc.Logs(context.Background(), models.OccupancyLogFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// The envelope must describe the page the repository was actually asked for.
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, f.occupancy.eventFilter.Page)
	assert.Equal(t, 20, f.occupancy.eventFilter.PageSize)
}

func TestRebuildLive(t *testing.T) {
	f := newTrackingFixture(t)
	f.occupancy.restored = 7

	restored, err := f.svc.RebuildLive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, restored)
}

func TestStudentLockStableAcrossCalls(t *testing.T) {
	f := newTrackingFixture(t)

	// The same student must always resolve to the same mutex, no matter
	// how many distinct students have been seen in between.
	first := f.svc.studentLock("stu-1")
	for i := 0; i < 1000; i++ {
		f.svc.studentLock(uuid.NewString())
	}
	assert.Same(t, first, f.svc.studentLock("stu-1"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.TransitionEntry, classify(false, true))
	assert.Equal(t, models.TransitionExit, classify(true, false))
	assert.Equal(t, models.TransitionStillInside, classify(true, true))
	assert.Equal(t, models.TransitionStillOutside, classify(false, false))
}

func TestFlooredMinutes(t *testing.T) {
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, flooredMinutes(base, base.Add(59*time.Second)))
	assert.Equal(t, 1, flooredMinutes(base, base.Add(60*time.Second)))
	assert.Equal(t, 0, flooredMinutes(base, base.Add(-time.Hour)))
}
