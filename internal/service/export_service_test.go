package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/storage"
)

func seedExportEvents(repo *mockOccupancyRepo) {
	duration := 90
	repo.events = []*models.OccupancyEvent{
		{
			ID:         "ev-1",
			StudentID:  "stu-1",
			Kind:       models.EventEntry,
			RecordedAt: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:              "ev-2",
			StudentID:       "stu-1",
			Kind:            models.EventExit,
			RecordedAt:      time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC),
			DurationMinutes: &duration,
		},
	}
}

func TestExportOccupancyLogCSV(t *testing.T) {
	repo := newMockOccupancyRepo()
	seedExportEvents(repo)
	svc := NewExportService(repo, zap.NewNop(), nil, nil, nil, nil)

	result, err := svc.OccupancyLog(context.Background(), models.OccupancyLogFilter{}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Data)
	assert.Contains(t, body, "Recorded At")
	assert.Contains(t, body, "entry")
	// Cells must land under their declared headers, in header order.
	assert.Contains(t, body, "2026-03-04T10:30:00Z,,,,exit,90")
}

func TestExportOccupancyLogPDF(t *testing.T) {
	repo := newMockOccupancyRepo()
	seedExportEvents(repo)
	svc := NewExportService(repo, zap.NewNop(), nil, nil, nil, nil)

	result, err := svc.OccupancyLog(context.Background(), models.OccupancyLogFilter{}, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".pdf"))
	assert.True(t, len(result.Data) > 0)
}

func TestExportOccupancyLogUnknownFormat(t *testing.T) {
	svc := NewExportService(newMockOccupancyRepo(), zap.NewNop(), nil, nil, nil, nil)

	_, err := svc.OccupancyLog(context.Background(), models.OccupancyLogFilter{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestArchiveOccupancyLogRoundTrip(t *testing.T) {
	repo := newMockOccupancyRepo()
	seedExportEvents(repo)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSigner("test-secret", time.Hour)
	svc := NewExportService(repo, zap.NewNop(), nil, nil, store, signer)

	archived, err := svc.ArchiveOccupancyLog(context.Background(), models.OccupancyLogFilter{}, FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(archived.Filename, ".csv"))
	assert.NotEmpty(t, archived.Token)
	assert.True(t, archived.ExpiresAt.After(time.Now()))

	file, err := svc.OpenArchive(archived.Token)
	require.NoError(t, err)
	defer file.Reader.Close()
	assert.Equal(t, "text/csv", file.ContentType)

	body, err := io.ReadAll(file.Reader)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Recorded At")
}

func TestOpenArchiveBadToken(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSigner("test-secret", time.Hour)
	svc := NewExportService(newMockOccupancyRepo(), zap.NewNop(), nil, nil, store, signer)

	_, err = svc.OpenArchive("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestArchiveOccupancyLogDisabled(t *testing.T) {
	svc := NewExportService(newMockOccupancyRepo(), zap.NewNop(), nil, nil, nil, nil)

	_, err := svc.ArchiveOccupancyLog(context.Background(), models.OccupancyLogFilter{}, FormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
