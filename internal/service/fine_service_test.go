package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

type mockFineRepo struct {
	fines map[string]models.Fine
}

func (m *mockFineRepo) List(ctx context.Context, filter models.FineFilter) ([]models.FineRecord, int, error) {
	records := make([]models.FineRecord, 0, len(m.fines))
	for _, fine := range m.fines {
		records = append(records, models.FineRecord{Fine: fine})
	}
	return records, len(records), nil
}

func (m *mockFineRepo) FindByID(ctx context.Context, id string) (*models.Fine, error) {
	if fine, ok := m.fines[id]; ok {
		return &fine, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFineRepo) Create(ctx context.Context, fine *models.Fine) error {
	if m.fines == nil {
		m.fines = make(map[string]models.Fine)
	}
	m.fines[fine.ID] = *fine
	return nil
}

func (m *mockFineRepo) SetStatus(ctx context.Context, id string, status models.FineStatus, paidAt *time.Time) error {
	fine := m.fines[id]
	fine.Status = status
	fine.PaidAt = paidAt
	m.fines[id] = fine
	return nil
}

type mockOverdueRepo struct {
	overdue []models.BookIssue
	marked  int
}

func (m *mockOverdueRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]models.BookIssue, error) {
	return m.overdue, nil
}

func (m *mockOverdueRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	m.marked = len(m.overdue)
	return m.marked, nil
}

func TestFineSweepAssessesDailyRate(t *testing.T) {
	asOf := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	repo := &mockFineRepo{fines: make(map[string]models.Fine)}
	issues := &mockOverdueRepo{overdue: []models.BookIssue{
		{ID: "loan-1", StudentID: "stu-1", DueAt: asOf.Add(-72 * time.Hour)},
		{ID: "loan-2", StudentID: "stu-2", DueAt: asOf.Add(-30 * time.Minute)},
	}}
	svc := NewFineService(repo, issues, zap.NewNop(), 2.5)
	svc.now = func() time.Time { return asOf }

	created, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, issues.marked)

	var threeDays, sameDay *models.Fine
	for _, fine := range repo.fines {
		f := fine
		switch f.IssueID {
		case "loan-1":
			threeDays = &f
		case "loan-2":
			sameDay = &f
		}
	}
	require.NotNil(t, threeDays)
	assert.Equal(t, 3, threeDays.DaysLate)
	assert.InDelta(t, 7.5, threeDays.Amount, 0.001)

	// Anything past due is at least one day late.
	require.NotNil(t, sameDay)
	assert.Equal(t, 1, sameDay.DaysLate)
	assert.InDelta(t, 2.5, sameDay.Amount, 0.001)
}

func TestFinePay(t *testing.T) {
	repo := &mockFineRepo{fines: map[string]models.Fine{
		"fine-1": {ID: "fine-1", Status: models.FineStatusUnpaid, Amount: 5},
	}}
	svc := NewFineService(repo, &mockOverdueRepo{}, zap.NewNop(), 1)

	fine, err := svc.Pay(context.Background(), "fine-1")
	require.NoError(t, err)
	assert.Equal(t, models.FineStatusPaid, fine.Status)
	require.NotNil(t, fine.PaidAt)
	assert.Equal(t, models.FineStatusPaid, repo.fines["fine-1"].Status)
}

func TestFineWaiveLeavesPaidAtEmpty(t *testing.T) {
	repo := &mockFineRepo{fines: map[string]models.Fine{
		"fine-1": {ID: "fine-1", Status: models.FineStatusUnpaid},
	}}
	svc := NewFineService(repo, &mockOverdueRepo{}, zap.NewNop(), 1)

	fine, err := svc.Waive(context.Background(), "fine-1")
	require.NoError(t, err)
	assert.Equal(t, models.FineStatusWaived, fine.Status)
	assert.Nil(t, fine.PaidAt)
}

func TestFineSettleTwiceConflicts(t *testing.T) {
	repo := &mockFineRepo{fines: map[string]models.Fine{
		"fine-1": {ID: "fine-1", Status: models.FineStatusPaid},
	}}
	svc := NewFineService(repo, &mockOverdueRepo{}, zap.NewNop(), 1)

	_, err := svc.Pay(context.Background(), "fine-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFinePayNotFound(t *testing.T) {
	svc := NewFineService(&mockFineRepo{}, &mockOverdueRepo{}, zap.NewNop(), 1)

	_, err := svc.Pay(context.Background(), "fine-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
