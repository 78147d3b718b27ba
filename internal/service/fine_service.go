package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/jobs"
)

// JobTypeOverdueSweep tags sweep jobs on the background queue.
const JobTypeOverdueSweep = "fines.overdue_sweep"

type fineRepository interface {
	List(ctx context.Context, filter models.FineFilter) ([]models.FineRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.Fine, error)
	Create(ctx context.Context, fine *models.Fine) error
	SetStatus(ctx context.Context, id string, status models.FineStatus, paidAt *time.Time) error
}

type overdueIssueRepository interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.BookIssue, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// FineService assesses and settles overdue charges.
type FineService struct {
	repo      fineRepository
	issues    overdueIssueRepository
	logger    *zap.Logger
	dailyRate float64
	now       nowFunc
}

// NewFineService constructs the fine service.
func NewFineService(repo fineRepository, issues overdueIssueRepository, logger *zap.Logger, dailyRate float64) *FineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dailyRate <= 0 {
		dailyRate = 1.0
	}
	return &FineService{repo: repo, issues: issues, logger: logger, dailyRate: dailyRate, now: utcNow}
}

// List returns fines and pagination metadata.
func (s *FineService) List(ctx context.Context, filter models.FineFilter) ([]models.FineRecord, *models.Pagination, error) {
	fines, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fines")
	}
	return fines, paginate(filter.Page, filter.PageSize, total), nil
}

// Pay settles an unpaid fine.
func (s *FineService) Pay(ctx context.Context, id string) (*models.Fine, error) {
	return s.settle(ctx, id, models.FineStatusPaid)
}

// Waive cancels an unpaid fine.
func (s *FineService) Waive(ctx context.Context, id string) (*models.Fine, error) {
	return s.settle(ctx, id, models.FineStatusWaived)
}

func (s *FineService) settle(ctx context.Context, id string, status models.FineStatus) (*models.Fine, error) {
	fine, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fine not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fine")
	}
	if fine.Status != models.FineStatusUnpaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fine already settled")
	}
	now := s.now()
	var paidAt *time.Time
	if status == models.FineStatusPaid {
		paidAt = &now
	}
	if err := s.repo.SetStatus(ctx, id, status, paidAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle fine")
	}
	fine.Status = status
	fine.PaidAt = paidAt
	fine.UpdatedAt = now
	return fine, nil
}

// Sweep assesses fines for every overdue loan that has none yet, then flags
// those loans as OVERDUE. Returns the number of fines created.
func (s *FineService) Sweep(ctx context.Context) (int, error) {
	asOf := s.now()
	overdue, err := s.issues.ListOverdue(ctx, asOf)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue loans")
	}
	created := 0
	for _, issue := range overdue {
		daysLate := int(math.Ceil(asOf.Sub(issue.DueAt).Hours() / 24))
		if daysLate < 1 {
			daysLate = 1
		}
		fine := &models.Fine{
			ID:         uuid.NewString(),
			IssueID:    issue.ID,
			StudentID:  issue.StudentID,
			Amount:     math.Round(float64(daysLate)*s.dailyRate*100) / 100,
			DaysLate:   daysLate,
			Status:     models.FineStatusUnpaid,
			AssessedAt: asOf,
			CreatedAt:  asOf,
			UpdatedAt:  asOf,
		}
		if err := s.repo.Create(ctx, fine); err != nil {
			s.logger.Error("failed to assess fine",
				zap.String("issue_id", issue.ID),
				zap.Error(err))
			continue
		}
		created++
	}
	if _, err := s.issues.MarkOverdue(ctx, asOf); err != nil {
		s.logger.Warn("failed to flag overdue loans", zap.Error(err))
	}
	if created > 0 {
		s.logger.Info("overdue sweep complete", zap.Int("fines_created", created))
	}
	return created, nil
}

// SweepHandler adapts Sweep to the background job queue.
func (s *FineService) SweepHandler() jobs.Handler {
	return func(ctx context.Context, _ jobs.Job) error {
		_, err := s.Sweep(ctx)
		return err
	}
}
