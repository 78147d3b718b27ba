package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

type issueRepository interface {
	List(ctx context.Context, filter models.IssueFilter) ([]models.BookIssueRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.BookIssue, error)
	CountActiveByStudent(ctx context.Context, studentID string) (int, error)
	CreateIssue(ctx context.Context, issue *models.BookIssue) error
	ReturnIssue(ctx context.Context, id string, returnedAt time.Time) (*models.BookIssue, error)
}

type issueStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// IssueBookRequest describes the payload for lending a copy.
type IssueBookRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// IssueService handles loan workflows.
type IssueService struct {
	repo           issueRepository
	students       issueStudentRepository
	validator      *validator.Validate
	logger         *zap.Logger
	loanPeriod     time.Duration
	maxActiveLoans int
	now            nowFunc
}

// NewIssueService constructs the issue service.
func NewIssueService(repo issueRepository, students issueStudentRepository, validate *validator.Validate, logger *zap.Logger, loanPeriod time.Duration, maxActiveLoans int) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loanPeriod <= 0 {
		loanPeriod = 14 * 24 * time.Hour
	}
	if maxActiveLoans <= 0 {
		maxActiveLoans = 3
	}
	return &IssueService{
		repo:           repo,
		students:       students,
		validator:      validate,
		logger:         logger,
		loanPeriod:     loanPeriod,
		maxActiveLoans: maxActiveLoans,
		now:            utcNow,
	}
}

// List returns loans and pagination metadata.
func (s *IssueService) List(ctx context.Context, filter models.IssueFilter) ([]models.BookIssueRecord, *models.Pagination, error) {
	issues, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}
	return issues, paginate(filter.Page, filter.PageSize, total), nil
}

// Issue lends a copy to a student. The copy decrement and the loan insert
// happen in one transaction inside the repository.
func (s *IssueService) Issue(ctx context.Context, req IssueBookRequest) (*models.BookIssue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student account is inactive")
	}
	active, err := s.repo.CountActiveByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active loans")
	}
	if active >= s.maxActiveLoans {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("loan limit of %d reached", s.maxActiveLoans))
	}
	now := s.now()
	issue := &models.BookIssue{
		ID:        uuid.NewString(),
		BookID:    req.BookID,
		StudentID: student.ID,
		IssuedAt:  now,
		DueAt:     now.Add(s.loanPeriod),
		Status:    models.IssueStatusIssued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateIssue(ctx, issue); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrBookUnavailable.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}
	s.logger.Info("book issued",
		zap.String("book_id", issue.BookID),
		zap.String("student_id", issue.StudentID),
		zap.Time("due_at", issue.DueAt))
	return issue, nil
}

// Return closes a loan and releases the copy.
func (s *IssueService) Return(ctx context.Context, id string) (*models.BookIssue, error) {
	issue, err := s.repo.ReturnIssue(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrConflict.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return loan")
	}
	s.logger.Info("book returned", zap.String("issue_id", issue.ID))
	return issue, nil
}
