package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/library-api/internal/models"
	appErrors "github.com/campushq/library-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error)
	ExistsByRegisterNumber(ctx context.Context, registerNumber, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// CreateStudentRequest describes the payload for registering a student.
type CreateStudentRequest struct {
	RegisterNumber string `json:"register_number" validate:"required"`
	FullName       string `json:"full_name" validate:"required"`
	Department     string `json:"department" validate:"required"`
	Year           int    `json:"year" validate:"required,min=1,max=6"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone"`
}

// UpdateStudentRequest describes the mutable student fields.
type UpdateStudentRequest struct {
	FullName   string `json:"full_name" validate:"required"`
	Department string `json:"department" validate:"required"`
	Year       int    `json:"year" validate:"required,min=1,max=6"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Active     *bool  `json:"active"`
}

// StudentService handles library member use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       nowFunc
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger, now: utcNow}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByRegisterNumber(ctx, req.RegisterNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate register number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "register number already used")
	}
	now := s.now()
	student := &models.Student{
		ID:             uuid.NewString(),
		RegisterNumber: req.RegisterNumber,
		FullName:       req.FullName,
		Department:     req.Department,
		Year:           req.Year,
		Email:          req.Email,
		Phone:          req.Phone,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student registered", zap.String("register_number", student.RegisterNumber))
	return student, nil
}

// Update modifies an existing student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student.FullName = req.FullName
	student.Department = req.Department
	student.Year = req.Year
	student.Email = req.Email
	student.Phone = req.Phone
	if req.Active != nil {
		student.Active = *req.Active
	}
	student.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate soft-deletes a student.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}
