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

type bookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindByID(ctx context.Context, id string) (*models.Book, error)
	ExistsByISBN(ctx context.Context, isbn, excludeID string) (bool, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id string) error
}

// CreateBookRequest describes the payload for adding a title.
type CreateBookRequest struct {
	ISBN          string `json:"isbn" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Author        string `json:"author" validate:"required"`
	Publisher     string `json:"publisher"`
	Category      string `json:"category"`
	ShelfLocation string `json:"shelf_location"`
	TotalCopies   int    `json:"total_copies" validate:"required,min=1"`
}

// UpdateBookRequest describes the mutable catalog fields.
type UpdateBookRequest struct {
	Title         string `json:"title" validate:"required"`
	Author        string `json:"author" validate:"required"`
	Publisher     string `json:"publisher"`
	Category      string `json:"category"`
	ShelfLocation string `json:"shelf_location"`
	TotalCopies   int    `json:"total_copies" validate:"required,min=1"`
}

// BookService handles catalog use-cases.
type BookService struct {
	repo      bookRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       nowFunc
}

// NewBookService constructs the book service.
func NewBookService(repo bookRepository, validate *validator.Validate, logger *zap.Logger) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{repo: repo, validator: validate, logger: logger, now: utcNow}
}

// List returns catalog entries and pagination metadata.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	return books, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one title.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// Create adds a title to the catalog. All copies start available.
func (s *BookService) Create(ctx context.Context, req CreateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	exists, err := s.repo.ExistsByISBN(ctx, req.ISBN, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate isbn")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "isbn already cataloged")
	}
	now := s.now()
	book := &models.Book{
		ID:              uuid.NewString(),
		ISBN:            req.ISBN,
		Title:           req.Title,
		Author:          req.Author,
		Publisher:       req.Publisher,
		Category:        req.Category,
		ShelfLocation:   req.ShelfLocation,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	s.logger.Info("book cataloged", zap.String("isbn", book.ISBN), zap.String("title", book.Title))
	return book, nil
}

// Update modifies a catalog entry. Growing or shrinking total copies adjusts
// availability by the same delta, never below zero.
func (s *BookService) Update(ctx context.Context, id string, req UpdateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	delta := req.TotalCopies - book.TotalCopies
	book.Title = req.Title
	book.Author = req.Author
	book.Publisher = req.Publisher
	book.Category = req.Category
	book.ShelfLocation = req.ShelfLocation
	book.TotalCopies = req.TotalCopies
	book.AvailableCopies += delta
	if book.AvailableCopies < 0 {
		book.AvailableCopies = 0
	}
	book.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	return book, nil
}

// Delete removes a title that has no copies on loan.
func (s *BookService) Delete(ctx context.Context, id string) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if book.AvailableCopies < book.TotalCopies {
		return appErrors.Clone(appErrors.ErrConflict, "book has copies on loan")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete book")
	}
	return nil
}
