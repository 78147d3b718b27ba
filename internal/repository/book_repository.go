package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/library-api/internal/models"
)

// BookRepository handles persistence for the catalog.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns catalog titles matching the filter.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR isbn = $%d)", len(args)+1, len(args)+1, len(args)+2))
		args = append(args, "%"+filter.Search+"%", filter.Search)
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.AvailableOnly {
		where = append(where, "available_copies > 0")
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"title":      "title",
		"author":     "author",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, isbn, title, author, publisher, category, shelf_location, total_copies, available_copies, created_at, updated_at
FROM books WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	books := []models.Book{}
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM books WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindByID returns a single title.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	const query = `SELECT id, isbn, title, author, publisher, category, shelf_location, total_copies, available_copies, created_at, updated_at
FROM books WHERE id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// ExistsByISBN checks ISBN uniqueness.
func (r *BookRepository) ExistsByISBN(ctx context.Context, isbn, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM books WHERE isbn = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, isbn, excludeID); err != nil {
		return false, fmt.Errorf("check isbn: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new title.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	now := time.Now().UTC()
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `INSERT INTO books (id, isbn, title, author, publisher, category, shelf_location, total_copies, available_copies, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query, book.ID, book.ISBN, book.Title, book.Author, book.Publisher, book.Category,
		book.ShelfLocation, book.TotalCopies, book.AvailableCopies, book.CreatedAt, book.UpdatedAt); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// Update persists changes to an existing title.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()

	const query = `UPDATE books SET isbn = $1, title = $2, author = $3, publisher = $4, category = $5,
shelf_location = $6, total_copies = $7, available_copies = $8, updated_at = $9 WHERE id = $10`
	if _, err := r.db.ExecContext(ctx, query, book.ISBN, book.Title, book.Author, book.Publisher, book.Category,
		book.ShelfLocation, book.TotalCopies, book.AvailableCopies, book.UpdatedAt, book.ID); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// Delete removes a title from the catalog.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}
