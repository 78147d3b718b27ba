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

// StudentRepository handles persistence for the student directory.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR register_number ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Department != "" {
		where = append(where, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":            "full_name",
		"register_number": "register_number",
		"created_at":      "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT id, register_number, full_name, department, year, email, phone, active, created_at, updated_at
FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a single student.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, register_number, full_name, department, year, email, phone, active, created_at, updated_at
FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRegisterNumber resolves a register number to the student row.
func (r *StudentRepository) FindByRegisterNumber(ctx context.Context, registerNumber string) (*models.Student, error) {
	const query = `SELECT id, register_number, full_name, department, year, email, phone, active, created_at, updated_at
FROM students WHERE register_number = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, registerNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRegisterNumber checks uniqueness of the register number.
func (r *StudentRepository) ExistsByRegisterNumber(ctx context.Context, registerNumber, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM students WHERE register_number = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, registerNumber, excludeID); err != nil {
		return false, fmt.Errorf("check register number: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, register_number, full_name, department, year, email, phone, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.RegisterNumber, student.FullName, student.Department,
		student.Year, student.Email, student.Phone, student.Active, student.CreatedAt, student.UpdatedAt); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// Update persists changes to an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()

	const query = `UPDATE students SET register_number = $1, full_name = $2, department = $3, year = $4,
email = $5, phone = $6, active = $7, updated_at = $8 WHERE id = $9`
	if _, err := r.db.ExecContext(ctx, query, student.RegisterNumber, student.FullName, student.Department, student.Year,
		student.Email, student.Phone, student.Active, student.UpdatedAt, student.ID); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a student.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
