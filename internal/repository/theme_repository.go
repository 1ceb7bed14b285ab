package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-flow-api/internal/models"
)

// ThemeRepository persists thesis themes, the aggregation root of the
// workflow.
type ThemeRepository struct {
	db *sqlx.DB
}

// NewThemeRepository constructs the repository.
func NewThemeRepository(db *sqlx.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

const themeColumns = `id, title, student_id, supervisor_id, department, academic_year, created_at, updated_at`

// Create inserts a new theme.
func (r *ThemeRepository) Create(ctx context.Context, theme *models.Theme) error {
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if theme.CreatedAt.IsZero() {
		theme.CreatedAt = now
	}
	theme.UpdatedAt = now
	const query = `INSERT INTO themes
	(id, title, student_id, supervisor_id, department, academic_year, created_at, updated_at)
	VALUES (:id, :title, :student_id, :supervisor_id, :department, :academic_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, theme); err != nil {
		return fmt.Errorf("create theme: %w", err)
	}
	return nil
}

// GetByID fetches a theme.
func (r *ThemeRepository) GetByID(ctx context.Context, id string) (*models.Theme, error) {
	query := `SELECT ` + themeColumns + ` FROM themes WHERE id = $1`
	var theme models.Theme
	if err := r.db.GetContext(ctx, &theme, query, id); err != nil {
		return nil, err
	}
	return &theme, nil
}

// List returns themes matching the filter.
func (r *ThemeRepository) List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + themeColumns + ` FROM themes`)

	conditions := make([]string, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conditions = append(conditions, fmt.Sprintf("supervisor_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var themes []models.Theme
	if err := r.db.SelectContext(ctx, &themes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return themes, nil
}
