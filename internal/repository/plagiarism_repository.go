package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-flow-api/internal/models"
)

// PlagiarismRepository persists verification reports. Pending rows are created
// inside the final-version approval transaction (DocumentRepository); this
// repository reads them and applies scanner resolutions.
type PlagiarismRepository struct {
	db *sqlx.DB
}

// NewPlagiarismRepository constructs the repository.
func NewPlagiarismRepository(db *sqlx.DB) *PlagiarismRepository {
	return &PlagiarismRepository{db: db}
}

const plagiarismColumns = `id, document_id, version, theme_id, student_id, status, score,
       threshold_used, passed, sources_found, notes, created_at, checked_at`

// GetByID fetches one report.
func (r *PlagiarismRepository) GetByID(ctx context.Context, id string) (*models.PlagiarismReport, error) {
	query := `SELECT ` + plagiarismColumns + ` FROM plagiarism_reports WHERE id = $1`
	var report models.PlagiarismReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// LatestByTheme returns the most recent report for a theme. A resubmitted
// final version supersedes older reports simply by being newer.
func (r *PlagiarismRepository) LatestByTheme(ctx context.Context, themeID string) (*models.PlagiarismReport, error) {
	query := `SELECT ` + plagiarismColumns + ` FROM plagiarism_reports
	WHERE theme_id = $1 ORDER BY created_at DESC, version DESC LIMIT 1`
	var report models.PlagiarismReport
	if err := r.db.GetContext(ctx, &report, query, themeID); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByTheme returns all reports for a theme, newest first.
func (r *PlagiarismRepository) ListByTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error) {
	query := `SELECT ` + plagiarismColumns + ` FROM plagiarism_reports
	WHERE theme_id = $1 ORDER BY created_at DESC, version DESC`
	var reports []models.PlagiarismReport
	if err := r.db.SelectContext(ctx, &reports, query, themeID); err != nil {
		return nil, fmt.Errorf("list plagiarism reports: %w", err)
	}
	return reports, nil
}

// ResolveReportParams carries the scanner verdict.
type ResolveReportParams struct {
	ID           string
	Score        float64
	Passed       bool
	SourcesFound int
	Notes        *string
	CheckedAt    time.Time
}

// Resolve completes a pending report. The conditional WHERE makes the write
// idempotent under at-least-once callback delivery: resolving an already
// completed report affects zero rows (sql.ErrNoRows, handled by the service
// as a no-op).
func (r *PlagiarismRepository) Resolve(ctx context.Context, params ResolveReportParams) error {
	const query = `UPDATE plagiarism_reports
	SET status = $2, score = $3, passed = $4, sources_found = $5, notes = COALESCE($6, notes), checked_at = $7
	WHERE id = $1 AND status = $8`
	result, err := r.db.ExecContext(ctx, query,
		params.ID,
		models.PlagiarismStatusCompleted,
		params.Score,
		params.Passed,
		params.SourcesFound,
		params.Notes,
		params.CheckedAt,
		models.PlagiarismStatusPending,
	)
	if err != nil {
		return fmt.Errorf("resolve plagiarism report: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check plagiarism update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
