package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-flow-api/internal/models"
)

// DocumentRepository persists thesis document versions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, theme_id, student_id, type, status, version, file_path, file_name,
       mime_type, size_bytes, content_hash, submitted_at, reviewed_by, reviewed_at, feedback`

// Create inserts a new document version row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusSubmitted
	}
	if doc.SubmittedAt.IsZero() {
		doc.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents
	(id, theme_id, student_id, type, status, version, file_path, file_name, mime_type, size_bytes, content_hash, submitted_at, reviewed_by, reviewed_at, feedback)
	VALUES (:id, :theme_id, :student_id, :type, :status, :version, :file_path, :file_name, :mime_type, :size_bytes, :content_hash, :submitted_at, :reviewed_by, :reviewed_at, :feedback)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a single document version.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetActive returns the latest version for a (theme, type) pair.
func (r *DocumentRepository) GetActive(ctx context.Context, themeID string, docType models.DocumentType) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	WHERE theme_id = $1 AND type = $2 ORDER BY version DESC LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, themeID, docType); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListLatestByTheme returns the active (highest) version of each document type
// for a theme. The resolver derives the whole progress projection from this.
func (r *DocumentRepository) ListLatestByTheme(ctx context.Context, themeID string) ([]models.Document, error) {
	query := `SELECT DISTINCT ON (type) ` + documentColumns + ` FROM documents
	WHERE theme_id = $1 ORDER BY type, version DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, themeID); err != nil {
		return nil, fmt.Errorf("list latest documents: %w", err)
	}
	return docs, nil
}

// ListHistory returns all retained versions matching the filter, newest first.
func (r *DocumentRepository) ListHistory(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + documentColumns + ` FROM documents`)

	conditions := make([]string, 0, 3)
	if filter.ThemeID != "" {
		args = append(args, filter.ThemeID)
		conditions = append(conditions, fmt.Sprintf("theme_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list document history: %w", err)
	}
	return docs, nil
}

// NextVersion returns previous_version_for_type + 1.
func (r *DocumentRepository) NextVersion(ctx context.Context, themeID string, docType models.DocumentType) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM documents WHERE theme_id = $1 AND type = $2`
	var current int
	if err := r.db.GetContext(ctx, &current, query, themeID, docType); err != nil {
		return 0, fmt.Errorf("resolve next version: %w", err)
	}
	return current + 1, nil
}

// ReviewDocumentParams groups mutable columns for review transitions.
type ReviewDocumentParams struct {
	ID         string
	Status     models.DocumentStatus
	ReviewedBy string
	ReviewedAt time.Time
	Feedback   *string
}

// UpdateStatus applies a review transition with an optimistic precondition:
// the row must still be in one of the expected statuses. Zero affected rows
// means a concurrent reviewer won the race (sql.ErrNoRows).
func (r *DocumentRepository) UpdateStatus(ctx context.Context, params ReviewDocumentParams, expected ...models.DocumentStatus) error {
	return updateDocumentStatus(ctx, r.db, params, expected...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateDocumentStatus(ctx context.Context, ex execer, params ReviewDocumentParams, expected ...models.DocumentStatus) error {
	if len(expected) == 0 {
		expected = []models.DocumentStatus{models.DocumentStatusSubmitted, models.DocumentStatusUnderReview}
	}
	placeholders := make([]string, len(expected))
	args := []interface{}{params.ID, params.Status, params.ReviewedBy, params.ReviewedAt, params.Feedback}
	for i, status := range expected {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE documents
	SET status = $2, reviewed_by = $3, reviewed_at = $4, feedback = COALESCE($5, feedback)
	WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ","))

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApproveFinalVersionParams couples the approval write with the pending
// plagiarism report creation.
type ApproveFinalVersionParams struct {
	Review    ReviewDocumentParams
	Report    *models.PlagiarismReport
	Threshold float64
}

// ApproveFinalVersion approves a final-version document and creates the
// pending plagiarism report in a single transaction. The report insert is
// idempotent on (document_id, version), so a retried approval can never
// produce a second report for the same approval event.
func (r *DocumentRepository) ApproveFinalVersion(ctx context.Context, params ApproveFinalVersionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateDocumentStatus(ctx, tx, params.Review,
		models.DocumentStatusSubmitted, models.DocumentStatusUnderReview); err != nil {
		return err
	}

	report := params.Report
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.PlagiarismStatusPending
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.ThresholdUsed = params.Threshold

	const insertReport = `INSERT INTO plagiarism_reports
	(id, document_id, version, theme_id, student_id, status, score, threshold_used, passed, sources_found, notes, created_at, checked_at)
	VALUES (:id, :document_id, :version, :theme_id, :student_id, :status, :score, :threshold_used, :passed, :sources_found, :notes, :created_at, :checked_at)
	ON CONFLICT (document_id, version) DO NOTHING`
	if _, err := tx.NamedExecContext(ctx, insertReport, report); err != nil {
		return fmt.Errorf("create plagiarism report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve transaction: %w", err)
	}
	return nil
}
