package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/thesis-flow-api/internal/models"
)

// JuryRepository persists deliberation records, one per theme.
type JuryRepository struct {
	db *sqlx.DB
}

// NewJuryRepository constructs the repository.
func NewJuryRepository(db *sqlx.DB) *JuryRepository {
	return &JuryRepository{db: db}
}

const juryColumns = `id, theme_id, student_id, decision, grade, mention, corrections_required,
       corrections_deadline, corrections_description, notes, decided_by, decided_at`

// GetByTheme returns the authoritative decision for a theme.
func (r *JuryRepository) GetByTheme(ctx context.Context, themeID string) (*models.JuryDecision, error) {
	query := `SELECT ` + juryColumns + ` FROM jury_decisions WHERE theme_id = $1`
	var decision models.JuryDecision
	if err := r.db.GetContext(ctx, &decision, query, themeID); err != nil {
		return nil, err
	}
	return &decision, nil
}

// Upsert writes the decision for a theme, replacing any prior record. No
// deliberation history is retained at this layer; the latest write wins.
func (r *JuryRepository) Upsert(ctx context.Context, decision *models.JuryDecision) error {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}
	const query = `INSERT INTO jury_decisions
	(id, theme_id, student_id, decision, grade, mention, corrections_required, corrections_deadline, corrections_description, notes, decided_by, decided_at)
	VALUES (:id, :theme_id, :student_id, :decision, :grade, :mention, :corrections_required, :corrections_deadline, :corrections_description, :notes, :decided_by, :decided_at)
	ON CONFLICT (theme_id) DO UPDATE SET
		decision = EXCLUDED.decision,
		grade = EXCLUDED.grade,
		mention = EXCLUDED.mention,
		corrections_required = EXCLUDED.corrections_required,
		corrections_deadline = EXCLUDED.corrections_deadline,
		corrections_description = EXCLUDED.corrections_description,
		notes = EXCLUDED.notes,
		decided_by = EXCLUDED.decided_by,
		decided_at = EXCLUDED.decided_at`
	if _, err := r.db.NamedExecContext(ctx, query, decision); err != nil {
		return fmt.Errorf("upsert jury decision: %w", err)
	}
	return nil
}

// UpsertWithCorrections records a CORRECTIONS_REQUIRED decision and re-opens
// the final-version submission path in the same transaction: the latest
// approved final version is flipped to REVISION_REQUESTED so the resolver
// exposes FINAL_VERSION as the next allowed document again.
func (r *JuryRepository) UpsertWithCorrections(ctx context.Context, decision *models.JuryDecision, finalDocumentID string) error {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corrections transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `INSERT INTO jury_decisions
	(id, theme_id, student_id, decision, grade, mention, corrections_required, corrections_deadline, corrections_description, notes, decided_by, decided_at)
	VALUES (:id, :theme_id, :student_id, :decision, :grade, :mention, :corrections_required, :corrections_deadline, :corrections_description, :notes, :decided_by, :decided_at)
	ON CONFLICT (theme_id) DO UPDATE SET
		decision = EXCLUDED.decision,
		grade = EXCLUDED.grade,
		mention = EXCLUDED.mention,
		corrections_required = EXCLUDED.corrections_required,
		corrections_deadline = EXCLUDED.corrections_deadline,
		corrections_description = EXCLUDED.corrections_description,
		notes = EXCLUDED.notes,
		decided_by = EXCLUDED.decided_by,
		decided_at = EXCLUDED.decided_at`
	if _, err := tx.NamedExecContext(ctx, upsert, decision); err != nil {
		return fmt.Errorf("upsert jury decision: %w", err)
	}

	const reopen = `UPDATE documents
	SET status = $2, reviewed_by = $3, reviewed_at = $4, feedback = $5
	WHERE id = $1 AND status = $6`
	if _, err := tx.ExecContext(ctx, reopen,
		finalDocumentID,
		models.DocumentStatusRevisionRequested,
		decision.DecidedBy,
		decision.DecidedAt,
		decision.CorrectionsDescription,
		models.DocumentStatusApproved,
	); err != nil {
		return fmt.Errorf("reopen final version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit corrections transaction: %w", err)
	}
	return nil
}
