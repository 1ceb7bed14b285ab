package models

import "time"

// PlagiarismStatus tracks the lifecycle of a verification record.
type PlagiarismStatus string

const (
	PlagiarismStatusPending   PlagiarismStatus = "PENDING"
	PlagiarismStatusCompleted PlagiarismStatus = "COMPLETED"
)

// PlagiarismReport is created atomically when a final-version document is
// approved and resolved asynchronously by the external scanner. ThresholdUsed
// is captured at creation time so historical reports stay stable when the
// departmental threshold changes.
type PlagiarismReport struct {
	ID            string           `db:"id" json:"id"`
	DocumentID    string           `db:"document_id" json:"document_id"`
	Version       int              `db:"version" json:"version"`
	ThemeID       string           `db:"theme_id" json:"theme_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Status        PlagiarismStatus `db:"status" json:"status"`
	Score         *float64         `db:"score" json:"score,omitempty"`
	ThresholdUsed float64          `db:"threshold_used" json:"threshold_used"`
	Passed        *bool            `db:"passed" json:"passed,omitempty"`
	SourcesFound  *int             `db:"sources_found" json:"sources_found,omitempty"`
	Notes         *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	CheckedAt     *time.Time       `db:"checked_at" json:"checked_at,omitempty"`
}
