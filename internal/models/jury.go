package models

import "time"

// JuryDecisionOutcome enumerates the deliberation outcomes.
type JuryDecisionOutcome string

const (
	JuryDecisionApproved            JuryDecisionOutcome = "APPROVED"
	JuryDecisionCorrectionsRequired JuryDecisionOutcome = "CORRECTIONS_REQUIRED"
	JuryDecisionRejected            JuryDecisionOutcome = "REJECTED"
)

// JuryDecision is the single authoritative deliberation record per theme.
// A new decision overwrites the previous one in place; only the latest
// deliberation is exposed.
type JuryDecision struct {
	ID                     string              `db:"id" json:"id"`
	ThemeID                string              `db:"theme_id" json:"theme_id"`
	StudentID              string              `db:"student_id" json:"student_id"`
	Decision               JuryDecisionOutcome `db:"decision" json:"decision"`
	Grade                  *float64            `db:"grade" json:"grade,omitempty"`
	Mention                *string             `db:"mention" json:"mention,omitempty"`
	CorrectionsRequired    bool                `db:"corrections_required" json:"corrections_required"`
	CorrectionsDeadline    *time.Time          `db:"corrections_deadline" json:"corrections_deadline,omitempty"`
	CorrectionsDescription *string             `db:"corrections_description" json:"corrections_description,omitempty"`
	Notes                  *string             `db:"notes" json:"notes,omitempty"`
	DecidedBy              string              `db:"decided_by" json:"decided_by"`
	DecidedAt              time.Time           `db:"decided_at" json:"decided_at"`
}
