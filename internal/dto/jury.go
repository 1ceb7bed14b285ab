package dto

import (
	"time"

	"github.com/noah-isme/thesis-flow-api/internal/models"
)

// RecordDecisionRequest captures the jury deliberation outcome for a theme.
type RecordDecisionRequest struct {
	Decision               models.JuryDecisionOutcome `json:"decision" validate:"required,oneof=APPROVED CORRECTIONS_REQUIRED REJECTED"`
	Grade                  *float64                   `json:"grade" validate:"omitempty,gte=0,lte=20"`
	Mention                string                     `json:"mention"`
	CorrectionsDeadline    *time.Time                 `json:"corrections_deadline"`
	CorrectionsDescription string                     `json:"corrections_description"`
	Notes                  string                     `json:"notes"`
}

// DefenseReadiness is the read-side gate result combining the progress
// projection with the latest plagiarism report.
type DefenseReadiness struct {
	ThemeID         string                   `json:"theme_id"`
	Ready           bool                     `json:"ready"`
	OverallProgress int                      `json:"overall_progress"`
	Plagiarism      *models.PlagiarismReport `json:"plagiarism,omitempty"`
	Reasons         []string                 `json:"reasons,omitempty"`
}
