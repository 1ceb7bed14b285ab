package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/export"
)

type defenseProgressReader interface {
	Get(ctx context.Context, themeID string) (*models.ThesisProgress, error)
	Compute(ctx context.Context, themeID string) (*models.ThesisProgress, error)
}

type defenseDecisionReader interface {
	GetByTheme(ctx context.Context, themeID string) (*models.JuryDecision, error)
}

type minutesRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// DefenseService is the read-side readiness gate: a theme may go to jury
// deliberation only when every document type is approved and the latest
// plagiarism report completed and passed. Only the latest report counts; a
// report superseded by a corrections resubmission is ignored.
type DefenseService struct {
	themes   themeReader
	progress defenseProgressReader
	reports  plagiarismStore
	jury     defenseDecisionReader
	minutes  minutesRenderer
	logger   *zap.Logger
}

// NewDefenseService constructs the service.
func NewDefenseService(themes themeReader, progress defenseProgressReader, reports plagiarismStore, jury defenseDecisionReader, minutes minutesRenderer, logger *zap.Logger) *DefenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefenseService{
		themes:   themes,
		progress: progress,
		reports:  reports,
		jury:     jury,
		minutes:  minutes,
		logger:   logger,
	}
}

// Evaluate returns the readiness verdict with the blocking reasons.
func (s *DefenseService) Evaluate(ctx context.Context, themeID string) (*dto.DefenseReadiness, error) {
	if _, err := s.themes.GetByID(ctx, themeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}

	progress, err := s.progress.Compute(ctx, themeID)
	if err != nil {
		return nil, err
	}

	readiness := &dto.DefenseReadiness{
		ThemeID:         themeID,
		OverallProgress: progress.OverallProgress,
	}
	if progress.OverallProgress < 100 {
		readiness.Reasons = append(readiness.Reasons,
			fmt.Sprintf("document approval incomplete (%d%%)", progress.OverallProgress))
	}

	report, err := s.reports.LatestByTheme(ctx, themeID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plagiarism report")
		}
		readiness.Reasons = append(readiness.Reasons, "no plagiarism report recorded")
	} else {
		readiness.Plagiarism = report
		switch {
		case report.Status != models.PlagiarismStatusCompleted:
			readiness.Reasons = append(readiness.Reasons, "plagiarism verification pending")
		case report.Passed == nil || !*report.Passed:
			readiness.Reasons = append(readiness.Reasons, "plagiarism verification failed")
		}
	}

	readiness.Ready = len(readiness.Reasons) == 0
	return readiness, nil
}

// IsDefenseReady is the boolean form used as the deliberation precondition.
func (s *DefenseService) IsDefenseReady(ctx context.Context, themeID string) (bool, error) {
	readiness, err := s.Evaluate(ctx, themeID)
	if err != nil {
		return false, err
	}
	return readiness.Ready, nil
}

// ExportMinutes renders the deliberation minutes for a decided theme as PDF.
func (s *DefenseService) ExportMinutes(ctx context.Context, themeID string) ([]byte, error) {
	if s.minutes == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "minutes renderer unavailable")
	}
	theme, err := s.themes.GetByID(ctx, themeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	decision, err := s.jury.GetByTheme(ctx, themeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no deliberation recorded for theme")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load jury decision")
	}

	row := map[string]string{
		"Theme":    theme.Title,
		"Student":  theme.StudentID,
		"Decision": string(decision.Decision),
		"Grade":    "-",
		"Mention":  "-",
		"Decided":  decision.DecidedAt.Format(time.RFC3339),
	}
	if decision.Grade != nil {
		row["Grade"] = fmt.Sprintf("%.2f", *decision.Grade)
	}
	if decision.Mention != nil {
		row["Mention"] = *decision.Mention
	}

	data := export.Dataset{
		Headers: []string{"Theme", "Student", "Decision", "Grade", "Mention", "Decided"},
		Rows:    []map[string]string{row},
	}
	rendered, err := s.minutes.Render(data, "Defense Deliberation Minutes")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render minutes")
	}
	return rendered, nil
}
