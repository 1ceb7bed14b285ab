package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/repository"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type plagiarismStore interface {
	GetByID(ctx context.Context, id string) (*models.PlagiarismReport, error)
	LatestByTheme(ctx context.Context, themeID string) (*models.PlagiarismReport, error)
	ListByTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error)
	Resolve(ctx context.Context, params repository.ResolveReportParams) error
}

type plagiarismMetrics interface {
	ObservePlagiarismResolution(passed bool, turnaround time.Duration)
}

// PlagiarismService resolves verification reports from scanner callbacks.
// Pending reports are created by the transition engine inside the
// final-version approval transaction; this service only completes them.
type PlagiarismService struct {
	repo     plagiarismStore
	notifier transitionNotifier
	audit    auditLogger
	progress progressInvalidator
	metrics  plagiarismMetrics
	logger   *zap.Logger
}

// NewPlagiarismService constructs the service.
func NewPlagiarismService(repo plagiarismStore, notifier transitionNotifier, audit auditLogger, progress progressInvalidator, metrics plagiarismMetrics, logger *zap.Logger) *PlagiarismService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlagiarismService{
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		progress: progress,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve applies the scanner verdict to a pending report. The pass verdict
// compares the score against the threshold captured when the report was
// created, not the current configuration. Resolving an already-completed
// report is a no-op success to tolerate at-least-once callback delivery.
func (s *PlagiarismService) Resolve(ctx context.Context, reportID string, req dto.ResolvePlagiarismRequest) (*models.PlagiarismReport, error) {
	report, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plagiarism report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plagiarism report")
	}
	if report.Status == models.PlagiarismStatusCompleted {
		return report, nil
	}
	if req.Score < 0 || req.Score > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score must be between 0 and 100")
	}

	passed := req.Score <= report.ThresholdUsed
	now := time.Now().UTC()
	params := repository.ResolveReportParams{
		ID:           reportID,
		Score:        req.Score,
		Passed:       passed,
		SourcesFound: req.SourcesFound,
		Notes:        optionalText(req.Notes),
		CheckedAt:    now,
	}
	if err := s.repo.Resolve(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent delivery completed the report first.
			return s.repo.GetByID(ctx, reportID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve plagiarism report")
	}

	report.Status = models.PlagiarismStatusCompleted
	report.Score = &req.Score
	report.Passed = &passed
	report.SourcesFound = &req.SourcesFound
	report.CheckedAt = &now
	if notes := optionalText(req.Notes); notes != nil {
		report.Notes = notes
	}

	if s.progress != nil {
		s.progress.Invalidate(ctx, report.ThemeID)
	}
	if s.metrics != nil {
		s.metrics.ObservePlagiarismResolution(passed, now.Sub(report.CreatedAt))
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, Notification{
			RecipientID: report.StudentID,
			Template:    NotificationPlagiarismResolved,
			Subject:     "Plagiarism verification completed",
			Params: map[string]string{
				"theme_id": report.ThemeID,
				"score":    fmt.Sprintf("%.1f", req.Score),
				"passed":   fmt.Sprintf("%t", passed),
			},
		})
	}
	s.emitAudit(ctx, report)
	return report, nil
}

// Get returns one report.
func (s *PlagiarismService) Get(ctx context.Context, reportID string) (*models.PlagiarismReport, error) {
	report, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plagiarism report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plagiarism report")
	}
	return report, nil
}

// ListForTheme returns all reports for a theme, newest first. Superseded
// reports remain visible as history.
func (s *PlagiarismService) ListForTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error) {
	reports, err := s.repo.ListByTheme(ctx, themeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plagiarism reports")
	}
	return reports, nil
}

func (s *PlagiarismService) emitAudit(ctx context.Context, report *models.PlagiarismReport) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     models.AuditActionPlagiarismResolve,
		Resource:   "plagiarism_report",
		ResourceID: &report.ID,
		NewValues:  []byte(fmt.Sprintf(`{"theme_id":"%s","status":"%s"}`, report.ThemeID, report.Status)),
		IPAddress:  "system",
		UserAgent:  "plagiarism-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func optionalText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
