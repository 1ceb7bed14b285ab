package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

// NextDocumentNone marks a theme where every type is approved but the final
// plagiarism check has not passed yet: nothing is submittable and the theme is
// not defense ready either.
const NextDocumentNone = "NONE"

type progressDocumentLister interface {
	ListLatestByTheme(ctx context.Context, themeID string) ([]models.Document, error)
}

type progressReportReader interface {
	LatestByTheme(ctx context.Context, themeID string) (*models.PlagiarismReport, error)
}

type progressCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ProgressService computes the per-theme progress projection. The projection
// is always derived from document rows (plus the latest plagiarism report for
// the defense-ready sentinel); Redis only caches the result and is flushed on
// every transition.
type ProgressService struct {
	docs    progressDocumentLister
	reports progressReportReader
	cache   progressCache
	logger  *zap.Logger
	ttl     time.Duration
}

// NewProgressService constructs the service.
func NewProgressService(docs progressDocumentLister, reports progressReportReader, cache progressCache, logger *zap.Logger, ttl time.Duration) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProgressService{docs: docs, reports: reports, cache: cache, logger: logger, ttl: ttl}
}

// ComputeProgress walks the ordered type list over the latest version of each
// document. The first type whose status is not APPROVED becomes the next
// allowed document; everything after it is locked. REJECTED and
// REVISION_REQUESTED gate exactly like a missing document: the student must
// resubmit the same type. Each approved type contributes an equal 1/6 share.
func ComputeProgress(themeID string, docs []models.Document, latestReport *models.PlagiarismReport) models.ThesisProgress {
	latest := make(map[models.DocumentType]models.Document, len(docs))
	for _, doc := range docs {
		if current, ok := latest[doc.Type]; !ok || doc.Version > current.Version {
			latest[doc.Type] = doc
		}
	}

	progress := models.ThesisProgress{
		ThemeID: themeID,
		Types:   make([]models.DocumentTypeState, 0, len(models.DocumentTypeOrder)),
	}

	next := ""
	for _, docType := range models.DocumentTypeOrder {
		state := models.DocumentTypeState{Type: docType}
		if doc, ok := latest[docType]; ok {
			state.Status = doc.Status
			state.Version = doc.Version
		}
		if state.Status == models.DocumentStatusApproved {
			progress.ApprovedCount++
		} else if next == "" {
			next = string(docType)
		}
		state.Locked = next != "" && next != string(docType)
		progress.Types = append(progress.Types, state)
	}

	progress.OverallProgress = int(math.Round(100 * float64(progress.ApprovedCount) / float64(len(models.DocumentTypeOrder))))

	switch {
	case next != "":
		progress.NextAllowedDocument = next
	case latestReport != nil &&
		latestReport.Status == models.PlagiarismStatusCompleted &&
		latestReport.Passed != nil && *latestReport.Passed:
		progress.NextAllowedDocument = models.NextDocumentDefenseReady
	default:
		progress.NextAllowedDocument = NextDocumentNone
	}
	return progress
}

// Get returns the projection for a theme, serving from cache when possible.
func (s *ProgressService) Get(ctx context.Context, themeID string) (*models.ThesisProgress, error) {
	key := progressCacheKey(themeID)
	if s.cache != nil {
		var cached models.ThesisProgress
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("progress cache read failed", zap.Error(err), zap.String("theme_id", themeID))
		}
	}

	progress, err := s.Compute(ctx, themeID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, progress, s.ttl); err != nil {
			s.logger.Warn("progress cache write failed", zap.Error(err), zap.String("theme_id", themeID))
		}
	}
	return progress, nil
}

// Compute derives the projection from storage, bypassing the cache. The
// transition engine uses this for gating so a stale cache can never unlock a
// document type.
func (s *ProgressService) Compute(ctx context.Context, themeID string) (*models.ThesisProgress, error) {
	docs, err := s.docs.ListLatestByTheme(ctx, themeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme documents")
	}

	var latestReport *models.PlagiarismReport
	if s.reports != nil {
		report, err := s.reports.LatestByTheme(ctx, themeID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plagiarism report")
		}
		latestReport = report
	}

	progress := ComputeProgress(themeID, docs, latestReport)
	return &progress, nil
}

// Invalidate drops the cached projection after a transition. Failures are
// logged only; the projection is recomputed from rows on the next read.
func (s *ProgressService) Invalidate(ctx context.Context, themeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, progressCacheKey(themeID)); err != nil {
		s.logger.Warn("progress cache invalidation failed", zap.Error(err), zap.String("theme_id", themeID))
	}
}

func progressCacheKey(themeID string) string {
	return fmt.Sprintf("progress:%s", themeID)
}
