package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

func approvedDoc(docType models.DocumentType, version int) models.Document {
	return models.Document{
		ID:      string(docType) + "-doc",
		ThemeID: "theme-1",
		Type:    docType,
		Status:  models.DocumentStatusApproved,
		Version: version,
	}
}

func TestComputeProgressEmptyTheme(t *testing.T) {
	progress := ComputeProgress("theme-1", nil, nil)
	require.Equal(t, 0, progress.ApprovedCount)
	require.Equal(t, 0, progress.OverallProgress)
	require.Equal(t, string(models.DocumentTypePlan), progress.NextAllowedDocument)
	require.Len(t, progress.Types, 6)
	require.False(t, progress.Types[0].Locked)
	for _, state := range progress.Types[1:] {
		require.True(t, state.Locked, "type %s should be locked", state.Type)
	}
}

func TestComputeProgressFirstApprovalUnlocksNext(t *testing.T) {
	docs := []models.Document{approvedDoc(models.DocumentTypePlan, 1)}
	progress := ComputeProgress("theme-1", docs, nil)
	require.Equal(t, 1, progress.ApprovedCount)
	require.Equal(t, 17, progress.OverallProgress)
	require.Equal(t, string(models.DocumentTypeChapter1), progress.NextAllowedDocument)
}

func TestComputeProgressRejectionGatesLikeMissing(t *testing.T) {
	docs := []models.Document{
		approvedDoc(models.DocumentTypePlan, 1),
		{ThemeID: "theme-1", Type: models.DocumentTypeChapter1, Status: models.DocumentStatusRejected, Version: 2},
	}
	progress := ComputeProgress("theme-1", docs, nil)
	require.Equal(t, string(models.DocumentTypeChapter1), progress.NextAllowedDocument)
	require.Equal(t, 1, progress.ApprovedCount)
	for _, state := range progress.Types {
		if state.Type == models.DocumentTypeChapter2 {
			require.True(t, state.Locked)
		}
	}
}

func TestComputeProgressLatestVersionWins(t *testing.T) {
	docs := []models.Document{
		approvedDoc(models.DocumentTypePlan, 1),
		{ThemeID: "theme-1", Type: models.DocumentTypePlan, Status: models.DocumentStatusSubmitted, Version: 2},
	}
	progress := ComputeProgress("theme-1", docs, nil)
	require.Equal(t, 0, progress.ApprovedCount)
	require.Equal(t, string(models.DocumentTypePlan), progress.NextAllowedDocument)
}

func allApprovedDocs() []models.Document {
	docs := make([]models.Document, 0, len(models.DocumentTypeOrder))
	for _, docType := range models.DocumentTypeOrder {
		docs = append(docs, approvedDoc(docType, 1))
	}
	return docs
}

func TestComputeProgressAllApprovedWithoutReport(t *testing.T) {
	progress := ComputeProgress("theme-1", allApprovedDocs(), nil)
	require.Equal(t, 6, progress.ApprovedCount)
	require.Equal(t, 100, progress.OverallProgress)
	require.Equal(t, NextDocumentNone, progress.NextAllowedDocument)
}

func TestComputeProgressDefenseReady(t *testing.T) {
	passed := true
	report := &models.PlagiarismReport{
		Status: models.PlagiarismStatusCompleted,
		Passed: &passed,
	}
	progress := ComputeProgress("theme-1", allApprovedDocs(), report)
	require.Equal(t, models.NextDocumentDefenseReady, progress.NextAllowedDocument)
}

func TestComputeProgressPendingReportNotDefenseReady(t *testing.T) {
	report := &models.PlagiarismReport{Status: models.PlagiarismStatusPending}
	progress := ComputeProgress("theme-1", allApprovedDocs(), report)
	require.Equal(t, NextDocumentNone, progress.NextAllowedDocument)
}

func TestComputeProgressFailedReportNotDefenseReady(t *testing.T) {
	passed := false
	report := &models.PlagiarismReport{
		Status: models.PlagiarismStatusCompleted,
		Passed: &passed,
	}
	progress := ComputeProgress("theme-1", allApprovedDocs(), report)
	require.Equal(t, NextDocumentNone, progress.NextAllowedDocument)
}

type progressDocsStub struct {
	docs  []models.Document
	calls int
}

func (p *progressDocsStub) ListLatestByTheme(ctx context.Context, themeID string) ([]models.Document, error) {
	p.calls++
	return p.docs, nil
}

type progressReportsStub struct {
	report *models.PlagiarismReport
}

func (p *progressReportsStub) LatestByTheme(ctx context.Context, themeID string) (*models.PlagiarismReport, error) {
	if p.report == nil {
		return nil, sql.ErrNoRows
	}
	return p.report, nil
}

type progressCacheStub struct {
	entries map[string]*models.ThesisProgress
	deleted []string
}

func newProgressCacheStub() *progressCacheStub {
	return &progressCacheStub{entries: make(map[string]*models.ThesisProgress)}
}

func (c *progressCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.ThesisProgress)) = *cached
	return nil
}

func (c *progressCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.entries[key] = value.(*models.ThesisProgress)
	return nil
}

func (c *progressCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.deleted = append(c.deleted, pattern)
	delete(c.entries, pattern)
	return nil
}

func TestProgressServiceGetCachesProjection(t *testing.T) {
	docs := &progressDocsStub{docs: []models.Document{approvedDoc(models.DocumentTypePlan, 1)}}
	cache := newProgressCacheStub()
	svc := NewProgressService(docs, &progressReportsStub{}, cache, nil, time.Minute)

	first, err := svc.Get(context.Background(), "theme-1")
	require.NoError(t, err)
	require.Equal(t, 17, first.OverallProgress)
	require.Equal(t, 1, docs.calls)

	second, err := svc.Get(context.Background(), "theme-1")
	require.NoError(t, err)
	require.Equal(t, first.OverallProgress, second.OverallProgress)
	require.Equal(t, 1, docs.calls)
}

func TestProgressServiceComputeBypassesCache(t *testing.T) {
	docs := &progressDocsStub{docs: []models.Document{approvedDoc(models.DocumentTypePlan, 1)}}
	cache := newProgressCacheStub()
	svc := NewProgressService(docs, &progressReportsStub{}, cache, nil, time.Minute)

	_, err := svc.Get(context.Background(), "theme-1")
	require.NoError(t, err)

	_, err = svc.Compute(context.Background(), "theme-1")
	require.NoError(t, err)
	require.Equal(t, 2, docs.calls)
}

func TestProgressServiceInvalidate(t *testing.T) {
	docs := &progressDocsStub{}
	cache := newProgressCacheStub()
	svc := NewProgressService(docs, &progressReportsStub{}, cache, nil, time.Minute)

	svc.Invalidate(context.Background(), "theme-1")
	require.Equal(t, []string{"progress:theme-1"}, cache.deleted)
}
