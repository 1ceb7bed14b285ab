package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/repository"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type plagiarismRepoStub struct {
	reports    map[string]*models.PlagiarismReport
	resolveErr error
	resolved   *repository.ResolveReportParams
}

func newPlagiarismRepoStub() *plagiarismRepoStub {
	return &plagiarismRepoStub{reports: make(map[string]*models.PlagiarismReport)}
}

func (p *plagiarismRepoStub) GetByID(ctx context.Context, id string) (*models.PlagiarismReport, error) {
	if report, ok := p.reports[id]; ok {
		copy := *report
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (p *plagiarismRepoStub) LatestByTheme(ctx context.Context, themeID string) (*models.PlagiarismReport, error) {
	var latest *models.PlagiarismReport
	for _, report := range p.reports {
		if report.ThemeID != themeID {
			continue
		}
		if latest == nil || report.CreatedAt.After(latest.CreatedAt) {
			latest = report
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copy := *latest
	return &copy, nil
}

func (p *plagiarismRepoStub) ListByTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error) {
	result := make([]models.PlagiarismReport, 0, len(p.reports))
	for _, report := range p.reports {
		if report.ThemeID == themeID {
			result = append(result, *report)
		}
	}
	return result, nil
}

func (p *plagiarismRepoStub) Resolve(ctx context.Context, params repository.ResolveReportParams) error {
	if p.resolveErr != nil {
		return p.resolveErr
	}
	report, ok := p.reports[params.ID]
	if !ok || report.Status != models.PlagiarismStatusPending {
		return sql.ErrNoRows
	}
	p.resolved = &params
	report.Status = models.PlagiarismStatusCompleted
	report.Score = &params.Score
	report.Passed = &params.Passed
	report.SourcesFound = &params.SourcesFound
	report.CheckedAt = &params.CheckedAt
	return nil
}

func pendingReport() *models.PlagiarismReport {
	return &models.PlagiarismReport{
		ID:            "report-1",
		DocumentID:    "doc-final",
		Version:       1,
		ThemeID:       "theme-1",
		StudentID:     "student-1",
		Status:        models.PlagiarismStatusPending,
		ThresholdUsed: 20,
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
}

func newPlagiarismFixture() (*plagiarismRepoStub, *notifierStub, *auditStub, *progressStub, *PlagiarismService) {
	repo := newPlagiarismRepoStub()
	notifier := &notifierStub{}
	audit := &auditStub{}
	progress := &progressStub{}
	svc := NewPlagiarismService(repo, notifier, audit, progress, nil, nil)
	return repo, notifier, audit, progress, svc
}

func TestPlagiarismServiceResolvePassing(t *testing.T) {
	repo, notifier, audit, progress, svc := newPlagiarismFixture()
	repo.reports["report-1"] = pendingReport()

	report, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 12.5, SourcesFound: 3})
	require.NoError(t, err)
	require.Equal(t, models.PlagiarismStatusCompleted, report.Status)
	require.NotNil(t, report.Passed)
	require.True(t, *report.Passed)
	require.Equal(t, []string{"theme-1"}, progress.invalidated)
	require.Len(t, notifier.sent, 1)
	require.Len(t, audit.logs, 1)
}

func TestPlagiarismServiceResolveFailing(t *testing.T) {
	repo, _, _, _, svc := newPlagiarismFixture()
	repo.reports["report-1"] = pendingReport()

	report, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 35})
	require.NoError(t, err)
	require.NotNil(t, report.Passed)
	require.False(t, *report.Passed)
}

func TestPlagiarismServiceScoreAtThresholdPasses(t *testing.T) {
	repo, _, _, _, svc := newPlagiarismFixture()
	repo.reports["report-1"] = pendingReport()

	report, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 20})
	require.NoError(t, err)
	require.True(t, *report.Passed)
}

func TestPlagiarismServiceUsesCapturedThreshold(t *testing.T) {
	repo, _, _, _, svc := newPlagiarismFixture()
	report := pendingReport()
	report.ThresholdUsed = 10
	repo.reports["report-1"] = report

	resolved, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 15})
	require.NoError(t, err)
	require.False(t, *resolved.Passed)
}

func TestPlagiarismServiceResolveIdempotent(t *testing.T) {
	repo, notifier, _, _, svc := newPlagiarismFixture()
	report := pendingReport()
	score := 12.5
	passed := true
	report.Status = models.PlagiarismStatusCompleted
	report.Score = &score
	report.Passed = &passed
	repo.reports["report-1"] = report

	resolved, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 99})
	require.NoError(t, err)
	require.Equal(t, 12.5, *resolved.Score)
	require.Nil(t, repo.resolved)
	require.Empty(t, notifier.sent)
}

func TestPlagiarismServiceConcurrentResolutionReturnsWinner(t *testing.T) {
	repo, _, _, _, svc := newPlagiarismFixture()
	report := pendingReport()
	repo.reports["report-1"] = report
	repo.resolveErr = sql.ErrNoRows

	resolved, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 5})
	require.NoError(t, err)
	require.Equal(t, "report-1", resolved.ID)
}

func TestPlagiarismServiceResolveUnknownReport(t *testing.T) {
	_, _, _, _, svc := newPlagiarismFixture()

	_, err := svc.Resolve(context.Background(), "missing", dto.ResolvePlagiarismRequest{Score: 5})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPlagiarismServiceRejectsOutOfRangeScore(t *testing.T) {
	repo, _, _, _, svc := newPlagiarismFixture()
	repo.reports["report-1"] = pendingReport()

	_, err := svc.Resolve(context.Background(), "report-1", dto.ResolvePlagiarismRequest{Score: 120})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
