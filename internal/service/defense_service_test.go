package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/export"
)

type defenseProgressStub struct {
	progress *models.ThesisProgress
}

func (d *defenseProgressStub) Get(ctx context.Context, themeID string) (*models.ThesisProgress, error) {
	return d.progress, nil
}

func (d *defenseProgressStub) Compute(ctx context.Context, themeID string) (*models.ThesisProgress, error) {
	return d.progress, nil
}

type juryReaderStub struct {
	decision *models.JuryDecision
}

func (j *juryReaderStub) GetByTheme(ctx context.Context, themeID string) (*models.JuryDecision, error) {
	if j.decision == nil {
		return nil, sql.ErrNoRows
	}
	return j.decision, nil
}

type minutesRendererStub struct {
	rendered []export.Dataset
}

func (m *minutesRendererStub) Render(data export.Dataset, title string) ([]byte, error) {
	m.rendered = append(m.rendered, data)
	return []byte("%PDF-1.4 minutes"), nil
}

func completedReport(passed bool) *models.PlagiarismReport {
	report := pendingReport()
	report.Status = models.PlagiarismStatusCompleted
	report.Passed = &passed
	return report
}

func newDefenseFixture(progress *models.ThesisProgress, report *models.PlagiarismReport, decision *models.JuryDecision) (*DefenseService, *minutesRendererStub) {
	reports := newPlagiarismRepoStub()
	if report != nil {
		reports.reports[report.ID] = report
	}
	renderer := &minutesRendererStub{}
	svc := NewDefenseService(newThemeReaderStub(), &defenseProgressStub{progress: progress}, reports, &juryReaderStub{decision: decision}, renderer, nil)
	return svc, renderer
}

func TestDefenseServiceReady(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, completedReport(true), nil)

	readiness, err := svc.Evaluate(context.Background(), "theme-1")
	require.NoError(t, err)
	require.True(t, readiness.Ready)
	require.Empty(t, readiness.Reasons)
	require.NotNil(t, readiness.Plagiarism)
}

func TestDefenseServiceBlockedByProgress(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 83}, completedReport(true), nil)

	readiness, err := svc.Evaluate(context.Background(), "theme-1")
	require.NoError(t, err)
	require.False(t, readiness.Ready)
	require.Len(t, readiness.Reasons, 1)
	require.Contains(t, readiness.Reasons[0], "83%")
}

func TestDefenseServiceBlockedByMissingReport(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, nil, nil)

	readiness, err := svc.Evaluate(context.Background(), "theme-1")
	require.NoError(t, err)
	require.False(t, readiness.Ready)
	require.Contains(t, readiness.Reasons, "no plagiarism report recorded")
}

func TestDefenseServiceBlockedByPendingReport(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, pendingReport(), nil)

	readiness, err := svc.Evaluate(context.Background(), "theme-1")
	require.NoError(t, err)
	require.False(t, readiness.Ready)
	require.Contains(t, readiness.Reasons, "plagiarism verification pending")
}

func TestDefenseServiceBlockedByFailedReport(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, completedReport(false), nil)

	readiness, err := svc.Evaluate(context.Background(), "theme-1")
	require.NoError(t, err)
	require.False(t, readiness.Ready)
	require.Contains(t, readiness.Reasons, "plagiarism verification failed")
}

func TestDefenseServiceUnknownTheme(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, nil, nil)

	_, err := svc.Evaluate(context.Background(), "theme-404")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDefenseServiceExportMinutes(t *testing.T) {
	grade := 15.0
	mention := "Très bien"
	decision := &models.JuryDecision{
		ThemeID:   "theme-1",
		StudentID: "student-1",
		Decision:  models.JuryDecisionApproved,
		Grade:     &grade,
		Mention:   &mention,
		DecidedBy: "jury-1",
		DecidedAt: time.Now().UTC(),
	}
	svc, renderer := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, completedReport(true), decision)

	rendered, err := svc.ExportMinutes(context.Background(), "theme-1")
	require.NoError(t, err)
	require.NotEmpty(t, rendered)
	require.Len(t, renderer.rendered, 1)
	require.Equal(t, "15.00", renderer.rendered[0].Rows[0]["Grade"])
	require.Equal(t, "Très bien", renderer.rendered[0].Rows[0]["Mention"])
}

func TestDefenseServiceExportMinutesWithoutDecision(t *testing.T) {
	svc, _ := newDefenseFixture(&models.ThesisProgress{OverallProgress: 100}, completedReport(true), nil)

	_, err := svc.ExportMinutes(context.Background(), "theme-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
