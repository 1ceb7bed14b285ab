package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/repository"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

// documentRepoWithReports mimics the transactional coupling of the real
// repository: approving a final version also creates the pending report.
type documentRepoWithReports struct {
	*documentRepoStub
	reports *plagiarismRepoStub
}

func (d *documentRepoWithReports) ApproveFinalVersion(ctx context.Context, params repository.ApproveFinalVersionParams) error {
	if err := d.documentRepoStub.ApproveFinalVersion(ctx, params); err != nil {
		return err
	}
	report := *params.Report
	if report.ID == "" {
		report.ID = "report-" + params.Review.ID
	}
	report.Status = models.PlagiarismStatusPending
	report.ThresholdUsed = params.Threshold
	d.reports.reports[report.ID] = &report
	return nil
}

type workflowFixture struct {
	docs       *documentRepoWithReports
	reports    *plagiarismRepoStub
	jury       *juryRepoStub
	progress   *ProgressService
	documents  *DocumentService
	plagiarism *PlagiarismService
	defense    *DefenseService
	jurySvc    *JuryService
}

func newWorkflowFixture() *workflowFixture {
	f := &workflowFixture{
		reports: newPlagiarismRepoStub(),
		jury:    &juryRepoStub{},
	}
	f.docs = &documentRepoWithReports{documentRepoStub: newDocumentRepoStub(), reports: f.reports}
	themes := newThemeReaderStub()

	f.progress = NewProgressService(f.docs, f.reports, nil, nil, 0)
	f.documents = NewDocumentService(f.docs, themes, newFileStorageStub(), nil, nil, nil, f.progress, nil, nil, DocumentServiceConfig{
		MaxFileSize:         1 << 20,
		AllowedMIMEs:        []string{"application/pdf"},
		PlagiarismThreshold: 20,
	})
	f.plagiarism = NewPlagiarismService(f.reports, nil, nil, f.progress, nil, nil)
	f.defense = NewDefenseService(themes, f.progress, f.reports, f.jury, &minutesRendererStub{}, nil)
	f.jurySvc = NewJuryService(f.jury, themes, f.docs, f.defense, nil, nil, f.progress, nil, nil, nil)
	return f
}

func (f *workflowFixture) submitAndApprove(t *testing.T, docType models.DocumentType) {
	t.Helper()
	ctx := context.Background()
	_, err := f.documents.Submit(ctx, "theme-1", dto.SubmitDocumentRequest{Type: docType}, pdfUpload(), studentClaims())
	require.NoError(t, err)
	_, err = f.documents.Approve(ctx, "theme-1", docType, supervisorClaims())
	require.NoError(t, err)
}

func TestWorkflowFullLifecycle(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()

	// Chapter cannot jump the queue before the plan is approved.
	_, err := f.documents.Submit(ctx, "theme-1", dto.SubmitDocumentRequest{Type: models.DocumentTypeChapter1}, pdfUpload(), studentClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrOutOfSequence.Code, appErrors.FromError(err).Code)

	f.submitAndApprove(t, models.DocumentTypePlan)

	progress, err := f.progress.Compute(ctx, "theme-1")
	require.NoError(t, err)
	require.Equal(t, 17, progress.OverallProgress)
	require.Equal(t, string(models.DocumentTypeChapter1), progress.NextAllowedDocument)

	f.submitAndApprove(t, models.DocumentTypeChapter1)
	f.submitAndApprove(t, models.DocumentTypeChapter2)
	f.submitAndApprove(t, models.DocumentTypeChapter3)
	f.submitAndApprove(t, models.DocumentTypeChapter4)
	f.submitAndApprove(t, models.DocumentTypeFinalVersion)

	// Final approval spawned the pending report; deliberation stays gated.
	progress, err = f.progress.Compute(ctx, "theme-1")
	require.NoError(t, err)
	require.Equal(t, 100, progress.OverallProgress)
	require.Equal(t, NextDocumentNone, progress.NextAllowedDocument)

	readiness, err := f.defense.Evaluate(ctx, "theme-1")
	require.NoError(t, err)
	require.False(t, readiness.Ready)
	require.Contains(t, readiness.Reasons, "plagiarism verification pending")

	grade := 15.0
	_, err = f.jurySvc.RecordDecision(ctx, "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &grade,
	}, juryClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotDefenseReady.Code, appErrors.FromError(err).Code)

	var reportID string
	for id := range f.reports.reports {
		reportID = id
	}
	require.NotEmpty(t, reportID)
	report, err := f.plagiarism.Resolve(ctx, reportID, dto.ResolvePlagiarismRequest{Score: 12.5, SourcesFound: 2})
	require.NoError(t, err)
	require.True(t, *report.Passed)

	progress, err = f.progress.Compute(ctx, "theme-1")
	require.NoError(t, err)
	require.Equal(t, models.NextDocumentDefenseReady, progress.NextAllowedDocument)

	readiness, err = f.defense.Evaluate(ctx, "theme-1")
	require.NoError(t, err)
	require.True(t, readiness.Ready)

	decision, err := f.jurySvc.RecordDecision(ctx, "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &grade,
	}, juryClaims())
	require.NoError(t, err)
	require.Equal(t, models.JuryDecisionApproved, decision.Decision)
	require.Equal(t, 15.0, *decision.Grade)
}

func TestWorkflowCorrectionsLoop(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()

	for _, docType := range models.DocumentTypeOrder {
		f.submitAndApprove(t, docType)
	}

	var reportID string
	for id := range f.reports.reports {
		reportID = id
	}
	_, err := f.plagiarism.Resolve(ctx, reportID, dto.ResolvePlagiarismRequest{Score: 8})
	require.NoError(t, err)

	_, err = f.jurySvc.RecordDecision(ctx, "theme-1", dto.RecordDecisionRequest{
		Decision:               models.JuryDecisionCorrectionsRequired,
		CorrectionsDescription: "rework evaluation chapter",
	}, juryClaims())
	require.NoError(t, err)
	require.Equal(t, 1, f.jury.correctionCalls)

	// The real repository flips the final version in the same transaction;
	// mirror that effect on the stub before checking the resolver.
	finalDoc, err := f.docs.GetActive(ctx, "theme-1", models.DocumentTypeFinalVersion)
	require.NoError(t, err)
	require.Equal(t, finalDoc.ID, f.jury.correctionsDoc)
	f.docs.docs[finalDoc.ID].Status = models.DocumentStatusRevisionRequested

	progress, err := f.progress.Compute(ctx, "theme-1")
	require.NoError(t, err)
	require.Equal(t, string(models.DocumentTypeFinalVersion), progress.NextAllowedDocument)
	require.Equal(t, 83, progress.OverallProgress)

	// The corrected final version goes through the full cycle again.
	doc, err := f.documents.Submit(ctx, "theme-1", dto.SubmitDocumentRequest{Type: models.DocumentTypeFinalVersion}, pdfUpload(), studentClaims())
	require.NoError(t, err)
	require.Equal(t, 2, doc.Version)
}
