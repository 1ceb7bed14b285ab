package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type juryRepoStub struct {
	decision        *models.JuryDecision
	correctionsDoc  string
	upsertCalls     int
	correctionCalls int
}

func (j *juryRepoStub) GetByTheme(ctx context.Context, themeID string) (*models.JuryDecision, error) {
	if j.decision == nil || j.decision.ThemeID != themeID {
		return nil, sql.ErrNoRows
	}
	copy := *j.decision
	return &copy, nil
}

func (j *juryRepoStub) Upsert(ctx context.Context, decision *models.JuryDecision) error {
	j.upsertCalls++
	j.decision = decision
	return nil
}

func (j *juryRepoStub) UpsertWithCorrections(ctx context.Context, decision *models.JuryDecision, finalDocumentID string) error {
	j.correctionCalls++
	j.decision = decision
	j.correctionsDoc = finalDocumentID
	return nil
}

type gateStub struct {
	ready bool
}

func (g *gateStub) IsDefenseReady(ctx context.Context, themeID string) (bool, error) {
	return g.ready, nil
}

type deliberationMetricsStub struct {
	decisions []models.JuryDecisionOutcome
}

func (d *deliberationMetricsStub) ObserveDeliberation(decision models.JuryDecisionOutcome) {
	d.decisions = append(d.decisions, decision)
}

type juryFixture struct {
	repo     *juryRepoStub
	docs     *documentRepoStub
	gate     *gateStub
	notifier *notifierStub
	audit    *auditStub
	progress *progressStub
	metrics  *deliberationMetricsStub
	svc      *JuryService
}

func newJuryFixture(ready bool) *juryFixture {
	f := &juryFixture{
		repo:     &juryRepoStub{},
		docs:     newDocumentRepoStub(),
		gate:     &gateStub{ready: ready},
		notifier: &notifierStub{},
		audit:    &auditStub{},
		progress: &progressStub{},
		metrics:  &deliberationMetricsStub{},
	}
	f.svc = NewJuryService(f.repo, newThemeReaderStub(), f.docs, f.gate, f.notifier, f.audit, f.progress, f.metrics, nil, nil)
	return f
}

func juryClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "jury-1", Role: models.RoleJury}
}

func TestJuryServiceRecordApproved(t *testing.T) {
	f := newJuryFixture(true)
	grade := 15.0

	decision, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &grade,
		Mention:  "Bien",
	}, juryClaims())
	require.NoError(t, err)
	require.Equal(t, models.JuryDecisionApproved, decision.Decision)
	require.Equal(t, 15.0, *decision.Grade)
	require.Equal(t, "student-1", decision.StudentID)
	require.Equal(t, 1, f.repo.upsertCalls)
	require.Zero(t, f.repo.correctionCalls)
	require.Equal(t, []string{"theme-1"}, f.progress.invalidated)
	require.Len(t, f.notifier.sent, 1)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, []models.JuryDecisionOutcome{models.JuryDecisionApproved}, f.metrics.decisions)
}

func TestJuryServiceApprovedRequiresGrade(t *testing.T) {
	f := newJuryFixture(true)

	_, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
	}, juryClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJuryServiceNotDefenseReady(t *testing.T) {
	f := newJuryFixture(false)
	grade := 12.0

	_, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &grade,
	}, juryClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotDefenseReady.Code, appErrors.FromError(err).Code)
	require.Zero(t, f.repo.upsertCalls)
}

func TestJuryServiceCorrectionsReopenFinalVersion(t *testing.T) {
	f := newJuryFixture(true)
	f.docs.docs["doc-final"] = &models.Document{
		ID: "doc-final", ThemeID: "theme-1", StudentID: "student-1",
		Type: models.DocumentTypeFinalVersion, Status: models.DocumentStatusApproved, Version: 1,
	}
	deadline := time.Now().UTC().Add(14 * 24 * time.Hour)

	decision, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision:               models.JuryDecisionCorrectionsRequired,
		CorrectionsDeadline:    &deadline,
		CorrectionsDescription: "revise chapter 3 methodology",
	}, juryClaims())
	require.NoError(t, err)
	require.True(t, decision.CorrectionsRequired)
	require.Equal(t, 1, f.repo.correctionCalls)
	require.Equal(t, "doc-final", f.repo.correctionsDoc)
	require.Zero(t, f.repo.upsertCalls)
}

func TestJuryServiceCorrectionsRequireDescription(t *testing.T) {
	f := newJuryFixture(true)

	_, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionCorrectionsRequired,
	}, juryClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJuryServiceCorrectionsWithoutFinalVersion(t *testing.T) {
	f := newJuryFixture(true)

	_, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision:               models.JuryDecisionCorrectionsRequired,
		CorrectionsDescription: "revise chapter 3",
	}, juryClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestJuryServiceRejectedWithoutGrade(t *testing.T) {
	f := newJuryFixture(true)

	decision, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionRejected,
		Notes:    "insufficient original contribution",
	}, juryClaims())
	require.NoError(t, err)
	require.Equal(t, models.JuryDecisionRejected, decision.Decision)
	require.Nil(t, decision.Grade)
}

func TestJuryServiceSecondDeliberationReplacesFirst(t *testing.T) {
	f := newJuryFixture(true)
	grade := 11.0

	_, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &grade,
	}, juryClaims())
	require.NoError(t, err)

	better := 14.0
	decision, err := f.svc.RecordDecision(context.Background(), "theme-1", dto.RecordDecisionRequest{
		Decision: models.JuryDecisionApproved,
		Grade:    &better,
	}, juryClaims())
	require.NoError(t, err)
	require.Equal(t, 2, f.repo.upsertCalls)
	require.Equal(t, 14.0, *decision.Grade)
}

func TestJuryServiceGetScopedForStudents(t *testing.T) {
	f := newJuryFixture(true)
	f.repo.decision = &models.JuryDecision{ThemeID: "theme-1", StudentID: "student-1", Decision: models.JuryDecisionApproved}

	_, err := f.svc.Get(context.Background(), "theme-1", &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	decision, err := f.svc.Get(context.Background(), "theme-1", &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.JuryDecisionApproved, decision.Decision)
}
