package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/middleware"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/service"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type documentServiceStub struct {
	submitErr error
	reviewErr error
	reviewed  []string
}

func (s *documentServiceStub) Submit(ctx context.Context, themeID string, req dto.SubmitDocumentRequest, upload service.DocumentUpload, actor *models.JWTClaims) (*models.Document, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &models.Document{
		ID:      "doc-1",
		ThemeID: themeID,
		Type:    req.Type,
		Status:  models.DocumentStatusSubmitted,
		Version: 1,
	}, nil
}

func (s *documentServiceStub) review(themeID string, docType models.DocumentType, status models.DocumentStatus, action string) (*models.Document, error) {
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	s.reviewed = append(s.reviewed, action)
	return &models.Document{ID: "doc-1", ThemeID: themeID, Type: docType, Status: status, Version: 1}, nil
}

func (s *documentServiceStub) StartReview(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error) {
	return s.review(themeID, docType, models.DocumentStatusUnderReview, "start_review")
}

func (s *documentServiceStub) Approve(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error) {
	return s.review(themeID, docType, models.DocumentStatusApproved, "approve")
}

func (s *documentServiceStub) Reject(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error) {
	return s.review(themeID, docType, models.DocumentStatusRejected, "reject")
}

func (s *documentServiceStub) RequestRevision(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error) {
	return s.review(themeID, docType, models.DocumentStatusRevisionRequested, "request_revision")
}

func (s *documentServiceStub) History(ctx context.Context, themeID string, query dto.DocumentHistoryQuery, actor *models.JWTClaims) ([]models.Document, error) {
	return []models.Document{}, nil
}

func (s *documentServiceStub) GetDownloadURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, error) {
	return "/api/v1/documents/" + documentID + "/download?token=test", nil
}

func (s *documentServiceStub) Download(ctx context.Context, documentID, token string, actor *models.JWTClaims) (*service.DocumentDownload, error) {
	return nil, appErrors.ErrNotFound
}

type juryServiceStub struct {
	recordErr error
}

func (s *juryServiceStub) RecordDecision(ctx context.Context, themeID string, req dto.RecordDecisionRequest, actor *models.JWTClaims) (*models.JuryDecision, error) {
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &models.JuryDecision{ThemeID: themeID, StudentID: "student-1", Decision: req.Decision, DecidedBy: actor.UserID}, nil
}

func (s *juryServiceStub) Get(ctx context.Context, themeID string, actor *models.JWTClaims) (*models.JuryDecision, error) {
	return nil, appErrors.ErrNotFound
}

type defenseServiceStub struct {
	readiness *dto.DefenseReadiness
}

func (s *defenseServiceStub) Evaluate(ctx context.Context, themeID string) (*dto.DefenseReadiness, error) {
	if s.readiness == nil {
		return nil, appErrors.ErrNotFound
	}
	return s.readiness, nil
}

func (s *defenseServiceStub) ExportMinutes(ctx context.Context, themeID string) ([]byte, error) {
	return []byte("%PDF-1.4 minutes"), nil
}

type plagiarismServiceStub struct {
	resolved []string
}

func (s *plagiarismServiceStub) Resolve(ctx context.Context, reportID string, req dto.ResolvePlagiarismRequest) (*models.PlagiarismReport, error) {
	s.resolved = append(s.resolved, reportID)
	passed := true
	return &models.PlagiarismReport{ID: reportID, Status: models.PlagiarismStatusCompleted, Passed: &passed}, nil
}

func (s *plagiarismServiceStub) Get(ctx context.Context, reportID string) (*models.PlagiarismReport, error) {
	return nil, appErrors.ErrNotFound
}

func (s *plagiarismServiceStub) ListForTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error) {
	return []models.PlagiarismReport{}, nil
}

type themeServiceStub struct{}

func (s *themeServiceStub) Create(ctx context.Context, req dto.CreateThemeRequest) (*models.Theme, error) {
	return &models.Theme{ID: "theme-1", Title: req.Title, StudentID: req.StudentID, SupervisorID: req.SupervisorID}, nil
}

func (s *themeServiceStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Theme, error) {
	return &models.Theme{ID: id, StudentID: "student-1", SupervisorID: "supervisor-1"}, nil
}

func (s *themeServiceStub) List(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]models.Theme, error) {
	return []models.Theme{}, nil
}

func (s *themeServiceStub) ExportCSV(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]byte, error) {
	return []byte("ID,Title\n"), nil
}

type progressServiceStub struct{}

func (s *progressServiceStub) Get(ctx context.Context, themeID string) (*models.ThesisProgress, error) {
	return &models.ThesisProgress{ThemeID: themeID, OverallProgress: 17, NextAllowedDocument: "CHAPTER_1"}, nil
}

type workflowRouterDeps struct {
	docs    *documentServiceStub
	jury    *juryServiceStub
	defense *defenseServiceStub
	reports *plagiarismServiceStub
}

func newWorkflowRouter(deps workflowRouterDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if deps.docs == nil {
		deps.docs = &documentServiceStub{}
	}
	if deps.jury == nil {
		deps.jury = &juryServiceStub{}
	}
	if deps.defense == nil {
		deps.defense = &defenseServiceStub{readiness: &dto.DefenseReadiness{ThemeID: "theme-1", Ready: true, OverallProgress: 100}}
	}
	if deps.reports == nil {
		deps.reports = &plagiarismServiceStub{}
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "test-user", Role: models.UserRole(role)})
		}
		c.Next()
	})

	themes := &themeServiceStub{}
	documentHandler := NewDocumentHandler(deps.docs)
	juryHandler := NewJuryHandler(deps.jury)
	defenseHandler := NewDefenseHandler(deps.defense)
	plagiarismHandler := NewPlagiarismHandler(deps.reports)
	progressHandler := NewProgressHandler(&progressServiceStub{}, themes)

	api := router.Group("/api/v1")
	api.POST("/themes/:id/documents", middleware.RequireRoles(models.RoleStudent), documentHandler.Submit)
	api.POST("/themes/:id/documents/:type/review", middleware.RequireRoles(models.RoleSupervisor, models.RoleDepartmentHead), documentHandler.Review)
	api.GET("/themes/:id/documents", documentHandler.History)
	api.GET("/themes/:id/progress", progressHandler.Get)
	api.GET("/themes/:id/defense-readiness", defenseHandler.Readiness)
	api.POST("/plagiarism/reports/:id/resolve", middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin), plagiarismHandler.Resolve)
	api.POST("/themes/:id/deliberation", middleware.RequireRoles(models.RoleJury), juryHandler.Record)
	api.GET("/themes/:id/deliberation/minutes", middleware.RequireRoles(models.RoleJury, models.RoleDepartmentHead, models.RoleAdmin), defenseHandler.Minutes)
	return router
}

type testEnvelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func multipartSubmission(t *testing.T, docType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("type", docType))
	part, err := writer.CreateFormFile("file", "plan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test content"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func performRequest(router *gin.Engine, method, path, role string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWorkflowRoutesRequireAuthentication(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/deliberation", "", nil, "application/json")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(router, http.MethodGet, "/api/v1/themes/theme-1/progress", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitDocumentAsStudent(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})
	body, contentType := multipartSubmission(t, "PLAN")

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents", "STUDENT", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Nil(t, envelope.Error)
	var doc models.Document
	require.NoError(t, json.Unmarshal(envelope.Data, &doc))
	require.Equal(t, models.DocumentTypePlan, doc.Type)
	require.Equal(t, models.DocumentStatusSubmitted, doc.Status)
}

func TestSubmitDocumentForbiddenForSupervisor(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})
	body, contentType := multipartSubmission(t, "PLAN")

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents", "SUPERVISOR", body, contentType)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitDocumentOutOfSequence(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{docs: &documentServiceStub{submitErr: appErrors.ErrOutOfSequence}})
	body, contentType := multipartSubmission(t, "CHAPTER_2")

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents", "STUDENT", body, contentType)
	require.Equal(t, http.StatusConflict, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrOutOfSequence.Code, envelope.Error.Code)
}

func TestReviewApproveAsSupervisor(t *testing.T) {
	docs := &documentServiceStub{}
	router := newWorkflowRouter(workflowRouterDeps{docs: docs})
	payload := bytes.NewBufferString(`{"action":"APPROVE"}`)

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents/plan/review", "SUPERVISOR", payload, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"approve"}, docs.reviewed)

	envelope := decodeEnvelope(t, rec)
	var doc models.Document
	require.NoError(t, json.Unmarshal(envelope.Data, &doc))
	require.Equal(t, models.DocumentStatusApproved, doc.Status)
}

func TestReviewForbiddenForStudent(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})
	payload := bytes.NewBufferString(`{"action":"APPROVE"}`)

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents/plan/review", "STUDENT", payload, "application/json")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewRejectsUnknownAction(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})
	payload := bytes.NewBufferString(`{"action":"ESCALATE"}`)

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/documents/plan/review", "SUPERVISOR", payload, "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeliberationBlockedBeforeReadiness(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{jury: &juryServiceStub{recordErr: appErrors.ErrNotDefenseReady}})
	payload := bytes.NewBufferString(`{"decision":"APPROVED","grade":15}`)

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/deliberation", "JURY", payload, "application/json")
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrNotDefenseReady.Code, envelope.Error.Code)
}

func TestDeliberationRecordedByJury(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})
	payload := bytes.NewBufferString(`{"decision":"APPROVED","grade":15,"mention":"Bien"}`)

	rec := performRequest(router, http.MethodPost, "/api/v1/themes/theme-1/deliberation", "JURY", payload, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	var decision models.JuryDecision
	require.NoError(t, json.Unmarshal(envelope.Data, &decision))
	require.Equal(t, models.JuryDecisionApproved, decision.Decision)
	require.Equal(t, "test-user", decision.DecidedBy)
}

func TestResolvePlagiarismRoleMatrix(t *testing.T) {
	reports := &plagiarismServiceStub{}
	router := newWorkflowRouter(workflowRouterDeps{reports: reports})
	payload := `{"score":12.5,"sources_found":2}`

	rec := performRequest(router, http.MethodPost, "/api/v1/plagiarism/reports/report-1/resolve", "SUPERVISOR",
		bytes.NewBufferString(payload), "application/json")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, reports.resolved)

	rec = performRequest(router, http.MethodPost, "/api/v1/plagiarism/reports/report-1/resolve", "DEPARTMENT_HEAD",
		bytes.NewBufferString(payload), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"report-1"}, reports.resolved)
}

func TestDefenseReadinessVisibleToStudent(t *testing.T) {
	blocked := &defenseServiceStub{readiness: &dto.DefenseReadiness{
		ThemeID:         "theme-1",
		OverallProgress: 83,
		Reasons:         []string{"document approval incomplete (83%)"},
	}}
	router := newWorkflowRouter(workflowRouterDeps{defense: blocked})

	rec := performRequest(router, http.MethodGet, "/api/v1/themes/theme-1/defense-readiness", "STUDENT", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	var readiness dto.DefenseReadiness
	require.NoError(t, json.Unmarshal(envelope.Data, &readiness))
	require.False(t, readiness.Ready)
	require.Len(t, readiness.Reasons, 1)
}

func TestMinutesStreamedAsPDF(t *testing.T) {
	router := newWorkflowRouter(workflowRouterDeps{})

	rec := performRequest(router, http.MethodGet, "/api/v1/themes/theme-1/deliberation/minutes", "DEPARTMENT_HEAD", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}
