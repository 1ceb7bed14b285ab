package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/repository"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetActive(ctx context.Context, themeID string, docType models.DocumentType) (*models.Document, error)
	ListLatestByTheme(ctx context.Context, themeID string) ([]models.Document, error)
	ListHistory(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	NextVersion(ctx context.Context, themeID string, docType models.DocumentType) (int, error)
	UpdateStatus(ctx context.Context, params repository.ReviewDocumentParams, expected ...models.DocumentStatus) error
	ApproveFinalVersion(ctx context.Context, params repository.ApproveFinalVersionParams) error
}

type themeReader interface {
	GetByID(ctx context.Context, id string) (*models.Theme, error)
}

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type documentURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

type transitionNotifier interface {
	Notify(ctx context.Context, n Notification)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type progressInvalidator interface {
	Compute(ctx context.Context, themeID string) (*models.ThesisProgress, error)
	Invalidate(ctx context.Context, themeID string)
}

type workflowMetrics interface {
	ObserveTransition(docType models.DocumentType, action string)
}

// DocumentUpload carries upload metadata and the stream reader.
type DocumentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// DocumentDownload bundles a file reader with metadata for streaming.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// DocumentServiceConfig holds validation parameters for submissions.
type DocumentServiceConfig struct {
	MaxFileSize         int64
	AllowedMIMEs        []string
	PlagiarismThreshold float64
	APIPrefix           string
}

// DocumentService is the transition engine: it gates submissions against the
// prerequisite order and applies supervisor review transitions with
// optimistic concurrency.
type DocumentService struct {
	repo     documentStore
	themes   themeReader
	storage  documentFileStorage
	signer   documentURLSigner
	notifier transitionNotifier
	audit    auditLogger
	progress progressInvalidator
	metrics  workflowMetrics
	logger   *zap.Logger
	cfg      DocumentServiceConfig
	mimeSet  map[string]struct{}
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, themes themeReader, storage documentFileStorage, signer documentURLSigner, notifier transitionNotifier, audit auditLogger, progress progressInvalidator, metrics workflowMetrics, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/pdf",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &DocumentService{
		repo:     repo,
		themes:   themes,
		storage:  storage,
		signer:   signer,
		notifier: notifier,
		audit:    audit,
		progress: progress,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		mimeSet:  mimeSet,
	}
}

// Submit creates a new document version if and only if the requested type is
// the next allowed one for the theme. The gate is recomputed from rows, never
// from cache.
func (s *DocumentService) Submit(ctx context.Context, themeID string, req dto.SubmitDocumentRequest, upload DocumentUpload, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	theme, err := s.loadTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if theme.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may submit")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type: %s", req.Type))
	}

	progress, err := s.progress.Compute(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if progress.NextAllowedDocument != string(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrOutOfSequence,
			fmt.Sprintf("document type %s is locked; next allowed is %s", req.Type, progress.NextAllowedDocument))
	}

	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType, err := s.detectMime(upload)
	if err != nil {
		return nil, err
	}
	if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
	}

	contentHash, err := hashContent(upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash upload")
	}

	version, err := s.repo.NextVersion(ctx, themeID, req.Type)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve document version")
	}

	filename := fmt.Sprintf("%s/%s_v%d_%s%s", themeID, strings.ToLower(string(req.Type)), version, contentHash[:8], extensionFor(upload.Filename, mimeType))
	path, err := s.storage.SaveStream(filename, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist document file")
	}

	doc := &models.Document{
		ThemeID:     themeID,
		StudentID:   theme.StudentID,
		Type:        req.Type,
		Status:      models.DocumentStatusSubmitted,
		Version:     version,
		FilePath:    path,
		FileName:    filepath.Base(upload.Filename),
		MimeType:    mimeType,
		SizeBytes:   upload.Size,
		ContentHash: contentHash,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.storage.Delete(path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.afterTransition(ctx, theme, doc, "submit", Notification{
		RecipientID: theme.SupervisorID,
		Template:    NotificationDocumentSubmitted,
		Subject:     fmt.Sprintf("New %s submitted", doc.Type),
		Params: map[string]string{
			"theme_id": themeID,
			"type":     string(doc.Type),
			"version":  fmt.Sprintf("%d", doc.Version),
		},
	})
	s.emitAudit(ctx, actor.UserID, models.AuditActionDocumentSubmit, doc)
	return doc, nil
}

// StartReview marks a submitted document as being reviewed.
func (s *DocumentService) StartReview(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error) {
	return s.applyReview(ctx, themeID, docType, actor, models.DocumentStatusUnderReview, nil,
		[]models.DocumentStatus{models.DocumentStatusSubmitted})
}

// Approve marks the active document version approved. Approving a final
// version additionally creates the pending plagiarism report inside the same
// transaction; the creation is keyed on (document id, version) so a racing
// second approval cannot produce a duplicate report.
func (s *DocumentService) Approve(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	theme, err := s.loadTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadActive(ctx, themeID, docType)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Reviewable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("cannot approve document in status %s", doc.Status))
	}

	now := time.Now().UTC()
	review := repository.ReviewDocumentParams{
		ID:         doc.ID,
		Status:     models.DocumentStatusApproved,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
	}

	if docType == models.DocumentTypeFinalVersion {
		err = s.repo.ApproveFinalVersion(ctx, repository.ApproveFinalVersionParams{
			Review: review,
			Report: &models.PlagiarismReport{
				DocumentID: doc.ID,
				Version:    doc.Version,
				ThemeID:    themeID,
				StudentID:  doc.StudentID,
			},
			Threshold: s.cfg.PlagiarismThreshold,
		})
	} else {
		err = s.repo.UpdateStatus(ctx, review,
			models.DocumentStatusSubmitted, models.DocumentStatusUnderReview)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve document")
	}

	doc.Status = models.DocumentStatusApproved
	doc.ReviewedBy = &actor.UserID
	doc.ReviewedAt = &now

	s.afterTransition(ctx, theme, doc, "approve", Notification{
		RecipientID: theme.StudentID,
		Template:    NotificationDocumentReviewed,
		Subject:     fmt.Sprintf("%s approved", doc.Type),
		Params: map[string]string{
			"theme_id": themeID,
			"type":     string(doc.Type),
			"status":   string(doc.Status),
		},
	})
	s.emitAudit(ctx, actor.UserID, models.AuditActionDocumentReview, doc)
	return doc, nil
}

// Reject marks the active version rejected; the student must redo the type
// from scratch. The type stays gated, so no later type unlocks.
func (s *DocumentService) Reject(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback is required when rejecting")
	}
	return s.applyReview(ctx, themeID, docType, actor, models.DocumentStatusRejected, &feedback,
		[]models.DocumentStatus{models.DocumentStatusSubmitted, models.DocumentStatusUnderReview})
}

// RequestRevision asks for targeted corrections on the active version.
func (s *DocumentService) RequestRevision(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback is required when requesting a revision")
	}
	return s.applyReview(ctx, themeID, docType, actor, models.DocumentStatusRevisionRequested, &feedback,
		[]models.DocumentStatus{models.DocumentStatusSubmitted, models.DocumentStatusUnderReview})
}

// History returns retained document versions for a theme, newest first.
func (s *DocumentService) History(ctx context.Context, themeID string, query dto.DocumentHistoryQuery, actor *models.JWTClaims) ([]models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	theme, err := s.loadTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && theme.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	docs, err := s.repo.ListHistory(ctx, models.DocumentFilter{
		ThemeID: themeID,
		Type:    query.Type,
		Status:  query.Status,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document history")
	}
	return docs, nil
}

// GetDownloadURL generates a signed URL for fetching a document version.
func (s *DocumentService) GetDownloadURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.loadDocument(ctx, documentID, actor)
	if err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/documents/%s/download?token=%s", base, doc.ID, token), nil
}

// Download validates the signed token and opens the stored file.
func (s *DocumentService) Download(ctx context.Context, documentID, token string, actor *models.JWTClaims) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.loadDocument(ctx, documentID, actor)
	if err != nil {
		return nil, err
	}
	tokenID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if tokenID != doc.ID || relPath != doc.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document metadata")
	}
	return &DocumentDownload{
		File:      file,
		Filename:  doc.FileName,
		MimeType:  doc.MimeType,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *DocumentService) applyReview(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims, target models.DocumentStatus, feedback *string, expected []models.DocumentStatus) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	theme, err := s.loadTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadActive(ctx, themeID, docType)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, status := range expected {
		if doc.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("cannot transition document from status %s to %s", doc.Status, target))
	}

	now := time.Now().UTC()
	err = s.repo.UpdateStatus(ctx, repository.ReviewDocumentParams{
		ID:         doc.ID,
		Status:     target,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
		Feedback:   feedback,
	}, expected...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "document was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
	}

	doc.Status = target
	doc.ReviewedBy = &actor.UserID
	doc.ReviewedAt = &now
	if feedback != nil {
		doc.Feedback = feedback
	}

	action := strings.ToLower(string(target))
	s.afterTransition(ctx, theme, doc, action, Notification{
		RecipientID: theme.StudentID,
		Template:    NotificationDocumentReviewed,
		Subject:     fmt.Sprintf("%s review update", doc.Type),
		Params: map[string]string{
			"theme_id": themeID,
			"type":     string(doc.Type),
			"status":   string(doc.Status),
		},
	})
	s.emitAudit(ctx, actor.UserID, models.AuditActionDocumentReview, doc)
	return doc, nil
}

func (s *DocumentService) loadTheme(ctx context.Context, themeID string) (*models.Theme, error) {
	theme, err := s.themes.GetByID(ctx, themeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	return theme, nil
}

func (s *DocumentService) loadActive(ctx context.Context, themeID string, docType models.DocumentType) (*models.Document, error) {
	if !docType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type: %s", docType))
	}
	doc, err := s.repo.GetActive(ctx, themeID, docType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s submitted for theme", docType))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) loadDocument(ctx context.Context, documentID string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if actor.Role == models.RoleStudent && doc.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return doc, nil
}

func (s *DocumentService) afterTransition(ctx context.Context, theme *models.Theme, doc *models.Document, action string, n Notification) {
	if s.progress != nil {
		s.progress.Invalidate(ctx, theme.ID)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(doc.Type, action)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

func (s *DocumentService) emitAudit(ctx context.Context, userID, action string, doc *models.Document) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "document",
		ResourceID: &doc.ID,
		NewValues:  []byte(fmt.Sprintf(`{"type":"%s","status":"%s","version":%d}`, doc.Type, doc.Status, doc.Version)),
		IPAddress:  "system",
		UserAgent:  "document-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *DocumentService) detectMime(upload DocumentUpload) (string, error) {
	if upload.Content == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file reader missing")
	}
	if upload.MimeType != "" {
		return upload.MimeType, nil
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return http.DetectContentType(header[:n]), nil
}

func hashContent(r io.ReadSeeker) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func extensionFor(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext != "" {
		return ext
	}
	switch strings.ToLower(mimeType) {
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	default:
		return ".bin"
	}
}
