package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	"github.com/noah-isme/thesis-flow-api/internal/service"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/response"
)

type documentService interface {
	Submit(ctx context.Context, themeID string, req dto.SubmitDocumentRequest, upload service.DocumentUpload, actor *models.JWTClaims) (*models.Document, error)
	StartReview(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error)
	Approve(ctx context.Context, themeID string, docType models.DocumentType, actor *models.JWTClaims) (*models.Document, error)
	Reject(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error)
	RequestRevision(ctx context.Context, themeID string, docType models.DocumentType, feedback string, actor *models.JWTClaims) (*models.Document, error)
	History(ctx context.Context, themeID string, query dto.DocumentHistoryQuery, actor *models.JWTClaims) ([]models.Document, error)
	GetDownloadURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, error)
	Download(ctx context.Context, documentID, token string, actor *models.JWTClaims) (*service.DocumentDownload, error)
}

// DocumentHandler exposes REST endpoints for the document workflow.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Submit godoc
// @Summary Submit a document version
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Theme ID"
// @Param type formData string true "Document type"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /themes/{id}/documents [post]
func (h *DocumentHandler) Submit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	req.Type = models.DocumentType(strings.ToUpper(string(req.Type)))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "failed to read uploaded file"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  file,
	}
	doc, err := h.service.Submit(c.Request.Context(), c.Param("id"), req, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, doc, nil)
}

// Review godoc
// @Summary Review the active document version
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Theme ID"
// @Param type path string true "Document type"
// @Param payload body dto.ReviewDocumentRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/documents/{type}/review [post]
func (h *DocumentHandler) Review(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	themeID := c.Param("id")
	docType := models.DocumentType(strings.ToUpper(c.Param("type")))

	var (
		doc *models.Document
		err error
	)
	switch req.Action {
	case dto.ReviewActionStartReview:
		doc, err = h.service.StartReview(c.Request.Context(), themeID, docType, claims)
	case dto.ReviewActionApprove:
		doc, err = h.service.Approve(c.Request.Context(), themeID, docType, claims)
	case dto.ReviewActionReject:
		doc, err = h.service.Reject(c.Request.Context(), themeID, docType, req.Feedback, claims)
	case dto.ReviewActionRequestRevision:
		doc, err = h.service.RequestRevision(c.Request.Context(), themeID, docType, req.Feedback, claims)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported review action: %s", req.Action)))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// History godoc
// @Summary List document versions for a theme
// @Tags Documents
// @Produce json
// @Param id path string true "Theme ID"
// @Param type query string false "Document type"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/documents [get]
func (h *DocumentHandler) History(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.DocumentHistoryQuery{}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.DocumentType(strings.ToUpper(rawType))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.DocumentStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.DocumentStatus(part))
		}
		query.Status = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	docs, err := h.service.History(c.Request.Context(), c.Param("id"), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// DownloadURL godoc
// @Summary Generate a signed download URL for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	url, err := h.service.GetDownloadURL(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url}, nil)
}

// Download godoc
// @Summary Stream a document file using a signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.service.Download(c.Request.Context(), c.Param("id"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, download.Filename))
	c.Header("Content-Type", download.MimeType)
	c.Header("Content-Length", strconv.FormatInt(download.SizeBytes, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		c.Abort()
	}
}
