package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/response"
)

type plagiarismService interface {
	Resolve(ctx context.Context, reportID string, req dto.ResolvePlagiarismRequest) (*models.PlagiarismReport, error)
	Get(ctx context.Context, reportID string) (*models.PlagiarismReport, error)
	ListForTheme(ctx context.Context, themeID string) ([]models.PlagiarismReport, error)
}

// PlagiarismHandler exposes plagiarism verification endpoints.
type PlagiarismHandler struct {
	service plagiarismService
}

// NewPlagiarismHandler constructs the handler.
func NewPlagiarismHandler(service plagiarismService) *PlagiarismHandler {
	return &PlagiarismHandler{service: service}
}

// Resolve godoc
// @Summary Record the scanner verdict for a pending report
// @Tags Plagiarism
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ResolvePlagiarismRequest true "Scanner result"
// @Success 200 {object} response.Envelope
// @Router /plagiarism/reports/{id}/resolve [post]
func (h *PlagiarismHandler) Resolve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "plagiarism service not configured"))
		return
	}
	var req dto.ResolvePlagiarismRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid scanner payload"))
		return
	}
	report, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Get godoc
// @Summary Get a plagiarism report
// @Tags Plagiarism
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /plagiarism/reports/{id} [get]
func (h *PlagiarismHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "plagiarism service not configured"))
		return
	}
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListForTheme godoc
// @Summary List plagiarism reports for a theme
// @Tags Plagiarism
// @Produce json
// @Param id path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/plagiarism [get]
func (h *PlagiarismHandler) ListForTheme(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "plagiarism service not configured"))
		return
	}
	reports, err := h.service.ListForTheme(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}
