package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/response"
)

type progressService interface {
	Get(ctx context.Context, themeID string) (*models.ThesisProgress, error)
}

// ProgressHandler exposes the per-theme progress projection.
type ProgressHandler struct {
	service progressService
	themes  themeService
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(service progressService, themes themeService) *ProgressHandler {
	return &ProgressHandler{service: service, themes: themes}
}

// Get godoc
// @Summary Get thesis progress for a theme
// @Tags Progress
// @Produce json
// @Param id path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "progress service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	themeID := c.Param("id")
	if h.themes != nil {
		if _, err := h.themes.Get(c.Request.Context(), themeID, claims); err != nil {
			response.Error(c, err)
			return
		}
	}
	progress, err := h.service.Get(c.Request.Context(), themeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
