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

type juryService interface {
	RecordDecision(ctx context.Context, themeID string, req dto.RecordDecisionRequest, actor *models.JWTClaims) (*models.JuryDecision, error)
	Get(ctx context.Context, themeID string, actor *models.JWTClaims) (*models.JuryDecision, error)
}

// JuryHandler exposes deliberation endpoints.
type JuryHandler struct {
	service juryService
}

// NewJuryHandler constructs the handler.
func NewJuryHandler(service juryService) *JuryHandler {
	return &JuryHandler{service: service}
}

// Record godoc
// @Summary Record the jury deliberation for a theme
// @Tags Jury
// @Accept json
// @Produce json
// @Param id path string true "Theme ID"
// @Param payload body dto.RecordDecisionRequest true "Deliberation outcome"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/deliberation [post]
func (h *JuryHandler) Record(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "jury service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RecordDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid deliberation payload"))
		return
	}
	decision, err := h.service.RecordDecision(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Get godoc
// @Summary Get the recorded deliberation for a theme
// @Tags Jury
// @Produce json
// @Param id path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/deliberation [get]
func (h *JuryHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "jury service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	decision, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}
