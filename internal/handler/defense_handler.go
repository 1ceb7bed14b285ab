package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/response"
)

type defenseService interface {
	Evaluate(ctx context.Context, themeID string) (*dto.DefenseReadiness, error)
	ExportMinutes(ctx context.Context, themeID string) ([]byte, error)
}

// DefenseHandler exposes the defense readiness gate.
type DefenseHandler struct {
	service defenseService
}

// NewDefenseHandler constructs the handler.
func NewDefenseHandler(service defenseService) *DefenseHandler {
	return &DefenseHandler{service: service}
}

// Readiness godoc
// @Summary Evaluate defense readiness for a theme
// @Tags Defense
// @Produce json
// @Param id path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{id}/defense-readiness [get]
func (h *DefenseHandler) Readiness(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "defense service not configured"))
		return
	}
	readiness, err := h.service.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, readiness, nil)
}

// Minutes godoc
// @Summary Export deliberation minutes as PDF
// @Tags Defense
// @Produce application/pdf
// @Param id path string true "Theme ID"
// @Success 200 {file} binary
// @Router /themes/{id}/deliberation/minutes [get]
func (h *DefenseHandler) Minutes(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "defense service not configured"))
		return
	}
	rendered, err := h.service.ExportMinutes(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="minutes_%s.pdf"`, c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", rendered)
}
