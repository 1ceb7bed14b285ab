package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/response"
)

type themeService interface {
	Create(ctx context.Context, req dto.CreateThemeRequest) (*models.Theme, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Theme, error)
	List(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]models.Theme, error)
	ExportCSV(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]byte, error)
}

// ThemeHandler exposes REST endpoints for the theme registry.
type ThemeHandler struct {
	service themeService
}

// NewThemeHandler constructs the handler.
func NewThemeHandler(service themeService) *ThemeHandler {
	return &ThemeHandler{service: service}
}

// Create godoc
// @Summary Register a thesis theme
// @Tags Themes
// @Accept json
// @Produce json
// @Param payload body dto.CreateThemeRequest true "Theme payload"
// @Success 201 {object} response.Envelope
// @Router /themes [post]
func (h *ThemeHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "theme service not configured"))
		return
	}
	var req dto.CreateThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid theme payload"))
		return
	}
	theme, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, theme, nil)
}

// List godoc
// @Summary List thesis themes
// @Tags Themes
// @Produce json
// @Param student_id query string false "Student ID"
// @Param supervisor_id query string false "Supervisor ID"
// @Param department query string false "Department"
// @Param academic_year query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /themes [get]
func (h *ThemeHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "theme service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ThemeQuery{
		StudentID:    strings.TrimSpace(c.Query("student_id")),
		SupervisorID: strings.TrimSpace(c.Query("supervisor_id")),
		Department:   strings.TrimSpace(c.Query("department")),
		AcademicYear: strings.TrimSpace(c.Query("academic_year")),
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
	themes, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, themes, nil)
}

// Export godoc
// @Summary Export the theme roster as CSV
// @Tags Themes
// @Produce text/csv
// @Param department query string false "Department"
// @Param academic_year query string false "Academic year"
// @Success 200 {file} binary
// @Router /exports/themes [get]
func (h *ThemeHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "theme service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ThemeQuery{
		Department:   strings.TrimSpace(c.Query("department")),
		AcademicYear: strings.TrimSpace(c.Query("academic_year")),
	}
	rendered, err := h.service.ExportCSV(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="themes.csv"`)
	c.Data(http.StatusOK, "text/csv", rendered)
}

// Get godoc
// @Summary Get theme detail
// @Tags Themes
// @Produce json
// @Param id path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{id} [get]
func (h *ThemeHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "theme service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	theme, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}
