package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/export"
)

type themeStore interface {
	Create(ctx context.Context, theme *models.Theme) error
	GetByID(ctx context.Context, id string) (*models.Theme, error)
	List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error)
}

type rosterRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ThemeService manages the theme registry.
type ThemeService struct {
	repo      themeStore
	roster    rosterRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewThemeService constructs the service.
func NewThemeService(repo themeStore, roster rosterRenderer, validate *validator.Validate, logger *zap.Logger) *ThemeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ThemeService{repo: repo, roster: roster, validator: validate, logger: logger}
}

// Create registers a new theme.
func (s *ThemeService) Create(ctx context.Context, req dto.CreateThemeRequest) (*models.Theme, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}
	theme := &models.Theme{
		Title:        req.Title,
		StudentID:    req.StudentID,
		SupervisorID: req.SupervisorID,
		Department:   req.Department,
		AcademicYear: req.AcademicYear,
	}
	if err := s.repo.Create(ctx, theme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create theme")
	}
	return theme, nil
}

// Get returns a theme. Students only see their own theme.
func (s *ThemeService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Theme, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	theme, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	if actor.Role == models.RoleStudent && theme.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return theme, nil
}

// List returns themes visible to the actor. Students are scoped to their own
// theme and supervisors to themes they supervise.
func (s *ThemeService) List(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]models.Theme, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ThemeFilter{
		StudentID:    query.StudentID,
		SupervisorID: query.SupervisorID,
		Department:   query.Department,
		AcademicYear: query.AcademicYear,
		Limit:        query.Limit,
		Offset:       query.Offset,
	}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleSupervisor:
		filter.SupervisorID = actor.UserID
	}
	themes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list themes")
	}
	return themes, nil
}

// ExportCSV renders the theme roster visible to the actor as CSV.
func (s *ThemeService) ExportCSV(ctx context.Context, query dto.ThemeQuery, actor *models.JWTClaims) ([]byte, error) {
	if s.roster == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "roster renderer unavailable")
	}
	themes, err := s.List(ctx, query, actor)
	if err != nil {
		return nil, err
	}

	headers := []string{"ID", "Title", "Student", "Supervisor", "Department", "Academic Year", "Created"}
	rows := make([]map[string]string, 0, len(themes))
	for _, theme := range themes {
		rows = append(rows, map[string]string{
			"ID":            theme.ID,
			"Title":         theme.Title,
			"Student":       theme.StudentID,
			"Supervisor":    theme.SupervisorID,
			"Department":    theme.Department,
			"Academic Year": theme.AcademicYear,
			"Created":       theme.CreatedAt.UTC().Format("2006-01-02"),
		})
	}

	rendered, err := s.roster.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render theme roster")
	}
	return rendered, nil
}
