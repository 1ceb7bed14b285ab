package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/thesis-flow-api/internal/dto"
	"github.com/noah-isme/thesis-flow-api/internal/models"
	appErrors "github.com/noah-isme/thesis-flow-api/pkg/errors"
	"github.com/noah-isme/thesis-flow-api/pkg/export"
)

type themeStoreStub struct {
	themes     []models.Theme
	lastFilter models.ThemeFilter
}

func (s *themeStoreStub) Create(ctx context.Context, theme *models.Theme) error {
	if theme.ID == "" {
		theme.ID = "theme-9"
	}
	s.themes = append(s.themes, *theme)
	return nil
}

func (s *themeStoreStub) GetByID(ctx context.Context, id string) (*models.Theme, error) {
	for _, theme := range s.themes {
		if theme.ID == id {
			copy := theme
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *themeStoreStub) List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error) {
	s.lastFilter = filter
	result := make([]models.Theme, 0, len(s.themes))
	for _, theme := range s.themes {
		if filter.StudentID != "" && theme.StudentID != filter.StudentID {
			continue
		}
		if filter.SupervisorID != "" && theme.SupervisorID != filter.SupervisorID {
			continue
		}
		result = append(result, theme)
	}
	return result, nil
}

func seededThemeStore() *themeStoreStub {
	return &themeStoreStub{themes: []models.Theme{
		{
			ID: "theme-1", Title: "Distributed Consensus in Practice",
			StudentID: "student-1", SupervisorID: "supervisor-1",
			Department: "CS", AcademicYear: "2025/2026",
			CreatedAt: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			ID: "theme-2", Title: "Query Optimizer Internals",
			StudentID: "student-2", SupervisorID: "supervisor-2",
			Department: "CS", AcademicYear: "2025/2026",
		},
	}}
}

func TestThemeServiceCreateValidatesPayload(t *testing.T) {
	svc := NewThemeService(&themeStoreStub{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateThemeRequest{Title: "x"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestThemeServiceCreateAssignsID(t *testing.T) {
	svc := NewThemeService(&themeStoreStub{}, nil, nil, nil)

	theme, err := svc.Create(context.Background(), dto.CreateThemeRequest{
		Title:        "Streaming Joins over Late Data",
		StudentID:    "student-3",
		SupervisorID: "supervisor-1",
		Department:   "CS",
		AcademicYear: "2025/2026",
	})
	require.NoError(t, err)
	require.NotEmpty(t, theme.ID)
}

func TestThemeServiceGetScopedToOwningStudent(t *testing.T) {
	svc := NewThemeService(seededThemeStore(), nil, nil, nil)

	_, err := svc.Get(context.Background(), "theme-1", &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	theme, err := svc.Get(context.Background(), "theme-1", studentClaims())
	require.NoError(t, err)
	require.Equal(t, "theme-1", theme.ID)
}

func TestThemeServiceListScopesByRole(t *testing.T) {
	store := seededThemeStore()
	svc := NewThemeService(store, nil, nil, nil)

	themes, err := svc.List(context.Background(), dto.ThemeQuery{}, studentClaims())
	require.NoError(t, err)
	require.Len(t, themes, 1)
	require.Equal(t, "student-1", store.lastFilter.StudentID)

	themes, err = svc.List(context.Background(), dto.ThemeQuery{}, supervisorClaims())
	require.NoError(t, err)
	require.Len(t, themes, 1)
	require.Equal(t, "supervisor-1", store.lastFilter.SupervisorID)

	themes, err = svc.List(context.Background(), dto.ThemeQuery{}, &models.JWTClaims{UserID: "head-1", Role: models.RoleDepartmentHead})
	require.NoError(t, err)
	require.Len(t, themes, 2)
}

func TestThemeServiceExportCSV(t *testing.T) {
	svc := NewThemeService(seededThemeStore(), export.NewCSVExporter(), nil, nil)

	rendered, err := svc.ExportCSV(context.Background(), dto.ThemeQuery{}, &models.JWTClaims{UserID: "head-1", Role: models.RoleDepartmentHead})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(rendered)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "ID,Title,Student,Supervisor,Department,Academic Year,Created", lines[0])
	require.Contains(t, lines[1], "Distributed Consensus in Practice")
	require.Contains(t, lines[1], "2025-10-01")
}

func TestThemeServiceExportCSVWithoutRenderer(t *testing.T) {
	svc := NewThemeService(seededThemeStore(), nil, nil, nil)

	_, err := svc.ExportCSV(context.Background(), dto.ThemeQuery{}, &models.JWTClaims{UserID: "head-1", Role: models.RoleDepartmentHead})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
