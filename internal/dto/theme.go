package dto

// CreateThemeRequest registers a thesis topic for a student.
type CreateThemeRequest struct {
	Title        string `json:"title" validate:"required,min=3"`
	StudentID    string `json:"student_id" validate:"required"`
	SupervisorID string `json:"supervisor_id" validate:"required"`
	Department   string `json:"department" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
}

// ThemeQuery mirrors supported theme listing filters.
type ThemeQuery struct {
	StudentID    string
	SupervisorID string
	Department   string
	AcademicYear string
	Limit        int
	Offset       int
}
