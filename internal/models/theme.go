package models

import "time"

// Theme is a student's assigned thesis topic: the aggregation root for its
// documents, progress projection, plagiarism reports, and jury decision.
type Theme struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	StudentID    string    `db:"student_id" json:"student_id"`
	SupervisorID string    `db:"supervisor_id" json:"supervisor_id"`
	Department   string    `db:"department" json:"department"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ThemeFilter captures listing criteria for themes.
type ThemeFilter struct {
	StudentID    string
	SupervisorID string
	Department   string
	AcademicYear string
	Limit        int
	Offset       int
}
