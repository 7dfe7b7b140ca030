package models

import "time"

// ProfessorProfile represents teaching staff linked to a user account.
type ProfessorProfile struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Title           string    `db:"title" json:"title"`
	ScientificField string    `db:"scientific_field" json:"scientific_field"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ProfessorDetail enriches ProfessorProfile with account info.
type ProfessorDetail struct {
	ProfessorProfile
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
}

// ProfessorAssignment maps a professor to a subject for one academic year.
type ProfessorAssignment struct {
	ID             string    `db:"id" json:"id"`
	ProfessorID    string    `db:"professor_id" json:"professor_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	StudyProgramID *string   `db:"study_program_id" json:"study_program_id,omitempty"`
	AcademicYear   string    `db:"academic_year" json:"academic_year"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	SubjectCode    string    `db:"subject_code" json:"subject_code"`
	SubjectName    string    `db:"subject_name" json:"subject_name"`
}

// ProfessorFilter provides filters for listing professors.
type ProfessorFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
