package models

import "time"

// StudentStatus represents the lifecycle of a student profile.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive      StudentStatus = "ACTIVE"
	StudentStatusInactive    StudentStatus = "INACTIVE"
	StudentStatusGraduated   StudentStatus = "GRADUATED"
	StudentStatusInterrupted StudentStatus = "INTERRUPTED"
)

// StudentProfile represents a learner registered at the university.
type StudentProfile struct {
	ID             string        `db:"id" json:"id"`
	UserID         string        `db:"user_id" json:"user_id"`
	IndexNumber    string        `db:"index_number" json:"index_number"`
	YearOfStudy    int           `db:"year_of_study" json:"year_of_study"`
	EnrollmentYear int           `db:"enrollment_year" json:"enrollment_year"`
	Status         StudentStatus `db:"status" json:"status"`
	StudyProgramID *string       `db:"study_program_id" json:"study_program_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search         string
	Status         StudentStatus
	StudyProgramID string
	YearOfStudy    int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// StudentDetail contains student information with account and program context.
type StudentDetail struct {
	StudentProfile
	Email            string  `db:"email" json:"email"`
	FullName         string  `db:"full_name" json:"full_name"`
	UserActive       bool    `db:"user_active" json:"user_active"`
	StudyProgramName *string `db:"study_program_name" json:"study_program_name,omitempty"`
}
