package models

import "time"

// CourseEnrollmentStatus represents the lifecycle of a course enrollment.
type CourseEnrollmentStatus string

// Possible course enrollment statuses.
const (
	CourseEnrollmentActive    CourseEnrollmentStatus = "ACTIVE"
	CourseEnrollmentCompleted CourseEnrollmentStatus = "COMPLETED"
	CourseEnrollmentDropped   CourseEnrollmentStatus = "DROPPED"
)

// CourseEnrollment captures a student's per-term registration to a subject,
// together with the four partial score components used by the weighted grade.
type CourseEnrollment struct {
	ID               string                 `db:"id" json:"id"`
	StudentID        string                 `db:"student_id" json:"student_id"`
	SubjectID        string                 `db:"subject_id" json:"subject_id"`
	AcademicYear     string                 `db:"academic_year" json:"academic_year"`
	Term             string                 `db:"term" json:"term"`
	AttendanceScore  *float64               `db:"attendance_score" json:"attendance_score,omitempty"`
	AssignmentsScore *float64               `db:"assignments_score" json:"assignments_score,omitempty"`
	MidtermScore     *float64               `db:"midterm_score" json:"midterm_score,omitempty"`
	FinalScore       *float64               `db:"final_score" json:"final_score,omitempty"`
	WeightedScore    *float64               `db:"weighted_score" json:"weighted_score,omitempty"`
	Grade            *int                   `db:"grade" json:"grade,omitempty"`
	Status           CourseEnrollmentStatus `db:"status" json:"status"`
	CreatedAt        time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at" json:"updated_at"`
}

// CourseEnrollmentDetail enriches an enrollment with subject info.
type CourseEnrollmentDetail struct {
	CourseEnrollment
	SubjectCode    string `db:"subject_code" json:"subject_code"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	SubjectCredits int    `db:"subject_credits" json:"subject_credits"`
}

// CourseEnrollmentFilter provides filters for listing course enrollments.
type CourseEnrollmentFilter struct {
	StudentID    string
	SubjectID    string
	AcademicYear string
	Term         string
	Status       CourseEnrollmentStatus
	Page         int
	PageSize     int
}

// LegacyGrade is the alternate grade record tied to an exam rather than a
// course enrollment. It coexists with enrollment-derived grades and is
// returned inside the raw academic history section.
type LegacyGrade struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	ExamID     string    `db:"exam_id" json:"exam_id"`
	Points     float64   `db:"points" json:"points"`
	GradeValue string    `db:"grade_value" json:"grade_value"`
	GradedAt   time.Time `db:"graded_at" json:"graded_at"`
}
