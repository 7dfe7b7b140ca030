package models

import "time"

// ExamPeriod is an administrative window during which exams are scheduled.
// Registration must close at or before the period start.
type ExamPeriod struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	StartsAt             time.Time `db:"starts_at" json:"starts_at"`
	EndsAt               time.Time `db:"ends_at" json:"ends_at"`
	RegistrationStartsAt time.Time `db:"registration_starts_at" json:"registration_starts_at"`
	RegistrationEndsAt   time.Time `db:"registration_ends_at" json:"registration_ends_at"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Exam is a scheduled sitting of a subject within an exam period.
type Exam struct {
	ID           string    `db:"id" json:"id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	ExamPeriodID string    `db:"exam_period_id" json:"exam_period_id"`
	HeldAt       time.Time `db:"held_at" json:"held_at"`
	MaxPoints    int       `db:"max_points" json:"max_points"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ExamDetail enriches Exam with subject and period names.
type ExamDetail struct {
	Exam
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	PeriodName  string `db:"period_name" json:"period_name"`
}

// ExamRegistrationStatus represents the state of an exam registration.
type ExamRegistrationStatus string

// Possible exam registration statuses.
const (
	ExamRegistrationRegistered ExamRegistrationStatus = "REGISTERED"
	ExamRegistrationCancelled  ExamRegistrationStatus = "CANCELLED"
)

// ExamRegistration links a student to an exam sitting.
type ExamRegistration struct {
	ID           string                 `db:"id" json:"id"`
	StudentID    string                 `db:"student_id" json:"student_id"`
	ExamID       string                 `db:"exam_id" json:"exam_id"`
	Status       ExamRegistrationStatus `db:"status" json:"status"`
	RegisteredAt time.Time              `db:"registered_at" json:"registered_at"`
	CancelledAt  *time.Time             `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ExamRegistrationDetail enriches a registration with exam context.
type ExamRegistrationDetail struct {
	ExamRegistration
	HeldAt      time.Time `db:"held_at" json:"held_at"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	PeriodName  string    `db:"period_name" json:"period_name"`
}

// ExamFilter scopes exam listings.
type ExamFilter struct {
	SubjectID    string
	ExamPeriodID string
	Active       *bool
	Page         int
	PageSize     int
}
