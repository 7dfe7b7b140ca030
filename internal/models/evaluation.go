package models

import (
	"encoding/xml"
	"time"
)

// InstrumentType enumerates professor-authored assessment kinds.
type InstrumentType string

// Supported instrument types.
const (
	InstrumentExam         InstrumentType = "EXAM"
	InstrumentQuiz         InstrumentType = "QUIZ"
	InstrumentProject      InstrumentType = "PROJECT"
	InstrumentAssignment   InstrumentType = "ASSIGNMENT"
	InstrumentHomework     InstrumentType = "HOMEWORK"
	InstrumentLabExercise  InstrumentType = "LAB_EXERCISE"
	InstrumentPresentation InstrumentType = "PRESENTATION"
	InstrumentTest         InstrumentType = "TEST"
	InstrumentMidterm      InstrumentType = "MIDTERM"
	InstrumentLaboratory   InstrumentType = "LABORATORY"
	InstrumentFinal        InstrumentType = "FINAL"
)

// ValidInstrumentType reports whether the value is a known instrument type.
func ValidInstrumentType(t InstrumentType) bool {
	switch t {
	case InstrumentExam, InstrumentQuiz, InstrumentProject, InstrumentAssignment,
		InstrumentHomework, InstrumentLabExercise, InstrumentPresentation,
		InstrumentTest, InstrumentMidterm, InstrumentLaboratory, InstrumentFinal:
		return true
	}
	return false
}

// EvaluationInstrument is a professor-defined assessment attached to a subject.
type EvaluationInstrument struct {
	ID          string         `db:"id" json:"id"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	CreatedBy   *string        `db:"created_by" json:"created_by,omitempty"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Type        InstrumentType `db:"type" json:"type"`
	MaxPoints   int            `db:"max_points" json:"max_points"`
	DueDate     *time.Time     `db:"due_date" json:"due_date,omitempty"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// SubmissionState is derived from the submission timestamps; there is no
// explicit state column.
type SubmissionState string

// Derived submission states.
const (
	SubmissionDraft     SubmissionState = "DRAFT"
	SubmissionSubmitted SubmissionState = "SUBMITTED"
	SubmissionGraded    SubmissionState = "GRADED"
)

// EvaluationSubmission is one student's answer to an instrument.
type EvaluationSubmission struct {
	ID           string     `db:"id" json:"id"`
	InstrumentID string     `db:"instrument_id" json:"instrument_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	FilePath     *string    `db:"file_path" json:"file_path,omitempty"`
	Points       *float64   `db:"points" json:"points,omitempty"`
	Grade        *string    `db:"grade" json:"grade,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// State derives the submission lifecycle state from timestamps.
func (s EvaluationSubmission) State() SubmissionState {
	switch {
	case s.GradedAt != nil:
		return SubmissionGraded
	case s.SubmittedAt != nil:
		return SubmissionSubmitted
	default:
		return SubmissionDraft
	}
}

// InstrumentFilter scopes instrument listings.
type InstrumentFilter struct {
	SubjectID string
	Type      InstrumentType
	IsActive  *bool
	Page      int
	PageSize  int
}

// InstrumentDocument is the XML exchange format for an instrument and its
// submissions. The element layout is the import/export contract.
type InstrumentDocument struct {
	XMLName     xml.Name             `xml:"evaluationInstrument"`
	Title       string               `xml:"title"`
	Description string               `xml:"description,omitempty"`
	Type        InstrumentType       `xml:"type"`
	SubjectCode string               `xml:"subjectCode"`
	MaxPoints   int                  `xml:"maxPoints"`
	DueDate     string               `xml:"dueDate,omitempty"`
	IsActive    *bool                `xml:"isActive,omitempty"`
	Submissions []SubmissionDocument `xml:"submissions>submission,omitempty"`
}

// SubmissionDocument is one submission inside an InstrumentDocument.
type SubmissionDocument struct {
	StudentIndex string   `xml:"studentIndex"`
	Points       *float64 `xml:"points,omitempty"`
	Grade        string   `xml:"grade,omitempty"`
	SubmittedAt  string   `xml:"submittedAt,omitempty"`
	GradedAt     string   `xml:"gradedAt,omitempty"`
}
