package models

import "time"

// Faculty is the top level organisational unit of the catalog.
type Faculty struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	City      string    `db:"city" json:"city"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudyProgram belongs to a faculty and groups subjects.
type StudyProgram struct {
	ID        string    `db:"id" json:"id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Subject is a teachable course unit with an ECTS credit weight.
type Subject struct {
	ID             string    `db:"id" json:"id"`
	StudyProgramID *string   `db:"study_program_id" json:"study_program_id,omitempty"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	Credits        int       `db:"credits" json:"credits"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter scopes subject listings.
type SubjectFilter struct {
	StudyProgramID string
	Search         string
	Page           int
	PageSize       int
}
