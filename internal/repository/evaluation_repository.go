package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univern/academics-api/internal/models"
)

// EvaluationRepository manages evaluation instruments and student submissions.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs an EvaluationRepository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// ListInstruments returns instruments matching the provided filters.
func (r *EvaluationRepository) ListInstruments(ctx context.Context, filter models.InstrumentFilter) ([]models.EvaluationInstrument, int, error) {
	base := `FROM evaluation_instruments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, subject_id, created_by, title, description, type, max_points, due_date, is_active, created_at, updated_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, offset)

	var instruments []models.EvaluationInstrument
	if err := r.db.SelectContext(ctx, &instruments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list instruments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count instruments: %w", err)
	}
	return instruments, total, nil
}

// FindInstrument fetches an instrument by ID.
func (r *EvaluationRepository) FindInstrument(ctx context.Context, id string) (*models.EvaluationInstrument, error) {
	const query = `SELECT id, subject_id, created_by, title, description, type, max_points, due_date, is_active, created_at, updated_at FROM evaluation_instruments WHERE id = $1`
	var instrument models.EvaluationInstrument
	if err := r.db.GetContext(ctx, &instrument, query, id); err != nil {
		return nil, err
	}
	return &instrument, nil
}

// CreateInstrument inserts a new evaluation instrument.
func (r *EvaluationRepository) CreateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error {
	if instrument.ID == "" {
		instrument.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if instrument.CreatedAt.IsZero() {
		instrument.CreatedAt = now
	}
	instrument.UpdatedAt = now
	const query = `INSERT INTO evaluation_instruments (id, subject_id, created_by, title, description, type, max_points, due_date, is_active, created_at, updated_at)
        VALUES (:id, :subject_id, :created_by, :title, :description, :type, :max_points, :due_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, instrument); err != nil {
		return fmt.Errorf("create instrument: %w", err)
	}
	return nil
}

// UpdateInstrument modifies an existing evaluation instrument.
func (r *EvaluationRepository) UpdateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error {
	instrument.UpdatedAt = time.Now().UTC()
	const query = `UPDATE evaluation_instruments SET title = :title, description = :description, type = :type, max_points = :max_points, due_date = :due_date, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, instrument); err != nil {
		return fmt.Errorf("update instrument: %w", err)
	}
	return nil
}

// DeactivateInstrument marks an instrument inactive.
func (r *EvaluationRepository) DeactivateInstrument(ctx context.Context, id string) error {
	const query = `UPDATE evaluation_instruments SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate instrument: %w", err)
	}
	return nil
}

// ListSubmissions returns all submissions for an instrument.
func (r *EvaluationRepository) ListSubmissions(ctx context.Context, instrumentID string) ([]models.EvaluationSubmission, error) {
	const query = `SELECT id, instrument_id, student_id, file_path, points, grade, submitted_at, graded_at, created_at FROM evaluation_submissions WHERE instrument_id = $1 ORDER BY created_at ASC`
	var submissions []models.EvaluationSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, instrumentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// FindSubmission fetches a submission by ID.
func (r *EvaluationRepository) FindSubmission(ctx context.Context, id string) (*models.EvaluationSubmission, error) {
	const query = `SELECT id, instrument_id, student_id, file_path, points, grade, submitted_at, graded_at, created_at FROM evaluation_submissions WHERE id = $1`
	var submission models.EvaluationSubmission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindSubmissionByStudent fetches one student's submission to an instrument.
func (r *EvaluationRepository) FindSubmissionByStudent(ctx context.Context, instrumentID, studentID string) (*models.EvaluationSubmission, error) {
	const query = `SELECT id, instrument_id, student_id, file_path, points, grade, submitted_at, graded_at, created_at FROM evaluation_submissions WHERE instrument_id = $1 AND student_id = $2 LIMIT 1`
	var submission models.EvaluationSubmission
	if err := r.db.GetContext(ctx, &submission, query, instrumentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// CreateSubmission inserts a new submission.
func (r *EvaluationRepository) CreateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluation_submissions (id, instrument_id, student_id, file_path, points, grade, submitted_at, graded_at, created_at)
        VALUES (:id, :instrument_id, :student_id, :file_path, :points, :grade, :submitted_at, :graded_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateSubmission modifies an existing submission.
func (r *EvaluationRepository) UpdateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error {
	const query = `UPDATE evaluation_submissions SET file_path = :file_path, points = :points, grade = :grade, submitted_at = :submitted_at, graded_at = :graded_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// HasSubmission reports whether the student already submitted to the
// instrument.
func (r *EvaluationRepository) HasSubmission(ctx context.Context, instrumentID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM evaluation_submissions WHERE instrument_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, instrumentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check submission: %w", err)
	}
	return true, nil
}
