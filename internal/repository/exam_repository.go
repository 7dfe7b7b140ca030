package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/univern/academics-api/internal/models"
)

// ErrDuplicateRegistration signals the partial unique index rejected a second
// active registration for the same student and exam.
var ErrDuplicateRegistration = fmt.Errorf("duplicate active exam registration")

// ExamRepository manages exam periods, exam sittings, registrations and the
// legacy exam-tied grade records.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// ListPeriods returns exam periods ordered by start date, newest first.
func (r *ExamRepository) ListPeriods(ctx context.Context) ([]models.ExamPeriod, error) {
	const query = `SELECT id, name, starts_at, ends_at, registration_starts_at, registration_ends_at, created_at, updated_at FROM exam_periods ORDER BY starts_at DESC`
	var periods []models.ExamPeriod
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list exam periods: %w", err)
	}
	return periods, nil
}

// FindPeriod fetches an exam period by ID.
func (r *ExamRepository) FindPeriod(ctx context.Context, id string) (*models.ExamPeriod, error) {
	const query = `SELECT id, name, starts_at, ends_at, registration_starts_at, registration_ends_at, created_at, updated_at FROM exam_periods WHERE id = $1`
	var period models.ExamPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// CreatePeriod inserts a new exam period.
func (r *ExamRepository) CreatePeriod(ctx context.Context, period *models.ExamPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now
	const query = `INSERT INTO exam_periods (id, name, starts_at, ends_at, registration_starts_at, registration_ends_at, created_at, updated_at)
        VALUES (:id, :name, :starts_at, :ends_at, :registration_starts_at, :registration_ends_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create exam period: %w", err)
	}
	return nil
}

// UpdatePeriod modifies an existing exam period.
func (r *ExamRepository) UpdatePeriod(ctx context.Context, period *models.ExamPeriod) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exam_periods SET name = :name, starts_at = :starts_at, ends_at = :ends_at, registration_starts_at = :registration_starts_at, registration_ends_at = :registration_ends_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("update exam period: %w", err)
	}
	return nil
}

const examDetailColumns = `e.id, e.subject_id, e.exam_period_id, e.held_at, e.max_points, e.active, e.created_at, e.updated_at,
        sub.code AS subject_code, sub.name AS subject_name, ep.name AS period_name`

// ListExams returns exam sittings matching the provided filters.
func (r *ExamRepository) ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, int, error) {
	base := `FROM exams e
        JOIN subjects sub ON sub.id = e.subject_id
        JOIN exam_periods ep ON ep.id = e.exam_period_id`
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.ExamPeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("e.exam_period_id = $%d", len(args)+1))
		args = append(args, filter.ExamPeriodID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("e.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY e.held_at ASC LIMIT %d OFFSET %d", examDetailColumns, base, size, offset)

	var exams []models.ExamDetail
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// FindExam fetches an exam detail by ID.
func (r *ExamRepository) FindExam(ctx context.Context, id string) (*models.ExamDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM exams e
        JOIN subjects sub ON sub.id = e.subject_id
        JOIN exam_periods ep ON ep.id = e.exam_period_id
        WHERE e.id = $1`, examDetailColumns)
	var detail models.ExamDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateExam inserts a new exam sitting.
func (r *ExamRepository) CreateExam(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, subject_id, exam_period_id, held_at, max_points, active, created_at, updated_at)
        VALUES (:id, :subject_id, :exam_period_id, :held_at, :max_points, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// UpdateExam modifies an existing exam sitting.
func (r *ExamRepository) UpdateExam(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET subject_id = :subject_id, exam_period_id = :exam_period_id, held_at = :held_at, max_points = :max_points, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// ListAvailableExams returns active exams in periods whose registration
// window is open, for subjects the student is actively enrolled in and has
// not already registered for.
func (r *ExamRepository) ListAvailableExams(ctx context.Context, studentID string, now time.Time) ([]models.ExamDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM exams e
        JOIN subjects sub ON sub.id = e.subject_id
        JOIN exam_periods ep ON ep.id = e.exam_period_id
        WHERE e.active = TRUE
          AND ep.registration_starts_at <= $2 AND ep.registration_ends_at >= $2
          AND EXISTS (SELECT 1 FROM course_enrollments ce WHERE ce.student_id = $1 AND ce.subject_id = e.subject_id AND ce.status = $4)
          AND NOT EXISTS (SELECT 1 FROM exam_registrations er WHERE er.student_id = $1 AND er.exam_id = e.id AND er.status = $3)
        ORDER BY e.held_at ASC`, examDetailColumns)
	var exams []models.ExamDetail
	if err := r.db.SelectContext(ctx, &exams, query, studentID, now, models.ExamRegistrationRegistered, models.CourseEnrollmentActive); err != nil {
		return nil, fmt.Errorf("list available exams: %w", err)
	}
	return exams, nil
}

// HasActiveEnrollment reports whether the student holds an ACTIVE course
// enrollment for the subject.
func (r *ExamRepository) HasActiveEnrollment(ctx context.Context, studentID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM course_enrollments WHERE student_id = $1 AND subject_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID, models.CourseEnrollmentActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject enrollment: %w", err)
	}
	return true, nil
}

// CreateRegistration inserts an active registration. The partial unique index
// on (student_id, exam_id) WHERE status = 'REGISTERED' is the concurrency
// guard; a violation maps to ErrDuplicateRegistration.
func (r *ExamRepository) CreateRegistration(ctx context.Context, registration *models.ExamRegistration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = time.Now().UTC()
	}
	registration.Status = models.ExamRegistrationRegistered
	const query = `INSERT INTO exam_registrations (id, student_id, exam_id, status, registered_at)
        VALUES (:id, :student_id, :exam_id, :status, :registered_at)`
	if _, err := r.db.NamedExecContext(ctx, query, registration); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateRegistration
		}
		return fmt.Errorf("create exam registration: %w", err)
	}
	return nil
}

// FindActiveRegistration returns the active registration for a student and
// exam, or sql.ErrNoRows.
func (r *ExamRepository) FindActiveRegistration(ctx context.Context, studentID, examID string) (*models.ExamRegistration, error) {
	const query = `SELECT id, student_id, exam_id, status, registered_at, cancelled_at FROM exam_registrations WHERE student_id = $1 AND exam_id = $2 AND status = $3 LIMIT 1`
	var registration models.ExamRegistration
	if err := r.db.GetContext(ctx, &registration, query, studentID, examID, models.ExamRegistrationRegistered); err != nil {
		return nil, err
	}
	return &registration, nil
}

// CancelRegistration flips an active registration to CANCELLED. Returns the
// number of rows changed so callers can treat zero as an idempotent no-op.
func (r *ExamRepository) CancelRegistration(ctx context.Context, studentID, examID string, cancelledAt time.Time) (int64, error) {
	const query = `UPDATE exam_registrations SET status = $3, cancelled_at = $4 WHERE student_id = $1 AND exam_id = $2 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, studentID, examID, models.ExamRegistrationCancelled, cancelledAt, models.ExamRegistrationRegistered)
	if err != nil {
		return 0, fmt.Errorf("cancel exam registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel exam registration rows: %w", err)
	}
	return affected, nil
}

const registrationDetailColumns = `er.id, er.student_id, er.exam_id, er.status, er.registered_at, er.cancelled_at,
        e.held_at, sub.code AS subject_code, sub.name AS subject_name, ep.name AS period_name`

// ListRegistrationsByStudent returns a student's registrations, optionally
// limited to active ones.
func (r *ExamRepository) ListRegistrationsByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM exam_registrations er
        JOIN exams e ON e.id = er.exam_id
        JOIN subjects sub ON sub.id = e.subject_id
        JOIN exam_periods ep ON ep.id = e.exam_period_id
        WHERE er.student_id = $1`, registrationDetailColumns)
	args := []interface{}{studentID}
	if activeOnly {
		query += " AND er.status = $2"
		args = append(args, models.ExamRegistrationRegistered)
	}
	query += " ORDER BY er.registered_at DESC"

	var registrations []models.ExamRegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, fmt.Errorf("list exam registrations: %w", err)
	}
	return registrations, nil
}

// ListRegistrationsByExam returns all registrations for one exam sitting.
func (r *ExamRepository) ListRegistrationsByExam(ctx context.Context, examID string) ([]models.ExamRegistrationDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM exam_registrations er
        JOIN exams e ON e.id = er.exam_id
        JOIN subjects sub ON sub.id = e.subject_id
        JOIN exam_periods ep ON ep.id = e.exam_period_id
        WHERE er.exam_id = $1
        ORDER BY er.registered_at ASC`, registrationDetailColumns)
	var registrations []models.ExamRegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, examID); err != nil {
		return nil, fmt.Errorf("list exam registrations by exam: %w", err)
	}
	return registrations, nil
}

// CreateGrade stores a legacy exam-tied grade record.
func (r *ExamRepository) CreateGrade(ctx context.Context, grade *models.LegacyGrade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.GradedAt.IsZero() {
		grade.GradedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, student_id, exam_id, points, grade_value, graded_at)
        VALUES (:id, :student_id, :exam_id, :points, :grade_value, :graded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// ListGradesByStudent returns the legacy grade records for a student.
func (r *ExamRepository) ListGradesByStudent(ctx context.Context, studentID string) ([]models.LegacyGrade, error) {
	const query = `SELECT id, student_id, exam_id, points, grade_value, graded_at FROM grades WHERE student_id = $1 ORDER BY graded_at DESC`
	var grades []models.LegacyGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list grades by student: %w", err)
	}
	return grades, nil
}

// HasGrade reports whether a grade record exists for the student and exam.
func (r *ExamRepository) HasGrade(ctx context.Context, studentID, examID string) (bool, error) {
	const query = `SELECT 1 FROM grades WHERE student_id = $1 AND exam_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, examID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade: %w", err)
	}
	return true, nil
}
