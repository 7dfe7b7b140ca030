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

// CourseEnrollmentRepository manages per-term subject registrations and the
// partial score components stored on them.
type CourseEnrollmentRepository struct {
	db *sqlx.DB
}

// NewCourseEnrollmentRepository constructs a CourseEnrollmentRepository.
func NewCourseEnrollmentRepository(db *sqlx.DB) *CourseEnrollmentRepository {
	return &CourseEnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `ce.id, ce.student_id, ce.subject_id, ce.academic_year, ce.term,
        ce.attendance_score, ce.assignments_score, ce.midterm_score, ce.final_score, ce.weighted_score, ce.grade,
        ce.status, ce.created_at, ce.updated_at,
        sub.code AS subject_code, sub.name AS subject_name, sub.credits AS subject_credits`

// List returns course enrollments matching the provided filters.
func (r *CourseEnrollmentRepository) List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error) {
	base := `FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id`
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("ce.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("ce.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("ce.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("ce.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("ce.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY ce.created_at DESC LIMIT %d OFFSET %d", enrollmentDetailColumns, base, size, offset)

	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID fetches an enrollment detail by ID.
func (r *CourseEnrollmentRepository) FindByID(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id
        WHERE ce.id = $1`, enrollmentDetailColumns)
	var detail models.CourseEnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns all enrollments for a student, newest first.
func (r *CourseEnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id
        WHERE ce.student_id = $1
        ORDER BY ce.created_at DESC`, enrollmentDetailColumns)
	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return enrollments, nil
}

// ListActiveByStudent returns a student's enrollments still in progress.
func (r *CourseEnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id
        WHERE ce.student_id = $1 AND ce.status = $2
        ORDER BY ce.created_at DESC`, enrollmentDetailColumns)
	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.CourseEnrollmentActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// ListPassedByStudent returns completed enrollments with a passing grade.
func (r *CourseEnrollmentRepository) ListPassedByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id
        WHERE ce.student_id = $1 AND ce.status = $2 AND ce.grade >= 6
        ORDER BY ce.updated_at DESC`, enrollmentDetailColumns)
	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.CourseEnrollmentCompleted); err != nil {
		return nil, fmt.Errorf("list passed enrollments: %w", err)
	}
	return enrollments, nil
}

// Exists reports whether the student already has an enrollment for the
// subject in the given academic year and term.
func (r *CourseEnrollmentRepository) Exists(ctx context.Context, studentID, subjectID, academicYear, term string) (bool, error) {
	const query = `SELECT 1 FROM course_enrollments WHERE student_id = $1 AND subject_id = $2 AND academic_year = $3 AND term = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID, academicYear, term); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create inserts a new course enrollment.
func (r *CourseEnrollmentRepository) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO course_enrollments (id, student_id, subject_id, academic_year, term, attendance_score, assignments_score, midterm_score, final_score, weighted_score, grade, status, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :academic_year, :term, :attendance_score, :assignments_score, :midterm_score, :final_score, :weighted_score, :grade, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create course enrollment: %w", err)
	}
	return nil
}

// UpdateScores persists the partial score components.
func (r *CourseEnrollmentRepository) UpdateScores(ctx context.Context, enrollment *models.CourseEnrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_enrollments SET attendance_score = :attendance_score, assignments_score = :assignments_score, midterm_score = :midterm_score, final_score = :final_score, weighted_score = :weighted_score, grade = :grade, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment scores: %w", err)
	}
	return nil
}

// UpdateStatus changes the enrollment lifecycle status.
func (r *CourseEnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.CourseEnrollmentStatus) error {
	const query = `UPDATE course_enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ListForReport returns enrollment details for reporting, scoped by academic
// year and optionally study program.
func (r *CourseEnrollmentRepository) ListForReport(ctx context.Context, academicYear string, studyProgramID *string) ([]models.CourseEnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM course_enrollments ce JOIN subjects sub ON sub.id = ce.subject_id
        WHERE ce.academic_year = $1`, enrollmentDetailColumns)
	args := []interface{}{academicYear}
	if studyProgramID != nil && *studyProgramID != "" {
		query += " AND sub.study_program_id = $2"
		args = append(args, *studyProgramID)
	}
	query += " ORDER BY sub.code ASC, ce.created_at ASC"

	var enrollments []models.CourseEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments for report: %w", err)
	}
	return enrollments, nil
}
