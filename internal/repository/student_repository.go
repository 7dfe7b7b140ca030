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

// StudentRepository manages persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `s.id, s.user_id, s.index_number, s.year_of_study, s.enrollment_year, s.status, s.study_program_id, s.created_at, s.updated_at,
        u.email, u.full_name, u.active AS user_active, p.name AS study_program_name`

// List returns student profiles matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM student_profiles s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN study_programs p ON p.id = s.study_program_id`
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.StudyProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("s.study_program_id = $%d", len(args)+1))
		args = append(args, filter.StudyProgramID)
	}
	if filter.YearOfStudy > 0 {
		conditions = append(conditions, fmt.Sprintf("s.year_of_study = $%d", len(args)+1))
		args = append(args, filter.YearOfStudy)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(s.index_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":    "u.full_name",
		"index_number": "s.index_number",
		"created_at":   "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentDetailColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by profile ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM student_profiles s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN study_programs p ON p.id = s.study_program_id
        WHERE s.id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByUserID fetches a student detail by the owning user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM student_profiles s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN study_programs p ON p.id = s.study_program_id
        WHERE s.user_id = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, userID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByIndexNumber fetches a student detail by index number.
func (r *StudentRepository) FindByIndexNumber(ctx context.Context, indexNumber string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM student_profiles s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN study_programs p ON p.id = s.study_program_id
        WHERE s.index_number = $1`, studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, indexNumber); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByIndexNumber checks if a student with the given index number exists,
// optionally excluding a profile ID.
func (r *StudentRepository) ExistsByIndexNumber(ctx context.Context, indexNumber string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM student_profiles WHERE index_number = $1"
	args := []interface{}{indexNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check index number: %w", err)
	}
	return true, nil
}

// Create inserts a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.StudentProfile) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO student_profiles (id, user_id, index_number, year_of_study, enrollment_year, status, study_program_id, created_at, updated_at)
        VALUES (:id, :user_id, :index_number, :year_of_study, :enrollment_year, :status, :study_program_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student profile.
func (r *StudentRepository) Update(ctx context.Context, student *models.StudentProfile) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_profiles SET index_number = :index_number, year_of_study = :year_of_study, enrollment_year = :enrollment_year, status = :status, study_program_id = :study_program_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateStatus changes the lifecycle status of a student.
func (r *StudentRepository) UpdateStatus(ctx context.Context, id string, status models.StudentStatus) error {
	const query = `UPDATE student_profiles SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	return nil
}
