package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univern/academics-api/internal/models"
)

// ProfessorRepository manages persistence for professor profiles and their
// subject assignments.
type ProfessorRepository struct {
	db *sqlx.DB
}

// NewProfessorRepository constructs a ProfessorRepository.
func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

// List returns professor profiles matching the provided filters.
func (r *ProfessorRepository) List(ctx context.Context, filter models.ProfessorFilter) ([]models.ProfessorDetail, int, error) {
	base := `FROM professor_profiles pr JOIN users u ON u.id = pr.user_id`
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(pr.scientific_field) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":  "u.full_name",
		"title":      "pr.title",
		"created_at": "pr.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "pr.created_at"
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

	query := fmt.Sprintf(`SELECT pr.id, pr.user_id, pr.title, pr.scientific_field, pr.created_at, pr.updated_at,
        u.email, u.full_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var professors []models.ProfessorDetail
	if err := r.db.SelectContext(ctx, &professors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list professors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count professors: %w", err)
	}
	return professors, total, nil
}

// FindByID fetches a professor detail by profile ID.
func (r *ProfessorRepository) FindByID(ctx context.Context, id string) (*models.ProfessorDetail, error) {
	const query = `SELECT pr.id, pr.user_id, pr.title, pr.scientific_field, pr.created_at, pr.updated_at,
        u.email, u.full_name
        FROM professor_profiles pr JOIN users u ON u.id = pr.user_id
        WHERE pr.id = $1`
	var detail models.ProfessorDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByUserID fetches a professor detail by owning user account.
func (r *ProfessorRepository) FindByUserID(ctx context.Context, userID string) (*models.ProfessorDetail, error) {
	const query = `SELECT pr.id, pr.user_id, pr.title, pr.scientific_field, pr.created_at, pr.updated_at,
        u.email, u.full_name
        FROM professor_profiles pr JOIN users u ON u.id = pr.user_id
        WHERE pr.user_id = $1`
	var detail models.ProfessorDetail
	if err := r.db.GetContext(ctx, &detail, query, userID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new professor profile.
func (r *ProfessorRepository) Create(ctx context.Context, professor *models.ProfessorProfile) error {
	if professor.ID == "" {
		professor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if professor.CreatedAt.IsZero() {
		professor.CreatedAt = now
	}
	professor.UpdatedAt = now
	const query = `INSERT INTO professor_profiles (id, user_id, title, scientific_field, created_at, updated_at)
        VALUES (:id, :user_id, :title, :scientific_field, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, professor); err != nil {
		return fmt.Errorf("create professor: %w", err)
	}
	return nil
}

// Update modifies an existing professor profile.
func (r *ProfessorRepository) Update(ctx context.Context, professor *models.ProfessorProfile) error {
	professor.UpdatedAt = time.Now().UTC()
	const query = `UPDATE professor_profiles SET title = :title, scientific_field = :scientific_field, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, professor); err != nil {
		return fmt.Errorf("update professor: %w", err)
	}
	return nil
}

// ListAssignments returns subject assignments for a professor.
func (r *ProfessorRepository) ListAssignments(ctx context.Context, professorID string, academicYear string) ([]models.ProfessorAssignment, error) {
	query := `SELECT a.id, a.professor_id, a.subject_id, a.study_program_id, a.academic_year, a.created_at,
        sub.code AS subject_code, sub.name AS subject_name
        FROM professor_assignments a JOIN subjects sub ON sub.id = a.subject_id
        WHERE a.professor_id = $1`
	args := []interface{}{professorID}
	if academicYear != "" {
		query += " AND a.academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY a.created_at DESC"

	var assignments []models.ProfessorAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list professor assignments: %w", err)
	}
	return assignments, nil
}

// CreateAssignment maps a professor to a subject for an academic year.
func (r *ProfessorRepository) CreateAssignment(ctx context.Context, assignment *models.ProfessorAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO professor_assignments (id, professor_id, subject_id, study_program_id, academic_year, created_at)
        VALUES (:id, :professor_id, :subject_id, :study_program_id, :academic_year, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create professor assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes a professor-subject assignment.
func (r *ProfessorRepository) DeleteAssignment(ctx context.Context, id string) error {
	const query = `DELETE FROM professor_assignments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete professor assignment: %w", err)
	}
	return nil
}

// TeachesSubject reports whether a professor is assigned to the subject.
func (r *ProfessorRepository) TeachesSubject(ctx context.Context, professorID, subjectID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM professor_assignments WHERE professor_id = $1 AND subject_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, professorID, subjectID); err != nil {
		return false, fmt.Errorf("check professor assignment: %w", err)
	}
	return count > 0, nil
}
