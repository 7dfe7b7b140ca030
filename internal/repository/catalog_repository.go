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

// CatalogRepository manages faculties, study programs and subjects.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListFaculties returns all faculties ordered by name.
func (r *CatalogRepository) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT id, name, city, created_at, updated_at FROM faculties ORDER BY name ASC`
	var faculties []models.Faculty
	if err := r.db.SelectContext(ctx, &faculties, query); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return faculties, nil
}

// FindFaculty fetches a faculty by ID.
func (r *CatalogRepository) FindFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	const query = `SELECT id, name, city, created_at, updated_at FROM faculties WHERE id = $1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, id); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// CreateFaculty inserts a new faculty.
func (r *CatalogRepository) CreateFaculty(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if faculty.CreatedAt.IsZero() {
		faculty.CreatedAt = now
	}
	faculty.UpdatedAt = now
	const query = `INSERT INTO faculties (id, name, city, created_at, updated_at) VALUES (:id, :name, :city, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// UpdateFaculty modifies an existing faculty.
func (r *CatalogRepository) UpdateFaculty(ctx context.Context, faculty *models.Faculty) error {
	faculty.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculties SET name = :name, city = :city, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("update faculty: %w", err)
	}
	return nil
}

// ListStudyPrograms returns study programs, optionally scoped to a faculty.
func (r *CatalogRepository) ListStudyPrograms(ctx context.Context, facultyID string) ([]models.StudyProgram, error) {
	query := `SELECT id, faculty_id, name, created_at, updated_at FROM study_programs`
	var args []interface{}
	if facultyID != "" {
		query += " WHERE faculty_id = $1"
		args = append(args, facultyID)
	}
	query += " ORDER BY name ASC"

	var programs []models.StudyProgram
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, fmt.Errorf("list study programs: %w", err)
	}
	return programs, nil
}

// FindStudyProgram fetches a study program by ID.
func (r *CatalogRepository) FindStudyProgram(ctx context.Context, id string) (*models.StudyProgram, error) {
	const query = `SELECT id, faculty_id, name, created_at, updated_at FROM study_programs WHERE id = $1`
	var program models.StudyProgram
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// CreateStudyProgram inserts a new study program.
func (r *CatalogRepository) CreateStudyProgram(ctx context.Context, program *models.StudyProgram) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = now
	const query = `INSERT INTO study_programs (id, faculty_id, name, created_at, updated_at) VALUES (:id, :faculty_id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create study program: %w", err)
	}
	return nil
}

// UpdateStudyProgram modifies an existing study program.
func (r *CatalogRepository) UpdateStudyProgram(ctx context.Context, program *models.StudyProgram) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE study_programs SET faculty_id = :faculty_id, name = :name, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("update study program: %w", err)
	}
	return nil
}

// ListSubjects returns subjects matching the provided filters.
func (r *CatalogRepository) ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := `FROM subjects WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudyProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("study_program_id = $%d", len(args)+1))
		args = append(args, filter.StudyProgramID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	query := fmt.Sprintf("SELECT id, study_program_id, code, name, credits, created_at, updated_at %s ORDER BY code ASC LIMIT %d OFFSET %d", base, size, offset)

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindSubject fetches a subject by ID.
func (r *CatalogRepository) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, study_program_id, code, name, credits, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindSubjectByCode fetches a subject by its unique code.
func (r *CatalogRepository) FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error) {
	const query = `SELECT id, study_program_id, code, name, credits, created_at, updated_at FROM subjects WHERE code = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsSubjectByCode checks if a subject with the code exists, optionally
// excluding an ID.
func (r *CatalogRepository) ExistsSubjectByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return true, nil
}

// CreateSubject inserts a new subject.
func (r *CatalogRepository) CreateSubject(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, study_program_id, code, name, credits, created_at, updated_at)
        VALUES (:id, :study_program_id, :code, :name, :credits, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// UpdateSubject modifies an existing subject.
func (r *CatalogRepository) UpdateSubject(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET study_program_id = :study_program_id, code = :code, name = :name, credits = :credits, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// DeleteSubject removes a subject.
func (r *CatalogRepository) DeleteSubject(ctx context.Context, id string) error {
	const query = `DELETE FROM subjects WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
