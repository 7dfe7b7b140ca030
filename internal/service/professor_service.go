package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type professorRepository interface {
	List(ctx context.Context, filter models.ProfessorFilter) ([]models.ProfessorDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ProfessorDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.ProfessorDetail, error)
	Update(ctx context.Context, professor *models.ProfessorProfile) error
	ListAssignments(ctx context.Context, professorID string, academicYear string) ([]models.ProfessorAssignment, error)
	CreateAssignment(ctx context.Context, assignment *models.ProfessorAssignment) error
	DeleteAssignment(ctx context.Context, id string) error
}

type professorSubjectRepository interface {
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
}

// UpdateProfessorRequest carries mutable professor profile fields.
type UpdateProfessorRequest struct {
	Title           string `json:"title" validate:"required"`
	ScientificField string `json:"scientific_field" validate:"required"`
}

// CreateAssignmentRequest maps a professor to a subject for an academic year.
type CreateAssignmentRequest struct {
	SubjectID      string  `json:"subject_id" validate:"required,uuid"`
	StudyProgramID *string `json:"study_program_id" validate:"omitempty,uuid"`
	AcademicYear   string  `json:"academic_year" validate:"required"`
}

// ProfessorService manages professor profiles and subject assignments.
type ProfessorService struct {
	professors professorRepository
	subjects   professorSubjectRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProfessorService constructs a ProfessorService.
func NewProfessorService(professors professorRepository, subjects professorSubjectRepository, validate *validator.Validate, logger *zap.Logger) *ProfessorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfessorService{professors: professors, subjects: subjects, validator: validate, logger: logger}
}

// List returns professors matching the filter.
func (s *ProfessorService) List(ctx context.Context, filter models.ProfessorFilter) ([]models.ProfessorDetail, *models.Pagination, error) {
	professors, total, err := s.professors.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list professors")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return professors, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one professor by profile ID.
func (s *ProfessorService) Get(ctx context.Context, id string) (*models.ProfessorDetail, error) {
	professor, err := s.professors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	return professor, nil
}

// GetByUserID returns the professor profile owned by a user account.
func (s *ProfessorService) GetByUserID(ctx context.Context, userID string) (*models.ProfessorDetail, error) {
	professor, err := s.professors.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	return professor, nil
}

// Update modifies a professor profile.
func (s *ProfessorService) Update(ctx context.Context, id string, req UpdateProfessorRequest) (*models.ProfessorDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid professor payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := detail.ProfessorProfile
	profile.Title = req.Title
	profile.ScientificField = req.ScientificField
	if err := s.professors.Update(ctx, &profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update professor")
	}
	return s.Get(ctx, id)
}

// ListAssignments returns the subject assignments of a professor.
func (s *ProfessorService) ListAssignments(ctx context.Context, professorID string, academicYear string) ([]models.ProfessorAssignment, error) {
	if _, err := s.Get(ctx, professorID); err != nil {
		return nil, err
	}
	assignments, err := s.professors.ListAssignments(ctx, professorID, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	if assignments == nil {
		assignments = []models.ProfessorAssignment{}
	}
	return assignments, nil
}

// CreateAssignment assigns a subject to a professor.
func (s *ProfessorService) CreateAssignment(ctx context.Context, professorID string, req CreateAssignmentRequest) (*models.ProfessorAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.Get(ctx, professorID); err != nil {
		return nil, err
	}
	subject, err := s.subjects.FindSubject(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	assignment := &models.ProfessorAssignment{
		ProfessorID:    professorID,
		SubjectID:      subject.ID,
		StudyProgramID: req.StudyProgramID,
		AcademicYear:   req.AcademicYear,
		SubjectCode:    subject.Code,
		SubjectName:    subject.Name,
	}
	if err := s.professors.CreateAssignment(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("professor assigned to subject",
		zap.String("professor_id", professorID),
		zap.String("subject_id", subject.ID),
		zap.String("academic_year", req.AcademicYear))
	return assignment, nil
}

// DeleteAssignment removes a professor-subject assignment.
func (s *ProfessorService) DeleteAssignment(ctx context.Context, professorID, assignmentID string) error {
	if _, err := s.Get(ctx, professorID); err != nil {
		return err
	}
	if err := s.professors.DeleteAssignment(ctx, assignmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}
