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

type catalogRepository interface {
	ListFaculties(ctx context.Context) ([]models.Faculty, error)
	FindFaculty(ctx context.Context, id string) (*models.Faculty, error)
	CreateFaculty(ctx context.Context, faculty *models.Faculty) error
	UpdateFaculty(ctx context.Context, faculty *models.Faculty) error
	ListStudyPrograms(ctx context.Context, facultyID string) ([]models.StudyProgram, error)
	FindStudyProgram(ctx context.Context, id string) (*models.StudyProgram, error)
	CreateStudyProgram(ctx context.Context, program *models.StudyProgram) error
	UpdateStudyProgram(ctx context.Context, program *models.StudyProgram) error
	ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	ExistsSubjectByCode(ctx context.Context, code string, excludeID string) (bool, error)
	CreateSubject(ctx context.Context, subject *models.Subject) error
	UpdateSubject(ctx context.Context, subject *models.Subject) error
	DeleteSubject(ctx context.Context, id string) error
}

// FacultyRequest carries faculty create/update fields.
type FacultyRequest struct {
	Name string `json:"name" validate:"required"`
	City string `json:"city" validate:"required"`
}

// StudyProgramRequest carries study program create/update fields.
type StudyProgramRequest struct {
	FacultyID string `json:"faculty_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"required"`
}

// SubjectRequest carries subject create/update fields.
type SubjectRequest struct {
	StudyProgramID *string `json:"study_program_id" validate:"omitempty,uuid"`
	Code           string  `json:"code" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Credits        int     `json:"credits" validate:"required,min=1,max=30"`
}

// CatalogService manages faculties, study programs and subjects.
type CatalogService struct {
	catalog   catalogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(catalog catalogRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{catalog: catalog, validator: validate, logger: logger}
}

// ListFaculties returns all faculties.
func (s *CatalogService) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	faculties, err := s.catalog.ListFaculties(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculties")
	}
	if faculties == nil {
		faculties = []models.Faculty{}
	}
	return faculties, nil
}

// GetFaculty returns one faculty.
func (s *CatalogService) GetFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.catalog.FindFaculty(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	return faculty, nil
}

// CreateFaculty registers a new faculty.
func (s *CatalogService) CreateFaculty(ctx context.Context, req FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty := &models.Faculty{Name: req.Name, City: req.City}
	if err := s.catalog.CreateFaculty(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}
	return faculty, nil
}

// UpdateFaculty modifies an existing faculty.
func (s *CatalogService) UpdateFaculty(ctx context.Context, id string, req FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty, err := s.GetFaculty(ctx, id)
	if err != nil {
		return nil, err
	}
	faculty.Name = req.Name
	faculty.City = req.City
	if err := s.catalog.UpdateFaculty(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty")
	}
	return faculty, nil
}

// ListStudyPrograms returns study programs, optionally scoped to a faculty.
func (s *CatalogService) ListStudyPrograms(ctx context.Context, facultyID string) ([]models.StudyProgram, error) {
	programs, err := s.catalog.ListStudyPrograms(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study programs")
	}
	if programs == nil {
		programs = []models.StudyProgram{}
	}
	return programs, nil
}

// GetStudyProgram returns one study program.
func (s *CatalogService) GetStudyProgram(ctx context.Context, id string) (*models.StudyProgram, error) {
	program, err := s.catalog.FindStudyProgram(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study program")
	}
	return program, nil
}

// CreateStudyProgram registers a new study program under a faculty.
func (s *CatalogService) CreateStudyProgram(ctx context.Context, req StudyProgramRequest) (*models.StudyProgram, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study program payload")
	}
	if _, err := s.GetFaculty(ctx, req.FacultyID); err != nil {
		return nil, err
	}
	program := &models.StudyProgram{FacultyID: req.FacultyID, Name: req.Name}
	if err := s.catalog.CreateStudyProgram(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create study program")
	}
	return program, nil
}

// UpdateStudyProgram modifies an existing study program.
func (s *CatalogService) UpdateStudyProgram(ctx context.Context, id string, req StudyProgramRequest) (*models.StudyProgram, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study program payload")
	}
	program, err := s.GetStudyProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetFaculty(ctx, req.FacultyID); err != nil {
		return nil, err
	}
	program.FacultyID = req.FacultyID
	program.Name = req.Name
	if err := s.catalog.UpdateStudyProgram(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update study program")
	}
	return program, nil
}

// ListSubjects returns subjects matching the filter.
func (s *CatalogService) ListSubjects(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.catalog.ListSubjects(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return subjects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetSubject returns one subject.
func (s *CatalogService) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.catalog.FindSubject(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// CreateSubject registers a new subject with a unique code.
func (s *CatalogService) CreateSubject(ctx context.Context, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	taken, err := s.catalog.ExistsSubjectByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code is already taken")
	}
	if req.StudyProgramID != nil {
		if _, err := s.GetStudyProgram(ctx, *req.StudyProgramID); err != nil {
			return nil, err
		}
	}
	subject := &models.Subject{
		StudyProgramID: req.StudyProgramID,
		Code:           req.Code,
		Name:           req.Name,
		Credits:        req.Credits,
	}
	if err := s.catalog.CreateSubject(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// UpdateSubject modifies an existing subject.
func (s *CatalogService) UpdateSubject(ctx context.Context, id string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := s.catalog.ExistsSubjectByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code is already taken")
	}
	if req.StudyProgramID != nil {
		if _, err := s.GetStudyProgram(ctx, *req.StudyProgramID); err != nil {
			return nil, err
		}
	}
	subject.StudyProgramID = req.StudyProgramID
	subject.Code = req.Code
	subject.Name = req.Name
	subject.Credits = req.Credits
	if err := s.catalog.UpdateSubject(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// DeleteSubject removes a subject from the catalog.
func (s *CatalogService) DeleteSubject(ctx context.Context, id string) error {
	if _, err := s.GetSubject(ctx, id); err != nil {
		return err
	}
	if err := s.catalog.DeleteSubject(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return nil
}
