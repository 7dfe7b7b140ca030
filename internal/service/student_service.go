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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	ExistsByIndexNumber(ctx context.Context, indexNumber string, excludeID string) (bool, error)
	Update(ctx context.Context, student *models.StudentProfile) error
	UpdateStatus(ctx context.Context, id string, status models.StudentStatus) error
}

// UpdateStudentRequest carries mutable student profile fields.
type UpdateStudentRequest struct {
	IndexNumber    string               `json:"index_number" validate:"required"`
	YearOfStudy    int                  `json:"year_of_study" validate:"min=1,max=10"`
	EnrollmentYear int                  `json:"enrollment_year" validate:"required"`
	Status         models.StudentStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE GRADUATED INTERRUPTED"`
	StudyProgramID *string              `json:"study_program_id"`
}

// StudentService manages student profile administration.
type StudentService struct {
	students  studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{students: students, validator: validate, logger: logger}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student by profile ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByUserID returns the student profile owned by a user account.
func (s *StudentService) GetByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Update modifies a student profile.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	taken, err := s.students.ExistsByIndexNumber(ctx, req.IndexNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check index number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "index number is already taken")
	}

	profile := detail.StudentProfile
	profile.IndexNumber = req.IndexNumber
	profile.YearOfStudy = req.YearOfStudy
	profile.EnrollmentYear = req.EnrollmentYear
	profile.Status = req.Status
	profile.StudyProgramID = req.StudyProgramID

	if err := s.students.Update(ctx, &profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.Get(ctx, id)
}

// UpdateStatus transitions a student's lifecycle status.
func (s *StudentService) UpdateStatus(ctx context.Context, id string, status models.StudentStatus) error {
	switch status {
	case models.StudentStatusActive, models.StudentStatusInactive, models.StudentStatusGraduated, models.StudentStatusInterrupted:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.students.UpdateStatus(ctx, id, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}
	return nil
}
