package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error)
	Exists(ctx context.Context, studentID, subjectID, academicYear, term string) (bool, error)
	Create(ctx context.Context, enrollment *models.CourseEnrollment) error
	UpdateScores(ctx context.Context, enrollment *models.CourseEnrollment) error
	UpdateStatus(ctx context.Context, id string, status models.CourseEnrollmentStatus) error
}

type enrollmentSubjectRepository interface {
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
}

type enrollmentStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type enrollmentCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateEnrollmentRequest registers a student to a subject for one term.
type CreateEnrollmentRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	SubjectID    string `json:"subject_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Term         string `json:"term" validate:"required,oneof=Winter Summer"`
}

// UpdateScoresRequest carries the partial score components. Nil fields leave
// the stored component untouched.
type UpdateScoresRequest struct {
	AttendanceScore  *float64 `json:"attendance_score" validate:"omitempty,min=0,max=100"`
	AssignmentsScore *float64 `json:"assignments_score" validate:"omitempty,min=0,max=100"`
	MidtermScore     *float64 `json:"midterm_score" validate:"omitempty,min=0,max=100"`
	FinalScore       *float64 `json:"final_score" validate:"omitempty,min=0,max=100"`
}

// EnrollmentService manages course enrollments and their grading lifecycle.
type EnrollmentService struct {
	enrollments enrollmentRepository
	subjects    enrollmentSubjectRepository
	students    enrollmentStudentRepository
	cache       enrollmentCacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepository, subjects enrollmentSubjectRepository, students enrollmentStudentRepository, cache enrollmentCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{enrollments: enrollments, subjects: subjects, students: students, cache: cache, validator: validate, logger: logger}
}

// List returns enrollments matching the filter with pagination info.
func (s *EnrollmentService) List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Create registers a student to a subject. A student can hold at most one
// enrollment per subject, academic year and term.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.CourseEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.subjects.FindSubject(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	exists, err := s.enrollments.Exists(ctx, req.StudentID, req.SubjectID, req.AcademicYear, req.Term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this subject for the term")
	}

	enrollment := &models.CourseEnrollment{
		StudentID:    req.StudentID,
		SubjectID:    req.SubjectID,
		AcademicYear: req.AcademicYear,
		Term:         req.Term,
		Status:       models.CourseEnrollmentActive,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateHistory(ctx, req.StudentID)
	return s.Get(ctx, enrollment.ID)
}

// UpdateScores merges the provided partial scores into the enrollment and
// recomputes the weighted score. The grade token is only assigned on
// completion, never while the enrollment is active.
func (s *EnrollmentService) UpdateScores(ctx context.Context, id string, req UpdateScoresRequest) (*models.CourseEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scores payload")
	}

	detail, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if detail.Status != models.CourseEnrollmentActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "scores can only be updated on active enrollments")
	}

	enrollment := detail.CourseEnrollment
	if req.AttendanceScore != nil {
		enrollment.AttendanceScore = req.AttendanceScore
	}
	if req.AssignmentsScore != nil {
		enrollment.AssignmentsScore = req.AssignmentsScore
	}
	if req.MidtermScore != nil {
		enrollment.MidtermScore = req.MidtermScore
	}
	if req.FinalScore != nil {
		enrollment.FinalScore = req.FinalScore
	}

	weighted := computeWeightedScore(enrollment.AttendanceScore, enrollment.AssignmentsScore, enrollment.MidtermScore, enrollment.FinalScore)
	enrollment.WeightedScore = &weighted

	if err := s.enrollments.UpdateScores(ctx, &enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update scores")
	}

	s.invalidateHistory(ctx, enrollment.StudentID)
	return s.Get(ctx, id)
}

// Complete finalizes an active enrollment. All four score components must be
// present, and attendance and final must be non-zero; the weighted score and
// grade token are computed and frozen.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error) {
	detail, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if detail.Status != models.CourseEnrollmentActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only active enrollments can be completed")
	}
	if detail.AttendanceScore == nil || detail.AssignmentsScore == nil || detail.MidtermScore == nil || detail.FinalScore == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "all score components are required before completion")
	}
	if *detail.AttendanceScore == 0 || *detail.FinalScore == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "attendance and final scores must be non-zero before completion")
	}

	enrollment := detail.CourseEnrollment
	weighted := computeWeightedScore(enrollment.AttendanceScore, enrollment.AssignmentsScore, enrollment.MidtermScore, enrollment.FinalScore)
	grade := scoreToGrade(weighted)
	enrollment.WeightedScore = &weighted
	enrollment.Grade = &grade
	enrollment.Status = models.CourseEnrollmentCompleted
	enrollment.UpdatedAt = time.Now().UTC()

	if err := s.enrollments.UpdateScores(ctx, &enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}

	s.logger.Info("enrollment completed",
		zap.String("enrollment_id", enrollment.ID),
		zap.Float64("weighted_score", weighted),
		zap.Int("grade", grade))

	s.invalidateHistory(ctx, enrollment.StudentID)
	return s.Get(ctx, id)
}

// Drop marks an active enrollment as dropped.
func (s *EnrollmentService) Drop(ctx context.Context, id string) error {
	detail, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if detail.Status != models.CourseEnrollmentActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "only active enrollments can be dropped")
	}

	if err := s.enrollments.UpdateStatus(ctx, id, models.CourseEnrollmentDropped); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	s.invalidateHistory(ctx, detail.StudentID)
	return nil
}

func (s *EnrollmentService) invalidateHistory(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "history:"+studentID+"*"); err != nil {
		s.logger.Warn("failed to invalidate history cache", zap.String("student_id", studentID), zap.Error(err))
	}
}
