package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/repository"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type examRepository interface {
	ListPeriods(ctx context.Context) ([]models.ExamPeriod, error)
	FindPeriod(ctx context.Context, id string) (*models.ExamPeriod, error)
	CreatePeriod(ctx context.Context, period *models.ExamPeriod) error
	UpdatePeriod(ctx context.Context, period *models.ExamPeriod) error
	ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, int, error)
	FindExam(ctx context.Context, id string) (*models.ExamDetail, error)
	CreateExam(ctx context.Context, exam *models.Exam) error
	UpdateExam(ctx context.Context, exam *models.Exam) error
	ListAvailableExams(ctx context.Context, studentID string, now time.Time) ([]models.ExamDetail, error)
	HasActiveEnrollment(ctx context.Context, studentID, subjectID string) (bool, error)
	CreateRegistration(ctx context.Context, registration *models.ExamRegistration) error
	CancelRegistration(ctx context.Context, studentID, examID string, cancelledAt time.Time) (int64, error)
	ListRegistrationsByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error)
	ListRegistrationsByExam(ctx context.Context, examID string) ([]models.ExamRegistrationDetail, error)
	CreateGrade(ctx context.Context, grade *models.LegacyGrade) error
	HasGrade(ctx context.Context, studentID, examID string) (bool, error)
}

type examCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateExamPeriodRequest defines an administrative exam window.
type CreateExamPeriodRequest struct {
	Name                 string    `json:"name" validate:"required"`
	StartsAt             time.Time `json:"starts_at" validate:"required"`
	EndsAt               time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	RegistrationStartsAt time.Time `json:"registration_starts_at" validate:"required"`
	RegistrationEndsAt   time.Time `json:"registration_ends_at" validate:"required,gtfield=RegistrationStartsAt"`
}

// CreateExamRequest schedules a subject sitting within a period.
type CreateExamRequest struct {
	SubjectID    string    `json:"subject_id" validate:"required"`
	ExamPeriodID string    `json:"exam_period_id" validate:"required"`
	HeldAt       time.Time `json:"held_at" validate:"required"`
	MaxPoints    int       `json:"max_points" validate:"min=1,max=1000"`
}

// GradeExamRequest records an exam result for a registered student.
type GradeExamRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	Points     float64 `json:"points" validate:"min=0"`
	GradeValue string  `json:"grade_value" validate:"required"`
}

// ExamService manages exam periods, sittings, registrations and exam grades.
type ExamService struct {
	exams     examRepository
	cache     examCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExamService constructs an ExamService.
func NewExamService(exams examRepository, cache examCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{exams: exams, cache: cache, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ListPeriods returns all exam periods.
func (s *ExamService) ListPeriods(ctx context.Context) ([]models.ExamPeriod, error) {
	periods, err := s.exams.ListPeriods(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam periods")
	}
	return periods, nil
}

// CreatePeriod creates a new exam period. Registration must close at or
// before the period start.
func (s *ExamService) CreatePeriod(ctx context.Context, req CreateExamPeriodRequest) (*models.ExamPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam period payload")
	}
	if req.RegistrationEndsAt.After(req.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration must close before the period starts")
	}

	period := &models.ExamPeriod{
		Name:                 req.Name,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		RegistrationStartsAt: req.RegistrationStartsAt,
		RegistrationEndsAt:   req.RegistrationEndsAt,
	}
	if err := s.exams.CreatePeriod(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam period")
	}
	return period, nil
}

// ListExams returns exam sittings matching the filter.
func (s *ExamService) ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, *models.Pagination, error) {
	exams, total, err := s.exams.ListExams(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return exams, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetExam returns one exam by ID.
func (s *ExamService) GetExam(ctx context.Context, id string) (*models.ExamDetail, error) {
	exam, err := s.exams.FindExam(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// CreateExam schedules a new exam sitting inside an existing period.
func (s *ExamService) CreateExam(ctx context.Context, req CreateExamRequest) (*models.ExamDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	period, err := s.exams.FindPeriod(ctx, req.ExamPeriodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam period")
	}
	if req.HeldAt.Before(period.StartsAt) || req.HeldAt.After(period.EndsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam must be held inside its period")
	}

	maxPoints := req.MaxPoints
	if maxPoints == 0 {
		maxPoints = 100
	}
	exam := &models.Exam{
		SubjectID:    req.SubjectID,
		ExamPeriodID: req.ExamPeriodID,
		HeldAt:       req.HeldAt,
		MaxPoints:    maxPoints,
		Active:       true,
	}
	if err := s.exams.CreateExam(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	return s.GetExam(ctx, exam.ID)
}

// ListAvailableExams returns active exams the student can currently register
// for: registration window open, enrolled in the subject, no active
// registration yet.
func (s *ExamService) ListAvailableExams(ctx context.Context, studentID string) ([]models.ExamDetail, error) {
	exams, err := s.exams.ListAvailableExams(ctx, studentID, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available exams")
	}
	return exams, nil
}

// Register creates an active exam registration. Duplicate active
// registrations are rejected by the database's partial unique index, so
// concurrent attempts collapse to exactly one winner.
func (s *ExamService) Register(ctx context.Context, studentID, examID string) (*models.ExamRegistration, error) {
	exam, err := s.exams.FindExam(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if !exam.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exam is not active")
	}

	enrolled, err := s.exams.HasActiveEnrollment(ctx, studentID, exam.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not actively enrolled in the exam subject")
	}

	period, err := s.exams.FindPeriod(ctx, exam.ExamPeriodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam period")
	}
	now := s.now()
	if now.Before(period.RegistrationStartsAt) || now.After(period.RegistrationEndsAt) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "registration window is closed")
	}

	registration := &models.ExamRegistration{StudentID: studentID, ExamID: examID}
	if err := s.exams.CreateRegistration(ctx, registration); err != nil {
		if errors.Is(err, repository.ErrDuplicateRegistration) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyRegistered, "student is already registered for this exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	s.logger.Info("exam registration created",
		zap.String("student_id", studentID),
		zap.String("exam_id", examID))
	return registration, nil
}

// Cancel flips an active registration to CANCELLED. Cancelling when no
// active registration exists is an idempotent no-op.
func (s *ExamService) Cancel(ctx context.Context, studentID, examID string) error {
	affected, err := s.exams.CancelRegistration(ctx, studentID, examID, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	if affected == 0 {
		s.logger.Debug("cancel without active registration",
			zap.String("student_id", studentID),
			zap.String("exam_id", examID))
	}
	return nil
}

// ListRegistrations returns a student's exam registrations.
func (s *ExamService) ListRegistrations(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error) {
	registrations, err := s.exams.ListRegistrationsByStudent(ctx, studentID, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// ListExamRegistrations returns all registrations for one sitting.
func (s *ExamService) ListExamRegistrations(ctx context.Context, examID string) ([]models.ExamRegistrationDetail, error) {
	registrations, err := s.exams.ListRegistrationsByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam registrations")
	}
	return registrations, nil
}

// GradeExam records an exam result for a registered student. One grade per
// student and exam.
func (s *ExamService) GradeExam(ctx context.Context, examID string, req GradeExamRequest) (*models.LegacyGrade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	exam, err := s.exams.FindExam(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if req.Points > float64(exam.MaxPoints) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "points exceed the exam maximum")
	}

	already, err := s.exams.HasGrade(ctx, req.StudentID, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade")
	}
	if already {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grade already recorded for this exam")
	}

	grade := &models.LegacyGrade{
		StudentID:  req.StudentID,
		ExamID:     examID,
		Points:     req.Points,
		GradeValue: req.GradeValue,
		GradedAt:   s.now(),
	}
	if err := s.exams.CreateGrade(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "history:"+req.StudentID+"*"); err != nil {
			s.logger.Warn("failed to invalidate history cache", zap.Error(err))
		}
	}
	return grade, nil
}
