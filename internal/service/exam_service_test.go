package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/repository"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockExamRepo struct {
	periods       map[string]models.ExamPeriod
	exams         map[string]models.ExamDetail
	enrollments   map[string]bool
	registrations map[string]bool
	grades        map[string]bool
	cancelled     int64
	created       *models.ExamRegistration
	grade         *models.LegacyGrade
}

func (m *mockExamRepo) ListPeriods(ctx context.Context) ([]models.ExamPeriod, error) {
	return nil, nil
}

func (m *mockExamRepo) FindPeriod(ctx context.Context, id string) (*models.ExamPeriod, error) {
	if p, ok := m.periods[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamRepo) CreatePeriod(ctx context.Context, period *models.ExamPeriod) error {
	if period.ID == "" {
		period.ID = "new-period"
	}
	if m.periods == nil {
		m.periods = make(map[string]models.ExamPeriod)
	}
	m.periods[period.ID] = *period
	return nil
}

func (m *mockExamRepo) UpdatePeriod(ctx context.Context, period *models.ExamPeriod) error {
	return nil
}

func (m *mockExamRepo) ListExams(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, int, error) {
	return nil, 0, nil
}

func (m *mockExamRepo) FindExam(ctx context.Context, id string) (*models.ExamDetail, error) {
	if e, ok := m.exams[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExamRepo) CreateExam(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = "new-exam"
	}
	if m.exams == nil {
		m.exams = make(map[string]models.ExamDetail)
	}
	m.exams[exam.ID] = models.ExamDetail{Exam: *exam}
	return nil
}

func (m *mockExamRepo) UpdateExam(ctx context.Context, exam *models.Exam) error {
	return nil
}

func (m *mockExamRepo) ListAvailableExams(ctx context.Context, studentID string, now time.Time) ([]models.ExamDetail, error) {
	return nil, nil
}

func (m *mockExamRepo) HasActiveEnrollment(ctx context.Context, studentID, subjectID string) (bool, error) {
	return m.enrollments[studentID+subjectID], nil
}

func (m *mockExamRepo) CreateRegistration(ctx context.Context, registration *models.ExamRegistration) error {
	key := registration.StudentID + registration.ExamID
	if m.registrations[key] {
		return repository.ErrDuplicateRegistration
	}
	if m.registrations == nil {
		m.registrations = make(map[string]bool)
	}
	m.registrations[key] = true
	registration.ID = "new-registration"
	registration.Status = models.ExamRegistrationRegistered
	m.created = registration
	return nil
}

func (m *mockExamRepo) CancelRegistration(ctx context.Context, studentID, examID string, cancelledAt time.Time) (int64, error) {
	key := studentID + examID
	if m.registrations[key] {
		delete(m.registrations, key)
		m.cancelled++
		return 1, nil
	}
	return 0, nil
}

func (m *mockExamRepo) ListRegistrationsByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error) {
	return nil, nil
}

func (m *mockExamRepo) ListRegistrationsByExam(ctx context.Context, examID string) ([]models.ExamRegistrationDetail, error) {
	return nil, nil
}

func (m *mockExamRepo) CreateGrade(ctx context.Context, grade *models.LegacyGrade) error {
	if m.grades == nil {
		m.grades = make(map[string]bool)
	}
	m.grades[grade.StudentID+grade.ExamID] = true
	m.grade = grade
	return nil
}

func (m *mockExamRepo) HasGrade(ctx context.Context, studentID, examID string) (bool, error) {
	return m.grades[studentID+examID], nil
}

func openExamFixture(now time.Time) *mockExamRepo {
	return &mockExamRepo{
		periods: map[string]models.ExamPeriod{
			"p1": {
				ID:                   "p1",
				StartsAt:             now.Add(48 * time.Hour),
				EndsAt:               now.Add(96 * time.Hour),
				RegistrationStartsAt: now.Add(-24 * time.Hour),
				RegistrationEndsAt:   now.Add(24 * time.Hour),
			},
		},
		exams: map[string]models.ExamDetail{
			"x1": {Exam: models.Exam{ID: "x1", SubjectID: "sub1", ExamPeriodID: "p1", MaxPoints: 100, Active: true}},
		},
		enrollments: map[string]bool{"s1sub1": true},
	}
}

func newExamService(repo *mockExamRepo, now time.Time) *ExamService {
	svc := NewExamService(repo, &mockCache{}, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestExamServiceRegister(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	svc := newExamService(repo, now)

	registration, err := svc.Register(context.Background(), "s1", "x1")
	require.NoError(t, err)
	assert.Equal(t, models.ExamRegistrationRegistered, registration.Status)
	assert.NotNil(t, repo.created)
}

func TestExamServiceRegisterDuplicate(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	repo.registrations = map[string]bool{"s1x1": true}
	svc := newExamService(repo, now)

	_, err := svc.Register(context.Background(), "s1", "x1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyRegistered.Code, appErrors.FromError(err).Code)
}

func TestExamServiceRegisterWindowClosed(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	svc := newExamService(repo, now.Add(72*time.Hour))

	_, err := svc.Register(context.Background(), "s1", "x1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExamServiceRegisterInactiveExam(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	exam := repo.exams["x1"]
	exam.Active = false
	repo.exams["x1"] = exam
	svc := newExamService(repo, now)

	_, err := svc.Register(context.Background(), "s1", "x1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExamServiceRegisterRequiresActiveEnrollment(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	svc := newExamService(repo, now)

	// s2 has no active enrollment for the exam's subject.
	_, err := svc.Register(context.Background(), "s2", "x1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestExamServiceCancelIdempotent(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	repo.registrations = map[string]bool{"s1x1": true}
	svc := newExamService(repo, now)

	require.NoError(t, svc.Cancel(context.Background(), "s1", "x1"))
	assert.Equal(t, int64(1), repo.cancelled)

	// second cancel finds nothing and still succeeds
	require.NoError(t, svc.Cancel(context.Background(), "s1", "x1"))
	assert.Equal(t, int64(1), repo.cancelled)
}

func TestExamServiceCreatePeriodRegistrationMustCloseBeforeStart(t *testing.T) {
	now := time.Now().UTC()
	svc := newExamService(&mockExamRepo{}, now)

	_, err := svc.CreatePeriod(context.Background(), CreateExamPeriodRequest{
		Name:                 "June",
		StartsAt:             now.Add(24 * time.Hour),
		EndsAt:               now.Add(96 * time.Hour),
		RegistrationStartsAt: now,
		RegistrationEndsAt:   now.Add(48 * time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamServiceGradeExam(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	svc := newExamService(repo, now)

	grade, err := svc.GradeExam(context.Background(), "x1", GradeExamRequest{StudentID: "s1", Points: 87, GradeValue: "9"})
	require.NoError(t, err)
	assert.Equal(t, 87.0, grade.Points)
	assert.NotNil(t, repo.grade)
}

func TestExamServiceGradeExamRejectsExcessPoints(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	svc := newExamService(repo, now)

	_, err := svc.GradeExam(context.Background(), "x1", GradeExamRequest{StudentID: "s1", Points: 120, GradeValue: "10"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamServiceGradeExamOnce(t *testing.T) {
	now := time.Now().UTC()
	repo := openExamFixture(now)
	repo.grades = map[string]bool{"s1x1": true}
	svc := newExamService(repo, now)

	_, err := svc.GradeExam(context.Background(), "x1", GradeExamRequest{StudentID: "s1", Points: 50, GradeValue: "6"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
