package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.CourseEnrollment
	existing    map[string]bool
	created     *models.CourseEnrollment
	updated     *models.CourseEnrollment
	status      map[string]models.CourseEnrollmentStatus
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.CourseEnrollmentDetail{CourseEnrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, subjectID, academicYear, term string) (bool, error) {
	return m.existing[studentID+subjectID+academicYear+term], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.CourseEnrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateScores(ctx context.Context, enrollment *models.CourseEnrollment) error {
	m.enrollments[enrollment.ID] = *enrollment
	m.updated = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.CourseEnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.CourseEnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type mockSubjectReader struct{}

func (m *mockSubjectReader) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Subject{ID: id, Code: "CS101", Name: "Programming", Credits: 6}, nil
}

type mockStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCache struct {
	deleted []string
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	return nil
}

func newEnrollmentService(repo *mockEnrollmentRepo, cache *mockCache) *EnrollmentService {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {StudentProfile: models.StudentProfile{ID: "s1", Status: models.StudentStatusActive}},
	}}
	return NewEnrollmentService(repo, &mockSubjectReader{}, students, cache, validator.New(), zap.NewNop())
}

func TestEnrollmentServiceCreate(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	cache := &mockCache{}
	svc := newEnrollmentService(repo, cache)

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID: "s1", SubjectID: "sub1", AcademicYear: "2024/2025", Term: "Winter",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CourseEnrollmentActive, detail.Status)
	require.NotNil(t, repo.created)
	assert.Contains(t, cache.deleted, "history:s1*")
}

func TestEnrollmentServiceCreateDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{existing: map[string]bool{"s1sub12024/2025Winter": true}}
	svc := newEnrollmentService(repo, &mockCache{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID: "s1", SubjectID: "sub1", AcademicYear: "2024/2025", Term: "Winter",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUpdateScoresPartial(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive, AttendanceScore: f64(90)},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	detail, err := svc.UpdateScores(context.Background(), "e1", UpdateScoresRequest{MidtermScore: f64(80)})
	require.NoError(t, err)
	require.NotNil(t, detail.WeightedScore)
	// 0.10*90 + 0.30*80 = 33
	assert.Equal(t, 33.0, *detail.WeightedScore)
	assert.Nil(t, detail.Grade)
}

func TestEnrollmentServiceUpdateScoresLeavesGradeUnassigned(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive,
			AttendanceScore: f64(100), AssignmentsScore: f64(90), MidtermScore: f64(85)},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	detail, err := svc.UpdateScores(context.Background(), "e1", UpdateScoresRequest{FinalScore: f64(95)})
	require.NoError(t, err)
	require.NotNil(t, detail.WeightedScore)
	// 10 + 18 + 25.5 + 38 = 91.5 -> 92
	assert.Equal(t, 92.0, *detail.WeightedScore)
	// the grade token is assigned on completion only
	assert.Nil(t, detail.Grade)
}

func TestEnrollmentServiceComplete(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive,
			AttendanceScore: f64(60), AssignmentsScore: f64(60), MidtermScore: f64(60), FinalScore: f64(60)},
	}}
	cache := &mockCache{}
	svc := newEnrollmentService(repo, cache)

	detail, err := svc.Complete(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.CourseEnrollmentCompleted, detail.Status)
	require.NotNil(t, detail.Grade)
	assert.Equal(t, 6, *detail.Grade)
	assert.Contains(t, cache.deleted, "history:s1*")
}

func TestEnrollmentServiceCompleteRequiresAllComponents(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive, AttendanceScore: f64(60)},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	_, err := svc.Complete(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCompleteRejectsZeroAttendanceOrFinal(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive,
			AttendanceScore: f64(0), AssignmentsScore: f64(60), MidtermScore: f64(60), FinalScore: f64(60)},
		"e2": {ID: "e2", StudentID: "s1", Status: models.CourseEnrollmentActive,
			AttendanceScore: f64(60), AssignmentsScore: f64(60), MidtermScore: f64(60), FinalScore: f64(0)},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	_, err := svc.Complete(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = svc.Complete(context.Background(), "e2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUpdateScoresRejectsCompleted(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentCompleted},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	_, err := svc.UpdateScores(context.Background(), "e1", UpdateScoresRequest{FinalScore: f64(50)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceDrop(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.CourseEnrollment{
		"e1": {ID: "e1", StudentID: "s1", Status: models.CourseEnrollmentActive},
	}}
	svc := newEnrollmentService(repo, &mockCache{})

	require.NoError(t, svc.Drop(context.Background(), "e1"))
	assert.Equal(t, models.CourseEnrollmentDropped, repo.status["e1"])
}
