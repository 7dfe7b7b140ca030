package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockHistoryEnrollments struct {
	active []models.CourseEnrollmentDetail
	passed []models.CourseEnrollmentDetail
	all    []models.CourseEnrollmentDetail
	fail   bool
}

func (m *mockHistoryEnrollments) ListByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	if m.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return m.all, nil
}

func (m *mockHistoryEnrollments) ListActiveByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	if m.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return m.active, nil
}

func (m *mockHistoryEnrollments) ListPassedByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error) {
	if m.fail {
		return nil, fmt.Errorf("connection refused")
	}
	return m.passed, nil
}

type mockHistoryExams struct {
	grades        []models.LegacyGrade
	registrations []models.ExamRegistrationDetail
}

func (m *mockHistoryExams) ListGradesByStudent(ctx context.Context, studentID string) ([]models.LegacyGrade, error) {
	return m.grades, nil
}

func (m *mockHistoryExams) ListRegistrationsByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error) {
	return m.registrations, nil
}

type mockHistoryCache struct {
	entries map[string]*models.AcademicHistory
	sets    int
}

func (m *mockHistoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if h, ok := m.entries[key]; ok {
		*dest.(*models.AcademicHistory) = *h
		return nil
	}
	return appErrors.ErrCacheMiss
}

func (m *mockHistoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string]*models.AcademicHistory)
	}
	if h, ok := value.(*models.AcademicHistory); ok {
		m.entries[key] = h
	}
	m.sets++
	return nil
}

func enrollmentDetail(id string, status models.CourseEnrollmentStatus, grade *int, credits int) models.CourseEnrollmentDetail {
	return models.CourseEnrollmentDetail{
		CourseEnrollment: models.CourseEnrollment{
			ID:        id,
			StudentID: "s1",
			Status:    status,
			Grade:     grade,
			CreatedAt: time.Date(2024, time.November, 10, 0, 0, 0, 0, time.UTC),
		},
		SubjectCredits: credits,
	}
}

func intp(v int) *int { return &v }

func TestHistoryServiceMergesWithoutDedup(t *testing.T) {
	passed := enrollmentDetail("e1", models.CourseEnrollmentCompleted, intp(8), 6)
	active := enrollmentDetail("e2", models.CourseEnrollmentActive, nil, 5)
	enrollments := &mockHistoryEnrollments{
		active: []models.CourseEnrollmentDetail{active},
		passed: []models.CourseEnrollmentDetail{passed},
		all:    []models.CourseEnrollmentDetail{passed, active},
	}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	svc := NewHistoryService(enrollments, &mockHistoryExams{}, students, nil, zap.NewNop(), HistoryConfig{})

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)

	// e1 appears under passed and enrollment, e2 under current and enrollment
	assert.Len(t, history.Merged, 4)
	keys := make(map[string]bool)
	for _, row := range history.Merged {
		assert.False(t, keys[row.Key], "duplicate key %s", row.Key)
		keys[row.Key] = true
	}
	assert.Equal(t, "Winter 2024/2025", history.Merged[0].Semester)
}

func TestHistoryServiceStats(t *testing.T) {
	passed := enrollmentDetail("e1", models.CourseEnrollmentCompleted, intp(9), 6)
	failed := enrollmentDetail("e2", models.CourseEnrollmentCompleted, intp(5), 4)
	active := enrollmentDetail("e3", models.CourseEnrollmentActive, nil, 5)
	other := enrollmentDetail("e4", models.CourseEnrollmentCompleted, intp(8), 3)
	enrollments := &mockHistoryEnrollments{
		active: []models.CourseEnrollmentDetail{active},
		passed: []models.CourseEnrollmentDetail{passed},
		all:    []models.CourseEnrollmentDetail{passed, failed, active, other},
	}
	exams := &mockHistoryExams{grades: []models.LegacyGrade{
		{ID: "g1", GradeValue: "A"},
		{ID: "g2", GradeValue: "B+"},
		{ID: "g3", GradeValue: "garbage"},
	}}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	svc := NewHistoryService(enrollments, exams, students, nil, zap.NewNop(), HistoryConfig{})

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 4, history.CourseStats.Total)
	assert.Equal(t, 1, history.CourseStats.Active)
	assert.Equal(t, 18, history.CourseStats.TotalCredits)
	// (9 + 5 + 8) / 3 = 7.33..., one decimal
	assert.Equal(t, 7.3, history.CourseStats.AverageGrade)

	assert.Equal(t, 3, history.GradeStats.TotalGraded)
	// (4.0 + 3.3 + 0.0) / 3
	assert.Equal(t, 2.43, history.GradeStats.Average)
	assert.Equal(t, 4.0, history.GradeStats.Highest)
	assert.Equal(t, 0.0, history.GradeStats.Lowest)
	assert.Equal(t, history.GradeStats.Average, history.GradeStats.GPA)
	assert.Equal(t, 6, history.GradeStats.TotalCredits)

	assert.Equal(t, 4, history.StudyStats.TotalAttempts)
	assert.Equal(t, 2, history.StudyStats.Passed)
	assert.Equal(t, 1, history.StudyStats.Failed)
	// merged graded rows: 9, 9, 5, 8 -> 7.75, one decimal
	assert.Equal(t, 7.8, history.StudyStats.AverageGrade)
}

func TestHistoryServiceUngradedRowsStayInProgress(t *testing.T) {
	dropped := enrollmentDetail("e1", models.CourseEnrollmentDropped, nil, 5)
	enrollments := &mockHistoryEnrollments{all: []models.CourseEnrollmentDetail{dropped}}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	svc := NewHistoryService(enrollments, &mockHistoryExams{}, students, nil, zap.NewNop(), HistoryConfig{})

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history.Merged, 1)
	assert.Equal(t, models.OutcomeInProgress, history.Merged[0].Outcome)
	assert.Equal(t, 0, history.StudyStats.Failed)
}

func TestHistoryServiceEmptyNeverErrors(t *testing.T) {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	svc := NewHistoryService(&mockHistoryEnrollments{}, &mockHistoryExams{}, students, nil, zap.NewNop(), HistoryConfig{})

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotNil(t, history.CurrentEnrollments)
	assert.NotNil(t, history.PassedSubjects)
	assert.NotNil(t, history.Student.Grades)
	assert.Empty(t, history.Merged)
	assert.Equal(t, 0, history.StudyStats.Total)
	assert.Equal(t, 0.0, history.GradeStats.Average)
}

func TestHistoryServiceDegradesOnSourceFailure(t *testing.T) {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	svc := NewHistoryService(&mockHistoryEnrollments{fail: true}, &mockHistoryExams{}, students, nil, zap.NewNop(), HistoryConfig{})

	history, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, history.CurrentEnrollments)
	assert.Empty(t, history.Merged)
}

func TestHistoryServiceUnknownStudent(t *testing.T) {
	students := &mockStudentReader{}
	svc := NewHistoryService(&mockHistoryEnrollments{}, &mockHistoryExams{}, students, nil, zap.NewNop(), HistoryConfig{})

	_, err := svc.GetHistory(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHistoryServiceCacheReadThrough(t *testing.T) {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{"s1": {StudentProfile: models.StudentProfile{ID: "s1"}}}}
	cache := &mockHistoryCache{}
	svc := NewHistoryService(&mockHistoryEnrollments{}, &mockHistoryExams{}, students, cache, zap.NewNop(), HistoryConfig{CacheEnabled: true, CacheTTL: time.Minute})

	_, err := svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "second read should come from cache")
}
