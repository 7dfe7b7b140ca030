package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type historyEnrollmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error)
	ListPassedByStudent(ctx context.Context, studentID string) ([]models.CourseEnrollmentDetail, error)
}

type historyExamRepository interface {
	ListGradesByStudent(ctx context.Context, studentID string) ([]models.LegacyGrade, error)
	ListRegistrationsByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.ExamRegistrationDetail, error)
}

type historyStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type historyCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// HistoryConfig controls the read-through cache for aggregated histories.
type HistoryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// HistoryService aggregates a student's academic records from every source
// into one snapshot. Individual source reads degrade to empty sections so a
// single failing collection never takes down the whole history.
type HistoryService struct {
	enrollments historyEnrollmentRepository
	exams       historyExamRepository
	students    historyStudentRepository
	cache       historyCache
	logger      *zap.Logger
	config      HistoryConfig
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(enrollments historyEnrollmentRepository, exams historyExamRepository, students historyStudentRepository, cache historyCache, logger *zap.Logger, config HistoryConfig) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &HistoryService{enrollments: enrollments, exams: exams, students: students, cache: cache, logger: logger, config: config}
}

// GetHistory returns the aggregated academic history for a student. The
// student must exist; everything else is best effort.
func (s *HistoryService) GetHistory(ctx context.Context, studentID string) (*models.AcademicHistory, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	cacheKey := "history:" + studentID
	if s.config.CacheEnabled && s.cache != nil {
		var cached models.AcademicHistory
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("history cache read failed", zap.Error(err))
		}
	}

	history := s.buildHistory(ctx, studentID)

	if s.config.CacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, history, s.config.CacheTTL); err != nil {
			s.logger.Warn("history cache write failed", zap.Error(err))
		}
	}
	return history, nil
}

func (s *HistoryService) buildHistory(ctx context.Context, studentID string) *models.AcademicHistory {
	current, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("current enrollments unavailable", zap.String("student_id", studentID), zap.Error(err))
		current = nil
	}
	passed, err := s.enrollments.ListPassedByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("passed subjects unavailable", zap.String("student_id", studentID), zap.Error(err))
		passed = nil
	}
	all, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("course enrollments unavailable", zap.String("student_id", studentID), zap.Error(err))
		all = nil
	}
	grades, err := s.exams.ListGradesByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("grades unavailable", zap.String("student_id", studentID), zap.Error(err))
		grades = nil
	}
	registrations, err := s.exams.ListRegistrationsByStudent(ctx, studentID, false)
	if err != nil {
		s.logger.Warn("exam registrations unavailable", zap.String("student_id", studentID), zap.Error(err))
		registrations = nil
	}

	merged := mergeHistoryRows(current, passed, all)

	return &models.AcademicHistory{
		CurrentEnrollments: emptyIfNil(current),
		PassedSubjects:     emptyIfNil(passed),
		ExamRegistrations:  emptyRegistrationsIfNil(registrations),
		Student: models.HistoryStudentSection{
			CourseEnrollments: emptyIfNil(all),
			Grades:            emptyGradesIfNil(grades),
		},
		Merged:      merged,
		CourseStats: computeCourseStats(all),
		GradeStats:  computeGradeStats(grades, passed),
		StudyStats:  computeStudyStats(merged),
	}
}

// mergeHistoryRows builds the union view. Rows are never deduplicated across
// sources; the composite key keeps every row addressable even when the same
// enrollment appears under several sources.
func mergeHistoryRows(current, passed, all []models.CourseEnrollmentDetail) []models.HistoryRow {
	rows := make([]models.HistoryRow, 0, len(current)+len(passed)+len(all))
	appendRows := func(source models.HistorySource, enrollments []models.CourseEnrollmentDetail) {
		for i, enrollment := range enrollments {
			rows = append(rows, models.HistoryRow{
				Key:        fmt.Sprintf("%s-%s-%d", source, enrollment.ID, i),
				Source:     source,
				Outcome:    classifyOutcome(enrollment),
				Semester:   semesterLabel(enrollment.CreatedAt),
				Enrollment: enrollment,
			})
		}
	}
	appendRows(models.HistorySourceCurrent, current)
	appendRows(models.HistorySourcePassed, passed)
	appendRows(models.HistorySourceEnrollment, all)
	return rows
}

// classifyOutcome derives the row outcome from the grade token alone. Rows
// without a grade stay in progress whatever their status; dropped enrollments
// are never graded, so they do not count as failures.
func classifyOutcome(enrollment models.CourseEnrollmentDetail) models.CourseOutcome {
	if enrollment.Grade == nil {
		return models.OutcomeInProgress
	}
	if isPassingGrade(*enrollment.Grade) {
		return models.OutcomePassed
	}
	return models.OutcomeFailed
}

// computeCourseStats summarises the raw enrollment collection. Empty input
// yields zeroed stats, never an error.
func computeCourseStats(enrollments []models.CourseEnrollmentDetail) models.CourseStats {
	stats := models.CourseStats{Total: len(enrollments)}
	var gradeSum float64
	var gradeCount int
	for _, e := range enrollments {
		if e.Status == models.CourseEnrollmentActive {
			stats.Active++
		}
		stats.TotalCredits += e.SubjectCredits
		if e.Grade != nil {
			gradeSum += float64(*e.Grade)
			gradeCount++
		}
	}
	if gradeCount > 0 {
		stats.AverageGrade = round1(gradeSum / float64(gradeCount))
	}
	return stats
}

// computeGradeStats summarises the legacy grade records. Grade strings are
// normalised to numbers; unparseable values contribute zero instead of
// failing the aggregation.
func computeGradeStats(grades []models.LegacyGrade, passed []models.CourseEnrollmentDetail) models.GradeStats {
	stats := models.GradeStats{TotalGraded: len(grades)}
	for _, p := range passed {
		stats.TotalCredits += p.SubjectCredits
	}
	if len(grades) == 0 {
		return stats
	}

	var sum float64
	highest := convertGradeToNumber(grades[0].GradeValue)
	lowest := highest
	for _, g := range grades {
		value := convertGradeToNumber(g.GradeValue)
		sum += value
		if value > highest {
			highest = value
		}
		if value < lowest {
			lowest = value
		}
	}
	stats.Average = round2(sum / float64(len(grades)))
	stats.Highest = round2(highest)
	stats.Lowest = round2(lowest)
	stats.GPA = stats.Average
	return stats
}

// computeStudyStats summarises the merged union view.
func computeStudyStats(merged []models.HistoryRow) models.StudyHistoryStats {
	stats := models.StudyHistoryStats{Total: len(merged)}
	var gradeSum float64
	var gradeCount int
	for _, row := range merged {
		switch row.Outcome {
		case models.OutcomePassed:
			stats.Passed++
			stats.TotalCredits += row.Enrollment.SubjectCredits
		case models.OutcomeFailed:
			stats.Failed++
		}
		if row.Source == models.HistorySourceEnrollment {
			stats.TotalAttempts++
		}
		if row.Enrollment.Grade != nil {
			gradeSum += float64(*row.Enrollment.Grade)
			gradeCount++
		}
	}
	if gradeCount > 0 {
		stats.AverageGrade = round1(gradeSum / float64(gradeCount))
	}
	return stats
}

func emptyIfNil(in []models.CourseEnrollmentDetail) []models.CourseEnrollmentDetail {
	if in == nil {
		return []models.CourseEnrollmentDetail{}
	}
	return in
}

func emptyGradesIfNil(in []models.LegacyGrade) []models.LegacyGrade {
	if in == nil {
		return []models.LegacyGrade{}
	}
	return in
}

func emptyRegistrationsIfNil(in []models.ExamRegistrationDetail) []models.ExamRegistrationDetail {
	if in == nil {
		return []models.ExamRegistrationDetail{}
	}
	return in
}
