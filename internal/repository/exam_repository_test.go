package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univern/academics-api/internal/models"
)

func TestExamRepositoryCreateRegistration(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec("INSERT INTO exam_registrations").
		WithArgs(sqlmock.AnyArg(), "st1", "ex1", string(models.ExamRegistrationRegistered), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reg := &models.ExamRegistration{StudentID: "st1", ExamID: "ex1"}
	err := repo.CreateRegistration(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, models.ExamRegistrationRegistered, reg.Status)
	assert.NotEmpty(t, reg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryCreateRegistrationDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec("INSERT INTO exam_registrations").
		WithArgs(sqlmock.AnyArg(), "st1", "ex1", string(models.ExamRegistrationRegistered), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateRegistration(context.Background(), &models.ExamRegistration{StudentID: "st1", ExamID: "ex1"})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryCancelRegistration(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec("UPDATE exam_registrations SET status").
		WithArgs("st1", "ex1", string(models.ExamRegistrationCancelled), sqlmock.AnyArg(), string(models.ExamRegistrationRegistered)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.CancelRegistration(context.Background(), "st1", "ex1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryCancelRegistrationNoActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec("UPDATE exam_registrations SET status").
		WithArgs("st1", "ex1", string(models.ExamRegistrationCancelled), sqlmock.AnyArg(), string(models.ExamRegistrationRegistered)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.CancelRegistration(context.Background(), "st1", "ex1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListAvailableExams(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "subject_id", "exam_period_id", "held_at", "max_points", "active", "created_at", "updated_at", "subject_code", "subject_name", "period_name"}).
		AddRow("ex1", "sub1", "ep1", now.Add(48*time.Hour), 100, true, now, now, "CS101", "Programming 1", "January")
	mock.ExpectQuery("SELECT e.id, e.subject_id, e.exam_period_id").
		WithArgs("st1", now, string(models.ExamRegistrationRegistered), string(models.CourseEnrollmentActive)).
		WillReturnRows(rows)

	exams, err := repo.ListAvailableExams(context.Background(), "st1", now)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "CS101", exams[0].SubjectCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryHasActiveEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectQuery("SELECT 1 FROM course_enrollments").
		WithArgs("st1", "sub1", string(models.CourseEnrollmentActive)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	enrolled, err := repo.HasActiveEnrollment(context.Background(), "st1", "sub1")
	require.NoError(t, err)
	assert.True(t, enrolled)

	mock.ExpectQuery("SELECT 1 FROM course_enrollments").
		WithArgs("st2", "sub1", string(models.CourseEnrollmentActive)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	enrolled, err = repo.HasActiveEnrollment(context.Background(), "st2", "sub1")
	require.NoError(t, err)
	assert.False(t, enrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
