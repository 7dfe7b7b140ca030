package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/pkg/jobs"
	"github.com/univern/academics-api/pkg/storage"
)

type reportStoreStub struct {
	jobs map[string]*models.ReportJob
}

func newReportStoreStub() *reportStoreStub {
	return &reportStoreStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportStoreStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	r.jobs[job.ID] = job
	return nil
}

func (r *reportStoreStub) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportStoreStub) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	job.Progress = progress
	return nil
}

func (r *reportStoreStub) MarkFinished(ctx context.Context, id, resultURL string, finishedAt time.Time) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ReportStatusFinished
	job.Progress = 100
	job.ResultURL = &resultURL
	job.FinishedAt = &finishedAt
	return nil
}

func (r *reportStoreStub) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ReportStatusFailed
	job.ErrorMessage = &message
	job.FinishedAt = &finishedAt
	return nil
}

func (r *reportStoreStub) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.CreatedBy == createdBy {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportStoreStub) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type enrollmentSourceStub struct {
	rows []models.CourseEnrollmentDetail
	err  error
}

func (s enrollmentSourceStub) ListForReport(ctx context.Context, academicYear string, studyProgramID *string) ([]models.CourseEnrollmentDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func reportFixtureRows() []models.CourseEnrollmentDetail {
	return []models.CourseEnrollmentDetail{
		{
			CourseEnrollment: models.CourseEnrollment{
				ID:            "ce-1",
				StudentID:     "s1",
				AcademicYear:  "2024/2025",
				Term:          "Winter 2024/2025",
				WeightedScore: f64(81),
				Grade:         intp(9),
				Status:        models.CourseEnrollmentCompleted,
			},
			SubjectCode: "CS101",
			SubjectName: "Programming 1",
		},
		{
			CourseEnrollment: models.CourseEnrollment{
				ID:           "ce-2",
				StudentID:    "s2",
				AcademicYear: "2024/2025",
				Term:         "Winter 2024/2025",
				Status:       models.CourseEnrollmentActive,
			},
			SubjectCode: "CS102",
			SubjectName: "Discrete Mathematics",
		},
	}
}

func newReportFixture(t *testing.T) (*ReportService, *ReportWorker, *reportStoreStub, *dispatcherStub) {
	t.Helper()
	repo := newReportStoreStub()
	queue := &dispatcherStub{}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-test-secret", time.Hour)
	urlBase := "/api/reports/download"

	svc := NewReportService(repo, queue, store, signer, urlBase, zap.NewNop(), ReportServiceConfig{ResultTTL: time.Hour})
	worker := NewReportWorker(repo, enrollmentSourceStub{rows: reportFixtureRows()}, store, signer, urlBase, zap.NewNop())
	return svc, worker, repo, queue
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, _, repo, queue := newReportFixture(t)

	resp, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:         models.ReportTypeEnrollments,
		Format:       models.ReportFormatCSV,
		AcademicYear: "2024/2025",
	}, "admin-1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)
	assert.Contains(t, repo.jobs, resp.ID)
}

func TestReportServiceCreateJobRejectsUnknownFormat(t *testing.T) {
	svc, _, _, queue := newReportFixture(t)

	_, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:         models.ReportTypeGrades,
		Format:       models.ReportFormat("docx"),
		AcademicYear: "2024/2025",
	}, "admin-1")
	require.Error(t, err)
	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateJobMarksFailedWhenEnqueueFails(t *testing.T) {
	svc, _, repo, queue := newReportFixture(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:         models.ReportTypeGrades,
		Format:       models.ReportFormatCSV,
		AcademicYear: "2024/2025",
	}, "admin-1")
	require.Error(t, err)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatusOwnership(t *testing.T) {
	svc, _, repo, _ := newReportFixture(t)
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeGrades,
		Status:    models.ReportStatusProcessing,
		Progress:  50,
		CreatedBy: "prof-1",
	}

	resp, err := svc.GetStatus(context.Background(), "job-1", "prof-1", models.RoleProfessor)
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Progress)

	_, err = svc.GetStatus(context.Background(), "job-1", "prof-2", models.RoleProfessor)
	require.Error(t, err)

	// Admins can inspect anyone's jobs.
	_, err = svc.GetStatus(context.Background(), "job-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
}

func TestReportWorkerProducesDownloadableFile(t *testing.T) {
	svc, worker, repo, queue := newReportFixture(t)

	resp, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:         models.ReportTypeEnrollments,
		Format:       models.ReportFormatCSV,
		AcademicYear: "2024/2025",
	}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, worker.Handle(context.Background(), queue.jobs[0]))

	job := repo.jobs[resp.ID]
	require.Equal(t, models.ReportStatusFinished, job.Status)
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)

	token := strings.TrimPrefix(*job.ResultURL, "/api/reports/download/")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Subject Code")
	assert.Contains(t, string(content), "CS101")
	assert.Equal(t, models.ReportFormatCSV, download.Format)
}

func TestReportWorkerMarksFailedOnDataError(t *testing.T) {
	_, _, repo, _ := newReportFixture(t)
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeGrades,
		Params:    models.ReportJobParams{AcademicYear: "2024/2025", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusQueued,
		CreatedBy: "admin-1",
	}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-test-secret", time.Hour)
	worker := NewReportWorker(repo, enrollmentSourceStub{err: errors.New("db down")}, store, signer, "/api/reports/download", zap.NewNop())

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
}

func TestReportServiceResolveDownloadRejectsForeignToken(t *testing.T) {
	svc, worker, repo, queue := newReportFixture(t)

	resp, err := svc.CreateJob(context.Background(), ReportRequest{
		Type:         models.ReportTypeGrades,
		Format:       models.ReportFormatCSV,
		AcademicYear: "2024/2025",
	}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, worker.Handle(context.Background(), queue.jobs[0]))

	otherSigner := storage.NewSignedURLSigner("another-secret", time.Hour)
	job := repo.jobs[resp.ID]
	require.NotNil(t, job.ResultURL)
	forged, _, err := otherSigner.Generate(job.ID, "grades-"+job.ID+".csv")
	require.NoError(t, err)

	_, err = svc.ResolveDownload(context.Background(), forged)
	require.Error(t, err)
}
