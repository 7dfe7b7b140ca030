package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/export"
	"github.com/univern/academics-api/pkg/jobs"
	"github.com/univern/academics-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error
	MarkFinished(ctx context.Context, id, resultURL string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type reportDataSource interface {
	ListForReport(ctx context.Context, academicYear string, studyProgramID *string) ([]models.CourseEnrollmentDetail, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ReportRequest starts an asynchronous export.
type ReportRequest struct {
	Type           models.ReportType   `json:"type" validate:"required"`
	Format         models.ReportFormat `json:"format" validate:"required"`
	AcademicYear   string              `json:"academic_year" validate:"required"`
	StudyProgramID *string             `json:"study_program_id"`
}

// ReportJobResponse acknowledges job creation.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress to clients.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportServiceConfig governs result retention.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportService orchestrates asynchronous report job lifecycle management.
type ReportService struct {
	repo    reportJobStore
	queue   jobDispatcher
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ReportServiceConfig
	urlBase string
}

// NewReportService constructs the report service. urlBase is the public
// download route prefix, e.g. "/api/reports/download".
func NewReportService(repo reportJobStore, queue jobDispatcher, store *storage.LocalStorage, signer *storage.SignedURLSigner, urlBase string, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{repo: repo, queue: queue, store: store, signer: signer, urlBase: urlBase, logger: logger, cfg: cfg}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req ReportRequest, actorID string) (*ReportJobResponse, error) {
	if !isValidReportType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !isValidReportFormat(req.Format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if req.AcademicYear == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academicYear is required")
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			AcademicYear:   req.AcademicYear,
			StudyProgramID: req.StudyProgramID,
			Format:         req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "failed to enqueue job", time.Now().UTC()); markErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata, enforcing ownership for non-admin actors.
func (s *ReportService) GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	resp := &ReportStatusResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ListJobs returns the caller's recent jobs.
func (s *ReportService) ListJobs(ctx context.Context, actorID string, limit int) ([]models.ReportJob, error) {
	jobsList, err := s.repo.ListByCreator(ctx, actorID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return jobsList, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-s.cfg.ResultTTL)
				if _, err := s.repo.DeleteFinishedBefore(ctx, cutoff); err != nil {
					s.logger.Warn("report job cleanup failed", zap.Error(err))
				}
				if _, err := s.store.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
					s.logger.Warn("export file cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

func isValidReportType(t models.ReportType) bool {
	return t == models.ReportTypeEnrollments || t == models.ReportTypeGrades
}

func isValidReportFormat(f models.ReportFormat) bool {
	switch f {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
		return true
	default:
		return false
	}
}

// ReportWorker bridges queue jobs to the export pipeline.
type ReportWorker struct {
	repo        reportJobStore
	enrollments reportDataSource
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	xlsx        *export.XLSXExporter
	urlBase     string
	logger      *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, enrollments reportDataSource, store *storage.LocalStorage, signer *storage.SignedURLSigner, urlBase string, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{
		repo:        repo,
		enrollments: enrollments,
		store:       store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		xlsx:        export.NewXLSXExporter(),
		urlBase:     urlBase,
		logger:      logger,
	}
}

// Handle processes one queued report job.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateStatus(ctx, job.ID, models.ReportStatusProcessing, 10); err != nil {
		return err
	}

	payload, filename, err := w.generate(ctx, record)
	if err != nil {
		if markErr := w.repo.MarkFailed(ctx, job.ID, err.Error(), time.Now().UTC()); markErr != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	relPath, err := w.store.Save(filename, payload)
	if err != nil {
		if markErr := w.repo.MarkFailed(ctx, job.ID, "failed to persist export", time.Now().UTC()); markErr != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	token, _, err := w.signer.Generate(record.ID, relPath)
	if err != nil {
		return err
	}
	resultURL := w.urlBase + "/" + token
	if err := w.repo.MarkFinished(ctx, job.ID, resultURL, time.Now().UTC()); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

func (w *ReportWorker) generate(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	enrollments, err := w.enrollments.ListForReport(ctx, job.Params.AcademicYear, job.Params.StudyProgramID)
	if err != nil {
		return nil, "", fmt.Errorf("load report data: %w", err)
	}

	var dataset export.Dataset
	var title string
	switch job.Type {
	case models.ReportTypeEnrollments:
		title = "Course Enrollments " + job.Params.AcademicYear
		dataset = enrollmentsDataset(enrollments)
	case models.ReportTypeGrades:
		title = "Grades " + job.Params.AcademicYear
		dataset = gradesDataset(enrollments)
	default:
		return nil, "", fmt.Errorf("unsupported report type %s", job.Type)
	}

	filename := fmt.Sprintf("%s-%s.%s", job.Type, job.ID, job.Params.Format)
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err := w.csv.Render(dataset)
		return payload, filename, err
	case models.ReportFormatPDF:
		payload, err := w.pdf.Render(dataset, title)
		return payload, filename, err
	case models.ReportFormatXLSX:
		payload, err := w.xlsx.Render(dataset, "Report")
		return payload, filename, err
	default:
		return nil, "", fmt.Errorf("unsupported report format %s", job.Params.Format)
	}
}

func enrollmentsDataset(enrollments []models.CourseEnrollmentDetail) export.Dataset {
	dataset := export.Dataset{Headers: []string{"Subject Code", "Subject", "Student ID", "Year", "Term", "Status"}}
	for _, e := range enrollments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject Code": e.SubjectCode,
			"Subject":      e.SubjectName,
			"Student ID":   e.StudentID,
			"Year":         e.AcademicYear,
			"Term":         e.Term,
			"Status":       string(e.Status),
		})
	}
	return dataset
}

func gradesDataset(enrollments []models.CourseEnrollmentDetail) export.Dataset {
	dataset := export.Dataset{Headers: []string{"Subject Code", "Student ID", "Weighted Score", "Grade"}}
	for _, e := range enrollments {
		if e.Grade == nil {
			continue
		}
		weighted := ""
		if e.WeightedScore != nil {
			weighted = strconv.FormatFloat(*e.WeightedScore, 'f', 0, 64)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Subject Code":   e.SubjectCode,
			"Student ID":     e.StudentID,
			"Weighted Score": weighted,
			"Grade":          strconv.Itoa(*e.Grade),
		})
	}
	return dataset
}
