package service

import (
	"context"
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/export"
)

type evaluationRepository interface {
	ListInstruments(ctx context.Context, filter models.InstrumentFilter) ([]models.EvaluationInstrument, int, error)
	FindInstrument(ctx context.Context, id string) (*models.EvaluationInstrument, error)
	CreateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error
	UpdateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error
	DeactivateInstrument(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, instrumentID string) ([]models.EvaluationSubmission, error)
	FindSubmission(ctx context.Context, id string) (*models.EvaluationSubmission, error)
	FindSubmissionByStudent(ctx context.Context, instrumentID, studentID string) (*models.EvaluationSubmission, error)
	CreateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error
	UpdateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error
	HasSubmission(ctx context.Context, instrumentID, studentID string) (bool, error)
}

type evaluationSubjectRepository interface {
	FindSubject(ctx context.Context, id string) (*models.Subject, error)
	FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error)
}

type evaluationStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByIndexNumber(ctx context.Context, indexNumber string) (*models.StudentDetail, error)
}

// CreateInstrumentRequest defines a new evaluation instrument. Only subject
// and title are mandatory; type defaults to EXAM and maxPoints to 100.
type CreateInstrumentRequest struct {
	SubjectID   string                `json:"subject_id" validate:"required"`
	Title       string                `json:"title" validate:"required"`
	Description string                `json:"description"`
	Type        models.InstrumentType `json:"type"`
	MaxPoints   int                   `json:"max_points" validate:"min=0,max=1000"`
	DueDate     *time.Time            `json:"due_date"`
}

// UpdateInstrumentRequest carries mutable instrument fields.
type UpdateInstrumentRequest struct {
	Title       string                `json:"title" validate:"required"`
	Description string                `json:"description"`
	Type        models.InstrumentType `json:"type" validate:"required"`
	MaxPoints   int                   `json:"max_points" validate:"min=1,max=1000"`
	DueDate     *time.Time            `json:"due_date"`
	IsActive    *bool                 `json:"is_active"`
}

// GradeSubmissionRequest records a grade for a submission.
type GradeSubmissionRequest struct {
	Points float64 `json:"points" validate:"min=0"`
	Grade  string  `json:"grade" validate:"required"`
}

// ImportReport summarises an XML import run.
type ImportReport struct {
	Instrument         *models.EvaluationInstrument `json:"instrument"`
	ImportedCount      int                          `json:"imported_count"`
	SkippedStudentRefs []string                     `json:"skipped_student_refs,omitempty"`
}

// EvaluationService manages evaluation instruments, student submissions and
// the XML/PDF exchange formats.
type EvaluationService struct {
	evaluations evaluationRepository
	subjects    evaluationSubjectRepository
	students    evaluationStudentRepository
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(evaluations evaluationRepository, subjects evaluationSubjectRepository, students evaluationStudentRepository, pdf *export.PDFExporter, validate *validator.Validate, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &EvaluationService{evaluations: evaluations, subjects: subjects, students: students, pdf: pdf, validator: validate, logger: logger}
}

// List returns instruments matching the filter.
func (s *EvaluationService) List(ctx context.Context, filter models.InstrumentFilter) ([]models.EvaluationInstrument, *models.Pagination, error) {
	if filter.Type != "" && !models.ValidInstrumentType(filter.Type) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument type")
	}
	instruments, total, err := s.evaluations.ListInstruments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instruments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return instruments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one instrument by ID.
func (s *EvaluationService) Get(ctx context.Context, id string) (*models.EvaluationInstrument, error) {
	instrument, err := s.evaluations.FindInstrument(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instrument")
	}
	return instrument, nil
}

// Create adds a new evaluation instrument for a subject.
func (s *EvaluationService) Create(ctx context.Context, createdBy string, req CreateInstrumentRequest) (*models.EvaluationInstrument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instrument payload")
	}
	if req.Type == "" {
		req.Type = models.InstrumentExam
	}
	if !models.ValidInstrumentType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument type")
	}
	if req.MaxPoints == 0 {
		req.MaxPoints = 100
	}
	if _, err := s.subjects.FindSubject(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	instrument := &models.EvaluationInstrument{
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		MaxPoints:   req.MaxPoints,
		DueDate:     req.DueDate,
		IsActive:    true,
	}
	if createdBy != "" {
		instrument.CreatedBy = &createdBy
	}
	if err := s.evaluations.CreateInstrument(ctx, instrument); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instrument")
	}
	return instrument, nil
}

// Update modifies an instrument.
func (s *EvaluationService) Update(ctx context.Context, id string, req UpdateInstrumentRequest) (*models.EvaluationInstrument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instrument payload")
	}
	if !models.ValidInstrumentType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument type")
	}

	instrument, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	instrument.Title = req.Title
	instrument.Description = req.Description
	instrument.Type = req.Type
	instrument.MaxPoints = req.MaxPoints
	instrument.DueDate = req.DueDate
	if req.IsActive != nil {
		instrument.IsActive = *req.IsActive
	}
	if err := s.evaluations.UpdateInstrument(ctx, instrument); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instrument")
	}
	return instrument, nil
}

// Deactivate marks an instrument inactive.
func (s *EvaluationService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.evaluations.DeactivateInstrument(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate instrument")
	}
	return nil
}

// Submit records a student submission to an active instrument. One
// submission per student and instrument.
func (s *EvaluationService) Submit(ctx context.Context, instrumentID, studentID string, filePath *string) (*models.EvaluationSubmission, error) {
	instrument, err := s.Get(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	if !instrument.IsActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "instrument is not active")
	}
	if instrument.DueDate != nil && time.Now().UTC().After(*instrument.DueDate) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission deadline has passed")
	}

	exists, err := s.evaluations.HasSubmission(ctx, instrumentID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission already exists for this instrument")
	}

	now := time.Now().UTC()
	submission := &models.EvaluationSubmission{
		InstrumentID: instrumentID,
		StudentID:    studentID,
		FilePath:     filePath,
		SubmittedAt:  &now,
	}
	if err := s.evaluations.CreateSubmission(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// GradeSubmission records a grade for a submitted answer.
func (s *EvaluationService) GradeSubmission(ctx context.Context, submissionID string, req GradeSubmissionRequest) (*models.EvaluationSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.evaluations.FindSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if submission.SubmittedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission has not been handed in")
	}

	instrument, err := s.Get(ctx, submission.InstrumentID)
	if err != nil {
		return nil, err
	}
	if req.Points > float64(instrument.MaxPoints) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "points exceed the instrument maximum")
	}

	now := time.Now().UTC()
	submission.Points = &req.Points
	submission.Grade = &req.Grade
	submission.GradedAt = &now
	if err := s.evaluations.UpdateSubmission(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}
	return submission, nil
}

// ListSubmissions returns all submissions for an instrument.
func (s *EvaluationService) ListSubmissions(ctx context.Context, instrumentID string) ([]models.EvaluationSubmission, error) {
	if _, err := s.Get(ctx, instrumentID); err != nil {
		return nil, err
	}
	submissions, err := s.evaluations.ListSubmissions(ctx, instrumentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// ImportXML parses an instrument document and persists the instrument plus
// any submissions whose student index resolves. Unknown indexes are skipped
// and reported, not fatal.
func (s *EvaluationService) ImportXML(ctx context.Context, createdBy string, payload []byte) (*ImportReport, error) {
	var doc models.InstrumentDocument
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed instrument document")
	}
	if doc.Title == "" || doc.SubjectCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and subjectCode are required")
	}
	if doc.Type == "" {
		doc.Type = models.InstrumentExam
	}
	if !models.ValidInstrumentType(doc.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument type")
	}

	subject, err := s.subjects.FindSubjectByCode(ctx, doc.SubjectCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", doc.SubjectCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	maxPoints := doc.MaxPoints
	if maxPoints <= 0 {
		maxPoints = 100
	}
	// A document without an isActive element imports as active.
	active := true
	if doc.IsActive != nil {
		active = *doc.IsActive
	}
	instrument := &models.EvaluationInstrument{
		SubjectID:   subject.ID,
		Title:       doc.Title,
		Description: doc.Description,
		Type:        doc.Type,
		MaxPoints:   maxPoints,
		IsActive:    active,
	}
	if createdBy != "" {
		instrument.CreatedBy = &createdBy
	}
	if doc.DueDate != "" {
		due, err := time.Parse(time.RFC3339, doc.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dueDate must be RFC3339")
		}
		instrument.DueDate = &due
	}
	if err := s.evaluations.CreateInstrument(ctx, instrument); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instrument")
	}

	report := &ImportReport{Instrument: instrument}
	for _, sub := range doc.Submissions {
		student, err := s.students.FindByIndexNumber(ctx, sub.StudentIndex)
		if err != nil {
			report.SkippedStudentRefs = append(report.SkippedStudentRefs, sub.StudentIndex)
			s.logger.Warn("skipping submission for unknown student index",
				zap.String("index_number", sub.StudentIndex))
			continue
		}

		submission := &models.EvaluationSubmission{
			InstrumentID: instrument.ID,
			StudentID:    student.ID,
			Points:       sub.Points,
		}
		if sub.Grade != "" {
			grade := sub.Grade
			submission.Grade = &grade
		}
		if sub.SubmittedAt != "" {
			if ts, err := time.Parse(time.RFC3339, sub.SubmittedAt); err == nil {
				submission.SubmittedAt = &ts
			}
		}
		if sub.GradedAt != "" {
			if ts, err := time.Parse(time.RFC3339, sub.GradedAt); err == nil {
				submission.GradedAt = &ts
			}
		}
		if err := s.evaluations.CreateSubmission(ctx, submission); err != nil {
			report.SkippedStudentRefs = append(report.SkippedStudentRefs, sub.StudentIndex)
			s.logger.Warn("failed to import submission", zap.String("index_number", sub.StudentIndex), zap.Error(err))
			continue
		}
		report.ImportedCount++
	}
	return report, nil
}

// ExportXML serialises an instrument and its submissions into the exchange
// document.
func (s *EvaluationService) ExportXML(ctx context.Context, instrumentID string) ([]byte, error) {
	doc, err := s.buildDocument(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	payload, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to marshal instrument document")
	}
	return append([]byte(xml.Header), payload...), nil
}

// ExportPDF renders the instrument and its submissions as a tabular PDF.
func (s *EvaluationService) ExportPDF(ctx context.Context, instrumentID string) ([]byte, error) {
	doc, err := s.buildDocument(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: []string{"Student", "Points", "Grade", "Submitted", "Graded"}}
	for _, sub := range doc.Submissions {
		points := ""
		if sub.Points != nil {
			points = fmt.Sprintf("%.1f", *sub.Points)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":   sub.StudentIndex,
			"Points":    points,
			"Grade":     sub.Grade,
			"Submitted": sub.SubmittedAt,
			"Graded":    sub.GradedAt,
		})
	}

	title := fmt.Sprintf("%s (%s, %s)", doc.Title, doc.Type, doc.SubjectCode)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

func (s *EvaluationService) buildDocument(ctx context.Context, instrumentID string) (*models.InstrumentDocument, error) {
	instrument, err := s.Get(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	subject, err := s.subjects.FindSubject(ctx, instrument.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	submissions, err := s.evaluations.ListSubmissions(ctx, instrumentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	doc := &models.InstrumentDocument{
		Title:       instrument.Title,
		Description: instrument.Description,
		Type:        instrument.Type,
		SubjectCode: subject.Code,
		MaxPoints:   instrument.MaxPoints,
		IsActive:    &instrument.IsActive,
	}
	if instrument.DueDate != nil {
		doc.DueDate = instrument.DueDate.UTC().Format(time.RFC3339)
	}

	for _, sub := range submissions {
		entry := models.SubmissionDocument{Points: sub.Points}
		student, err := s.students.FindByID(ctx, sub.StudentID)
		if err != nil {
			s.logger.Warn("failed to resolve student for export", zap.String("student_id", sub.StudentID), zap.Error(err))
			entry.StudentIndex = sub.StudentID
		} else {
			entry.StudentIndex = student.IndexNumber
		}
		if sub.Grade != nil {
			entry.Grade = *sub.Grade
		}
		if sub.SubmittedAt != nil {
			entry.SubmittedAt = sub.SubmittedAt.UTC().Format(time.RFC3339)
		}
		if sub.GradedAt != nil {
			entry.GradedAt = sub.GradedAt.UTC().Format(time.RFC3339)
		}
		doc.Submissions = append(doc.Submissions, entry)
	}
	return doc, nil
}
