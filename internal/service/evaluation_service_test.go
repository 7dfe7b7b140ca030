package service

import (
	"context"
	"database/sql"
	"encoding/xml"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockEvaluationRepo struct {
	instruments map[string]models.EvaluationInstrument
	submissions map[string]models.EvaluationSubmission
	created     []*models.EvaluationSubmission
}

func (m *mockEvaluationRepo) ListInstruments(ctx context.Context, filter models.InstrumentFilter) ([]models.EvaluationInstrument, int, error) {
	return nil, 0, nil
}

func (m *mockEvaluationRepo) FindInstrument(ctx context.Context, id string) (*models.EvaluationInstrument, error) {
	if i, ok := m.instruments[id]; ok {
		return &i, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEvaluationRepo) CreateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error {
	if instrument.ID == "" {
		instrument.ID = "new-instrument"
	}
	if m.instruments == nil {
		m.instruments = make(map[string]models.EvaluationInstrument)
	}
	m.instruments[instrument.ID] = *instrument
	return nil
}

func (m *mockEvaluationRepo) UpdateInstrument(ctx context.Context, instrument *models.EvaluationInstrument) error {
	m.instruments[instrument.ID] = *instrument
	return nil
}

func (m *mockEvaluationRepo) DeactivateInstrument(ctx context.Context, id string) error {
	if i, ok := m.instruments[id]; ok {
		i.IsActive = false
		m.instruments[id] = i
	}
	return nil
}

func (m *mockEvaluationRepo) ListSubmissions(ctx context.Context, instrumentID string) ([]models.EvaluationSubmission, error) {
	var list []models.EvaluationSubmission
	for _, s := range m.submissions {
		if s.InstrumentID == instrumentID {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockEvaluationRepo) FindSubmission(ctx context.Context, id string) (*models.EvaluationSubmission, error) {
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEvaluationRepo) FindSubmissionByStudent(ctx context.Context, instrumentID, studentID string) (*models.EvaluationSubmission, error) {
	for _, s := range m.submissions {
		if s.InstrumentID == instrumentID && s.StudentID == studentID {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEvaluationRepo) CreateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error {
	if submission.ID == "" {
		submission.ID = "sub-" + submission.StudentID
	}
	if m.submissions == nil {
		m.submissions = make(map[string]models.EvaluationSubmission)
	}
	m.submissions[submission.ID] = *submission
	m.created = append(m.created, submission)
	return nil
}

func (m *mockEvaluationRepo) UpdateSubmission(ctx context.Context, submission *models.EvaluationSubmission) error {
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *mockEvaluationRepo) HasSubmission(ctx context.Context, instrumentID, studentID string) (bool, error) {
	for _, s := range m.submissions {
		if s.InstrumentID == instrumentID && s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

type mockEvaluationSubjects struct{}

func (m *mockEvaluationSubjects) FindSubject(ctx context.Context, id string) (*models.Subject, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Subject{ID: id, Code: "CS101", Name: "Programming", Credits: 6}, nil
}

func (m *mockEvaluationSubjects) FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error) {
	if code != "CS101" {
		return nil, sql.ErrNoRows
	}
	return &models.Subject{ID: "sub1", Code: "CS101", Name: "Programming", Credits: 6}, nil
}

type mockEvaluationStudents struct {
	byIndex map[string]*models.StudentDetail
}

func (m *mockEvaluationStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	for _, s := range m.byIndex {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEvaluationStudents) FindByIndexNumber(ctx context.Context, indexNumber string) (*models.StudentDetail, error) {
	if s, ok := m.byIndex[indexNumber]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func newEvaluationService(repo *mockEvaluationRepo) *EvaluationService {
	students := &mockEvaluationStudents{byIndex: map[string]*models.StudentDetail{
		"2021/0042": {StudentProfile: models.StudentProfile{ID: "s1", IndexNumber: "2021/0042"}},
	}}
	return NewEvaluationService(repo, &mockEvaluationSubjects{}, students, nil, validator.New(), zap.NewNop())
}

const instrumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<evaluationInstrument>
  <title>Midterm Quiz</title>
  <description>Chapters 1-5</description>
  <type>QUIZ</type>
  <subjectCode>CS101</subjectCode>
  <maxPoints>50</maxPoints>
  <dueDate>2025-06-01T10:00:00Z</dueDate>
  <isActive>true</isActive>
  <submissions>
    <submission>
      <studentIndex>2021/0042</studentIndex>
      <points>42</points>
      <grade>9</grade>
      <submittedAt>2025-05-20T09:00:00Z</submittedAt>
    </submission>
    <submission>
      <studentIndex>1999/9999</studentIndex>
      <points>30</points>
    </submission>
  </submissions>
</evaluationInstrument>`

func TestEvaluationServiceImportXML(t *testing.T) {
	repo := &mockEvaluationRepo{}
	svc := newEvaluationService(repo)

	report, err := svc.ImportXML(context.Background(), "prof-1", []byte(instrumentXML))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImportedCount)
	assert.Equal(t, []string{"1999/9999"}, report.SkippedStudentRefs)
	assert.Equal(t, models.InstrumentQuiz, report.Instrument.Type)
	require.NotNil(t, report.Instrument.DueDate)
	assert.Equal(t, 50, report.Instrument.MaxPoints)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "s1", repo.created[0].StudentID)
	require.NotNil(t, repo.created[0].Points)
	assert.Equal(t, 42.0, *repo.created[0].Points)
}

func TestEvaluationServiceCreateDefaults(t *testing.T) {
	repo := &mockEvaluationRepo{}
	svc := newEvaluationService(repo)

	// Title and subject are the whole minimum payload.
	instrument, err := svc.Create(context.Background(), "prof-1", CreateInstrumentRequest{
		SubjectID: "sub1",
		Title:     "Final Exam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentExam, instrument.Type)
	assert.Equal(t, 100, instrument.MaxPoints)
	assert.True(t, instrument.IsActive)
}

func TestEvaluationServiceImportXMLDefaults(t *testing.T) {
	repo := &mockEvaluationRepo{}
	svc := newEvaluationService(repo)

	// No type and no isActive element: defaults apply, not zero values.
	payload := []byte(`<evaluationInstrument><title>Colloquium</title><subjectCode>CS101</subjectCode></evaluationInstrument>`)
	report, err := svc.ImportXML(context.Background(), "prof-1", payload)
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentExam, report.Instrument.Type)
	assert.Equal(t, 100, report.Instrument.MaxPoints)
	assert.True(t, report.Instrument.IsActive)
}

func TestEvaluationServiceImportXMLUnknownSubject(t *testing.T) {
	svc := newEvaluationService(&mockEvaluationRepo{})

	payload := []byte(`<evaluationInstrument><title>T</title><type>QUIZ</type><subjectCode>NOPE</subjectCode><maxPoints>10</maxPoints></evaluationInstrument>`)
	_, err := svc.ImportXML(context.Background(), "", payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceImportXMLUnknownType(t *testing.T) {
	svc := newEvaluationService(&mockEvaluationRepo{})

	payload := []byte(`<evaluationInstrument><title>T</title><type>ESSAY</type><subjectCode>CS101</subjectCode></evaluationInstrument>`)
	_, err := svc.ImportXML(context.Background(), "", payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceExportXMLRoundTrip(t *testing.T) {
	repo := &mockEvaluationRepo{}
	svc := newEvaluationService(repo)

	report, err := svc.ImportXML(context.Background(), "prof-1", []byte(instrumentXML))
	require.NoError(t, err)

	payload, err := svc.ExportXML(context.Background(), report.Instrument.ID)
	require.NoError(t, err)

	var doc models.InstrumentDocument
	require.NoError(t, xml.Unmarshal(payload, &doc))
	assert.Equal(t, "Midterm Quiz", doc.Title)
	assert.Equal(t, "CS101", doc.SubjectCode)
	assert.Equal(t, models.InstrumentQuiz, doc.Type)
	require.Len(t, doc.Submissions, 1)
	assert.Equal(t, "2021/0042", doc.Submissions[0].StudentIndex)
	assert.Equal(t, "2025-05-20T09:00:00Z", doc.Submissions[0].SubmittedAt)
}

func TestEvaluationServiceSubmitOnce(t *testing.T) {
	repo := &mockEvaluationRepo{instruments: map[string]models.EvaluationInstrument{
		"i1": {ID: "i1", SubjectID: "sub1", Type: models.InstrumentProject, MaxPoints: 100, IsActive: true},
	}}
	svc := newEvaluationService(repo)

	submission, err := svc.Submit(context.Background(), "i1", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, submission.State())

	_, err = svc.Submit(context.Background(), "i1", "s1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceSubmitAfterDeadline(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	repo := &mockEvaluationRepo{instruments: map[string]models.EvaluationInstrument{
		"i1": {ID: "i1", SubjectID: "sub1", Type: models.InstrumentProject, MaxPoints: 100, IsActive: true, DueDate: &past},
	}}
	svc := newEvaluationService(repo)

	_, err := svc.Submit(context.Background(), "i1", "s1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceGradeSubmission(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockEvaluationRepo{
		instruments: map[string]models.EvaluationInstrument{
			"i1": {ID: "i1", SubjectID: "sub1", Type: models.InstrumentQuiz, MaxPoints: 50, IsActive: true},
		},
		submissions: map[string]models.EvaluationSubmission{
			"sub-s1": {ID: "sub-s1", InstrumentID: "i1", StudentID: "s1", SubmittedAt: &now},
		},
	}
	svc := newEvaluationService(repo)

	graded, err := svc.GradeSubmission(context.Background(), "sub-s1", GradeSubmissionRequest{Points: 45, Grade: "10"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionGraded, graded.State())

	_, err = svc.GradeSubmission(context.Background(), "sub-s1", GradeSubmissionRequest{Points: 60, Grade: "10"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
