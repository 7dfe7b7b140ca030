package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/service"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/response"
)

// EvaluationHandler exposes evaluation instrument endpoints, including the
// XML and PDF exchange formats.
type EvaluationHandler struct {
	evaluations    *service.EvaluationService
	students       *service.StudentService
	importMaxBytes int64
}

// NewEvaluationHandler constructs EvaluationHandler.
func NewEvaluationHandler(evaluations *service.EvaluationService, students *service.StudentService, importMaxBytes int64) *EvaluationHandler {
	if importMaxBytes <= 0 {
		importMaxBytes = 2 << 20
	}
	return &EvaluationHandler{evaluations: evaluations, students: students, importMaxBytes: importMaxBytes}
}

// List godoc
// @Summary List evaluation instruments
// @Tags Evaluations
// @Produce json
// @Param subjectId query string false "Filter by subject"
// @Param type query string false "Filter by instrument type"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	var filter models.InstrumentFilter
	filter.SubjectID = c.Query("subjectId")
	filter.Type = models.InstrumentType(c.Query("type"))
	if active := c.Query("active"); active == "true" || active == "false" {
		v := active == "true"
		filter.IsActive = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	instruments, pagination, err := h.evaluations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instruments, pagination)
}

// Get godoc
// @Summary Get evaluation instrument detail
// @Tags Evaluations
// @Produce json
// @Param id path string true "Instrument ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/{id} [get]
func (h *EvaluationHandler) Get(c *gin.Context) {
	instrument, err := h.evaluations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instrument, nil)
}

// Create godoc
// @Summary Create evaluation instrument
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body service.CreateInstrumentRequest true "Instrument payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations [post]
func (h *EvaluationHandler) Create(c *gin.Context) {
	var req service.CreateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}
	instrument, err := h.evaluations.Create(c.Request.Context(), createdBy, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instrument)
}

// Update godoc
// @Summary Update evaluation instrument
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Instrument ID"
// @Param payload body service.UpdateInstrumentRequest true "Instrument payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/{id} [put]
func (h *EvaluationHandler) Update(c *gin.Context) {
	var req service.UpdateInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instrument, err := h.evaluations.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instrument, nil)
}

// Deactivate godoc
// @Summary Deactivate evaluation instrument
// @Tags Evaluations
// @Param id path string true "Instrument ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /evaluations/{id} [delete]
func (h *EvaluationHandler) Deactivate(c *gin.Context) {
	if err := h.evaluations.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitRequest carries an optional file reference for a submission.
type SubmitRequest struct {
	FilePath *string `json:"file_path"`
}

// Submit godoc
// @Summary Submit an answer to an instrument as the current student
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Instrument ID"
// @Param payload body handler.SubmitRequest false "Submission payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/{id}/submissions [post]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	submission, err := h.evaluations.Submit(c.Request.Context(), c.Param("id"), student.ID, req.FilePath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List submissions for an instrument
// @Tags Evaluations
// @Produce json
// @Param id path string true "Instrument ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/{id}/submissions [get]
func (h *EvaluationHandler) ListSubmissions(c *gin.Context) {
	submissions, err := h.evaluations.ListSubmissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// GradeSubmission godoc
// @Summary Grade a submission
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/submissions/{submissionId}/grade [put]
func (h *EvaluationHandler) GradeSubmission(c *gin.Context) {
	var req service.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.evaluations.GradeSubmission(c.Request.Context(), c.Param("submissionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ImportXML godoc
// @Summary Import an instrument document
// @Tags Evaluations
// @Accept xml
// @Produce json
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /evaluations/import [post]
func (h *EvaluationHandler) ImportXML(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.importMaxBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read request body"))
		return
	}
	if int64(len(payload)) > h.importMaxBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document exceeds the import size limit"))
		return
	}

	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}
	report, err := h.evaluations.ImportXML(c.Request.Context(), createdBy, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// ExportXML godoc
// @Summary Export an instrument and its submissions as XML
// @Tags Evaluations
// @Produce xml
// @Param id path string true "Instrument ID"
// @Success 200 {string} string "XML document"
// @Security BearerAuth
// @Router /evaluations/{id}/export/xml [get]
func (h *EvaluationHandler) ExportXML(c *gin.Context) {
	payload, err := h.evaluations.ExportXML(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=instrument-%s.xml", c.Param("id")))
	c.Data(http.StatusOK, "application/xml", payload)
}

// ExportPDF godoc
// @Summary Export an instrument and its submissions as PDF
// @Tags Evaluations
// @Produce application/pdf
// @Param id path string true "Instrument ID"
// @Success 200 {string} string "PDF document"
// @Security BearerAuth
// @Router /evaluations/{id}/export/pdf [get]
func (h *EvaluationHandler) ExportPDF(c *gin.Context) {
	payload, err := h.evaluations.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=instrument-%s.pdf", c.Param("id")))
	c.Data(http.StatusOK, "application/pdf", payload)
}
