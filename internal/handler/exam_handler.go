package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/service"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/response"
)

// ExamHandler exposes exam period, sitting and registration endpoints.
type ExamHandler struct {
	exams    *service.ExamService
	students *service.StudentService
}

// NewExamHandler constructs ExamHandler.
func NewExamHandler(exams *service.ExamService, students *service.StudentService) *ExamHandler {
	return &ExamHandler{exams: exams, students: students}
}

// currentStudent resolves the caller's student profile. STUDENT-role routes
// operate on the caller's own profile, never a client-supplied ID.
func (h *ExamHandler) currentStudent(c *gin.Context) (*models.StudentDetail, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	student, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return student, true
}

// ListPeriods godoc
// @Summary List exam periods
// @Tags Exams
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exam-periods [get]
func (h *ExamHandler) ListPeriods(c *gin.Context) {
	periods, err := h.exams.ListPeriods(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// CreatePeriod godoc
// @Summary Create exam period
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.CreateExamPeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /exam-periods [post]
func (h *ExamHandler) CreatePeriod(c *gin.Context) {
	var req service.CreateExamPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	period, err := h.exams.CreatePeriod(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// ListExams godoc
// @Summary List exam sittings
// @Tags Exams
// @Produce json
// @Param subjectId query string false "Filter by subject"
// @Param periodId query string false "Filter by exam period"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exams [get]
func (h *ExamHandler) ListExams(c *gin.Context) {
	var filter models.ExamFilter
	filter.SubjectID = c.Query("subjectId")
	filter.ExamPeriodID = c.Query("periodId")
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	exams, pagination, err := h.exams.ListExams(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// GetExam godoc
// @Summary Get exam detail
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, err := h.exams.GetExam(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// CreateExam godoc
// @Summary Schedule an exam sitting
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req service.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.CreateExam(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// ListAvailable godoc
// @Summary List exams the current student can register for
// @Tags Exams
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/available [get]
func (h *ExamHandler) ListAvailable(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	exams, err := h.exams.ListAvailableExams(c.Request.Context(), student.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, nil)
}

// Register godoc
// @Summary Register the current student for an exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/{id}/register [post]
func (h *ExamHandler) Register(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	registration, err := h.exams.Register(c.Request.Context(), student.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Cancel godoc
// @Summary Cancel the current student's registration for an exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /exams/{id}/register [delete]
func (h *ExamHandler) Cancel(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	if err := h.exams.Cancel(c.Request.Context(), student.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyRegistrations godoc
// @Summary List the current student's exam registrations
// @Tags Exams
// @Produce json
// @Param active query bool false "Only active registrations"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/registrations [get]
func (h *ExamHandler) MyRegistrations(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	registrations, err := h.exams.ListRegistrations(c.Request.Context(), student.ID, c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, nil)
}

// ListRegistrations godoc
// @Summary List registrations for an exam sitting
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/{id}/registrations [get]
func (h *ExamHandler) ListRegistrations(c *gin.Context) {
	registrations, err := h.exams.ListExamRegistrations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, nil)
}

// Grade godoc
// @Summary Record an exam result
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.GradeExamRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/{id}/grades [post]
func (h *ExamHandler) Grade(c *gin.Context) {
	var req service.GradeExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.exams.GradeExam(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}
