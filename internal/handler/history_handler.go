package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/service"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/response"
)

// HistoryHandler exposes the aggregated academic history endpoint.
type HistoryHandler struct {
	history  *service.HistoryService
	students *service.StudentService
}

// NewHistoryHandler constructs HistoryHandler.
func NewHistoryHandler(history *service.HistoryService, students *service.StudentService) *HistoryHandler {
	return &HistoryHandler{history: history, students: students}
}

// Get godoc
// @Summary Get the aggregated academic history for a student
// @Tags History
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/history [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	studentID := c.Param("id")

	// Students may only read their own history.
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.Role == models.RoleStudent {
		own, err := h.students.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if own.ID != studentID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "history belongs to another student"))
			return
		}
	}

	history, err := h.history.GetHistory(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// GetOwn godoc
// @Summary Get the current student's academic history
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/me/history [get]
func (h *HistoryHandler) GetOwn(c *gin.Context) {
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
	history, err := h.history.GetHistory(c.Request.Context(), student.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
