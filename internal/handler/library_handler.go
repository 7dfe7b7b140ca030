package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/service"
	appErrors "github.com/univern/academics-api/pkg/errors"
	"github.com/univern/academics-api/pkg/response"
)

// LibraryHandler exposes book inventory and loan endpoints.
type LibraryHandler struct {
	library  *service.LibraryService
	students *service.StudentService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library *service.LibraryService, students *service.StudentService) *LibraryHandler {
	return &LibraryHandler{library: library, students: students}
}

// ListBooks godoc
// @Summary List library books
// @Tags Library
// @Produce json
// @Param search query string false "Search by title, author or ISBN"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /library/books [get]
func (h *LibraryHandler) ListBooks(c *gin.Context) {
	var filter models.BookFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	books, pagination, err := h.library.ListBooks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// GetBook godoc
// @Summary Get book detail
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /library/books/{id} [get]
func (h *LibraryHandler) GetBook(c *gin.Context) {
	book, err := h.library.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// CreateBook godoc
// @Summary Add a book to the inventory
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.BookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /library/books [post]
func (h *LibraryHandler) CreateBook(c *gin.Context) {
	var req service.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.CreateBook(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// UpdateBook godoc
// @Summary Update a book
// @Tags Library
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.BookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /library/books/{id} [put]
func (h *LibraryHandler) UpdateBook(c *gin.Context) {
	var req service.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.UpdateBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Borrow godoc
// @Summary Borrow a book as the current student
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /library/books/{id}/borrow [post]
func (h *LibraryHandler) Borrow(c *gin.Context) {
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
	loan, err := h.library.BorrowBook(c.Request.Context(), c.Param("id"), student.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Return godoc
// @Summary Return a borrowed book
// @Tags Library
// @Param loanId path string true "Loan ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /library/loans/{loanId}/return [post]
func (h *LibraryHandler) Return(c *gin.Context) {
	if err := h.library.ReturnBook(c.Request.Context(), c.Param("loanId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyLoans godoc
// @Summary List the current student's loans
// @Tags Library
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /library/loans [get]
func (h *LibraryHandler) MyLoans(c *gin.Context) {
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
	loans, err := h.library.ListLoans(c.Request.Context(), student.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}

// StudentLoans godoc
// @Summary List a student's loans
// @Tags Library
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /library/students/{id}/loans [get]
func (h *LibraryHandler) StudentLoans(c *gin.Context) {
	loans, err := h.library.ListLoans(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}
