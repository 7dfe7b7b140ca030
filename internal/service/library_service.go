package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/repository"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type libraryRepository interface {
	ListBooks(ctx context.Context, filter models.BookFilter) ([]models.LibraryBook, int, error)
	FindBook(ctx context.Context, id string) (*models.LibraryBook, error)
	CreateBook(ctx context.Context, book *models.LibraryBook) error
	UpdateBook(ctx context.Context, book *models.LibraryBook) error
	BorrowBook(ctx context.Context, loan *models.BookLoan) error
	ReturnBook(ctx context.Context, loanID string, returnedAt time.Time) error
	FindLoan(ctx context.Context, id string) (*models.BookLoan, error)
	ListLoansByStudent(ctx context.Context, studentID string) ([]models.BookLoanDetail, error)
	CountOpenLoans(ctx context.Context, studentID string) (int, error)
}

type libraryStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// BookRequest carries book create/update fields.
type BookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	ISBN        string `json:"isbn" validate:"required"`
	TotalCopies int    `json:"total_copies" validate:"required,min=1"`
}

// LibraryConfig bounds a student's concurrent loans and loan duration.
type LibraryConfig struct {
	LoanDays int
	MaxLoans int
}

// LibraryService manages the book inventory and student loans.
type LibraryService struct {
	library   libraryRepository
	students  libraryStudentRepository
	cfg       LibraryConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLibraryService constructs a LibraryService.
func NewLibraryService(library libraryRepository, students libraryStudentRepository, cfg LibraryConfig, validate *validator.Validate, logger *zap.Logger) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.LoanDays <= 0 {
		cfg.LoanDays = 30
	}
	if cfg.MaxLoans <= 0 {
		cfg.MaxLoans = 5
	}
	return &LibraryService{
		library:   library,
		students:  students,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListBooks returns books matching the filter.
func (s *LibraryService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.LibraryBook, *models.Pagination, error) {
	books, total, err := s.library.ListBooks(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return books, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetBook returns one book.
func (s *LibraryService) GetBook(ctx context.Context, id string) (*models.LibraryBook, error) {
	book, err := s.library.FindBook(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// CreateBook adds a title to the inventory.
func (s *LibraryService) CreateBook(ctx context.Context, req BookRequest) (*models.LibraryBook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book := &models.LibraryBook{
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
	}
	if err := s.library.CreateBook(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	return book, nil
}

// UpdateBook modifies a book, keeping availability consistent with the new
// total copy count.
func (s *LibraryService) UpdateBook(ctx context.Context, id string, req BookRequest) (*models.LibraryBook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	onLoan := book.TotalCopies - book.AvailableCopies
	if req.TotalCopies < onLoan {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total copies cannot be lower than copies currently on loan")
	}

	book.Title = req.Title
	book.Author = req.Author
	book.ISBN = req.ISBN
	book.TotalCopies = req.TotalCopies
	book.AvailableCopies = req.TotalCopies - onLoan
	if err := s.library.UpdateBook(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	return book, nil
}

// BorrowBook lends one copy to a student.
func (s *LibraryService) BorrowBook(ctx context.Context, bookID, studentID string) (*models.BookLoan, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	open, err := s.library.CountOpenLoans(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open loans")
	}
	if open >= s.cfg.MaxLoans {
		return nil, appErrors.Clone(appErrors.ErrConflict, "loan limit reached")
	}

	now := s.now()
	loan := &models.BookLoan{
		BookID:    bookID,
		StudentID: studentID,
		LoanedAt:  now,
		DueAt:     now.AddDate(0, 0, s.cfg.LoanDays),
	}
	if err := s.library.BorrowBook(ctx, loan); err != nil {
		if errors.Is(err, repository.ErrNoAvailableCopies) {
			return nil, appErrors.Clone(appErrors.ErrNoCopiesAvailable, "no copies available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to borrow book")
	}
	s.logger.Info("book borrowed",
		zap.String("book_id", bookID),
		zap.String("student_id", studentID),
		zap.Time("due_at", loan.DueAt))
	return loan, nil
}

// ReturnBook closes a loan and restores availability.
func (s *LibraryService) ReturnBook(ctx context.Context, loanID string) error {
	loan, err := s.library.FindLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	if loan.ReturnedAt != nil {
		return appErrors.Clone(appErrors.ErrConflict, "loan is already returned")
	}
	if err := s.library.ReturnBook(ctx, loanID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "loan is already returned")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return book")
	}
	return nil
}

// ListLoans returns a student's loans newest first.
func (s *LibraryService) ListLoans(ctx context.Context, studentID string) ([]models.BookLoanDetail, error) {
	loans, err := s.library.ListLoansByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}
	if loans == nil {
		loans = []models.BookLoanDetail{}
	}
	return loans, nil
}
