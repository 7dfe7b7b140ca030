package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/repository"
	appErrors "github.com/univern/academics-api/pkg/errors"
)

type mockLibraryRepo struct {
	books     map[string]models.LibraryBook
	loans     map[string]models.BookLoan
	openLoans int
	borrowed  *models.BookLoan
	returned  []string
}

func (m *mockLibraryRepo) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.LibraryBook, int, error) {
	return nil, 0, nil
}

func (m *mockLibraryRepo) FindBook(ctx context.Context, id string) (*models.LibraryBook, error) {
	if b, ok := m.books[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLibraryRepo) CreateBook(ctx context.Context, book *models.LibraryBook) error {
	if book.ID == "" {
		book.ID = "new-book"
	}
	if m.books == nil {
		m.books = make(map[string]models.LibraryBook)
	}
	m.books[book.ID] = *book
	return nil
}

func (m *mockLibraryRepo) UpdateBook(ctx context.Context, book *models.LibraryBook) error {
	m.books[book.ID] = *book
	return nil
}

func (m *mockLibraryRepo) BorrowBook(ctx context.Context, loan *models.BookLoan) error {
	book := m.books[loan.BookID]
	if book.AvailableCopies <= 0 {
		return repository.ErrNoAvailableCopies
	}
	book.AvailableCopies--
	m.books[loan.BookID] = book
	loan.ID = "new-loan"
	if m.loans == nil {
		m.loans = make(map[string]models.BookLoan)
	}
	m.loans[loan.ID] = *loan
	m.borrowed = loan
	return nil
}

func (m *mockLibraryRepo) ReturnBook(ctx context.Context, loanID string, returnedAt time.Time) error {
	loan, ok := m.loans[loanID]
	if !ok || loan.ReturnedAt != nil {
		return sql.ErrNoRows
	}
	loan.ReturnedAt = &returnedAt
	m.loans[loanID] = loan
	m.returned = append(m.returned, loanID)
	return nil
}

func (m *mockLibraryRepo) FindLoan(ctx context.Context, id string) (*models.BookLoan, error) {
	if l, ok := m.loans[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLibraryRepo) ListLoansByStudent(ctx context.Context, studentID string) ([]models.BookLoanDetail, error) {
	return nil, nil
}

func (m *mockLibraryRepo) CountOpenLoans(ctx context.Context, studentID string) (int, error) {
	return m.openLoans, nil
}

func newLibraryService(repo *mockLibraryRepo) *LibraryService {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {StudentProfile: models.StudentProfile{ID: "s1", Status: models.StudentStatusActive}},
	}}
	return NewLibraryService(repo, students, LibraryConfig{LoanDays: 30, MaxLoans: 2}, validator.New(), zap.NewNop())
}

func TestLibraryServiceBorrow(t *testing.T) {
	repo := &mockLibraryRepo{books: map[string]models.LibraryBook{
		"b1": {ID: "b1", Title: "Algorithms", TotalCopies: 3, AvailableCopies: 1},
	}}
	svc := newLibraryService(repo)

	loan, err := svc.BorrowBook(context.Background(), "b1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", loan.StudentID)
	assert.Equal(t, loan.LoanedAt.AddDate(0, 0, 30), loan.DueAt)
	assert.Equal(t, 0, repo.books["b1"].AvailableCopies)
}

func TestLibraryServiceBorrowNoCopies(t *testing.T) {
	repo := &mockLibraryRepo{books: map[string]models.LibraryBook{
		"b1": {ID: "b1", Title: "Algorithms", TotalCopies: 3, AvailableCopies: 0},
	}}
	svc := newLibraryService(repo)

	_, err := svc.BorrowBook(context.Background(), "b1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCopiesAvailable.Code, appErrors.FromError(err).Code)
}

func TestLibraryServiceBorrowLoanLimit(t *testing.T) {
	repo := &mockLibraryRepo{
		books:     map[string]models.LibraryBook{"b1": {ID: "b1", AvailableCopies: 5}},
		openLoans: 2,
	}
	svc := newLibraryService(repo)

	_, err := svc.BorrowBook(context.Background(), "b1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLibraryServiceReturn(t *testing.T) {
	repo := &mockLibraryRepo{
		books: map[string]models.LibraryBook{"b1": {ID: "b1", AvailableCopies: 0}},
		loans: map[string]models.BookLoan{"l1": {ID: "l1", BookID: "b1", StudentID: "s1"}},
	}
	svc := newLibraryService(repo)

	require.NoError(t, svc.ReturnBook(context.Background(), "l1"))
	assert.Contains(t, repo.returned, "l1")

	err := svc.ReturnBook(context.Background(), "l1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLibraryServiceUpdateBookKeepsLoanedCopies(t *testing.T) {
	repo := &mockLibraryRepo{books: map[string]models.LibraryBook{
		"b1": {ID: "b1", Title: "Algorithms", Author: "CLRS", ISBN: "x", TotalCopies: 5, AvailableCopies: 3},
	}}
	svc := newLibraryService(repo)

	book, err := svc.UpdateBook(context.Background(), "b1", BookRequest{Title: "Algorithms", Author: "CLRS", ISBN: "x", TotalCopies: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, book.AvailableCopies)

	_, err = svc.UpdateBook(context.Background(), "b1", BookRequest{Title: "Algorithms", Author: "CLRS", ISBN: "x", TotalCopies: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
