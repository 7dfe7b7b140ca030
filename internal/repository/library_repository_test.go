package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univern/academics-api/internal/models"
)

func TestLibraryRepositoryBorrowBook(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE library_books SET available_copies = available_copies - 1").
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO book_loans").
		WithArgs(sqlmock.AnyArg(), "b1", "st1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	loan := &models.BookLoan{BookID: "b1", StudentID: "st1", DueAt: time.Now().Add(14 * 24 * time.Hour)}
	err := repo.BorrowBook(context.Background(), loan)
	require.NoError(t, err)
	assert.NotEmpty(t, loan.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryBorrowBookNoCopies(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE library_books SET available_copies = available_copies - 1").
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	loan := &models.BookLoan{BookID: "b1", StudentID: "st1", DueAt: time.Now().Add(14 * 24 * time.Hour)}
	err := repo.BorrowBook(context.Background(), loan)
	assert.ErrorIs(t, err, ErrNoAvailableCopies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepositoryReturnBook(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLibraryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE book_loans SET returned_at").
		WithArgs("l1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"book_id"}).AddRow("b1"))
	mock.ExpectExec("UPDATE library_books SET available_copies = available_copies \\+ 1").
		WithArgs("b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReturnBook(context.Background(), "l1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
