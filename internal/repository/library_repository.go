package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univern/academics-api/internal/models"
)

// LibraryRepository manages the book inventory and loan records.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository constructs a LibraryRepository.
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// ListBooks returns books matching the filter.
func (r *LibraryRepository) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.LibraryBook, int, error) {
	base := `FROM library_books WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d OR isbn = $%d)", len(args)+1, len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%", filter.Search)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, title, author, isbn, total_copies, available_copies, created_at, updated_at %s ORDER BY title ASC LIMIT %d OFFSET %d", base, size, offset)

	var books []models.LibraryBook
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindBook fetches a book by ID.
func (r *LibraryRepository) FindBook(ctx context.Context, id string) (*models.LibraryBook, error) {
	const query = `SELECT id, title, author, isbn, total_copies, available_copies, created_at, updated_at FROM library_books WHERE id = $1`
	var book models.LibraryBook
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts a new book.
func (r *LibraryRepository) CreateBook(ctx context.Context, book *models.LibraryBook) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now
	const query = `INSERT INTO library_books (id, title, author, isbn, total_copies, available_copies, created_at, updated_at)
        VALUES (:id, :title, :author, :isbn, :total_copies, :available_copies, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// UpdateBook modifies an existing book.
func (r *LibraryRepository) UpdateBook(ctx context.Context, book *models.LibraryBook) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE library_books SET title = :title, author = :author, isbn = :isbn, total_copies = :total_copies, available_copies = :available_copies, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// BorrowBook atomically decrements availability and records the loan. The
// conditional decrement is the guard against overlending under concurrency.
func (r *LibraryRepository) BorrowBook(ctx context.Context, loan *models.BookLoan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin borrow tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const decrement = `UPDATE library_books SET available_copies = available_copies - 1, updated_at = $2 WHERE id = $1 AND available_copies > 0`
	result, err := tx.ExecContext(ctx, decrement, loan.BookID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("decrement available copies: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement rows: %w", err)
	}
	if affected == 0 {
		return ErrNoAvailableCopies
	}

	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	if loan.LoanedAt.IsZero() {
		loan.LoanedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO book_loans (id, book_id, student_id, loaned_at, due_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, loan.ID, loan.BookID, loan.StudentID, loan.LoanedAt, loan.DueAt); err != nil {
		return fmt.Errorf("create loan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit borrow tx: %w", err)
	}
	return nil
}

// ErrNoAvailableCopies signals the inventory ran out during borrow.
var ErrNoAvailableCopies = fmt.Errorf("no available copies")

// ReturnBook marks the loan returned and restores availability.
func (r *LibraryRepository) ReturnBook(ctx context.Context, loanID string, returnedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin return tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var bookID string
	const lookup = `UPDATE book_loans SET returned_at = $2 WHERE id = $1 AND returned_at IS NULL RETURNING book_id`
	if err := tx.GetContext(ctx, &bookID, lookup, loanID, returnedAt); err != nil {
		return err
	}

	const increment = `UPDATE library_books SET available_copies = available_copies + 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, increment, bookID, returnedAt); err != nil {
		return fmt.Errorf("increment available copies: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit return tx: %w", err)
	}
	return nil
}

// FindLoan fetches a loan by ID.
func (r *LibraryRepository) FindLoan(ctx context.Context, id string) (*models.BookLoan, error) {
	const query = `SELECT id, book_id, student_id, loaned_at, due_at, returned_at FROM book_loans WHERE id = $1`
	var loan models.BookLoan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListLoansByStudent returns a student's loans with book context.
func (r *LibraryRepository) ListLoansByStudent(ctx context.Context, studentID string) ([]models.BookLoanDetail, error) {
	const query = `SELECT l.id, l.book_id, l.student_id, l.loaned_at, l.due_at, l.returned_at,
        b.title AS book_title, b.author AS book_author
        FROM book_loans l JOIN library_books b ON b.id = l.book_id
        WHERE l.student_id = $1
        ORDER BY l.loaned_at DESC`
	var loans []models.BookLoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, studentID); err != nil {
		return nil, fmt.Errorf("list loans by student: %w", err)
	}
	return loans, nil
}

// CountOpenLoans returns the number of unreturned loans for a student.
func (r *LibraryRepository) CountOpenLoans(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM book_loans WHERE student_id = $1 AND returned_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return count, nil
}
