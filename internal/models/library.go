package models

import "time"

// LibraryBook is an inventory item of the university library.
type LibraryBook struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	ISBN            string    `db:"isbn" json:"isbn"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BookLoan records a borrowed copy.
type BookLoan struct {
	ID         string     `db:"id" json:"id"`
	BookID     string     `db:"book_id" json:"book_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	LoanedAt   time.Time  `db:"loaned_at" json:"loaned_at"`
	DueAt      time.Time  `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

// BookLoanDetail enriches a loan with book info.
type BookLoanDetail struct {
	BookLoan
	BookTitle  string `db:"book_title" json:"book_title"`
	BookAuthor string `db:"book_author" json:"book_author"`
}

// BookFilter scopes book listings.
type BookFilter struct {
	Search   string
	Page     int
	PageSize int
}
