// internal/book/service.go
package book

import (
	"context"

	"bookservice/internal/history"
)

// Service defines the interface for the book service.
type Service interface {
	ListBooks(ctx context.Context, title *string) ([]Book, error)
	ListByPublisher(ctx context.Context, publisher string) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, bool, error)
	CreateBook(ctx context.Context, candidate Book) (Book, error)
	UpdateBook(ctx context.Context, id int64, replacement Book) (Book, bool, error)
	DeleteBook(ctx context.Context, id int64) error
	ListByAuthor(ctx context.Context, authorID int64) ([]Book, error)
	ListByBorrower(ctx context.Context, borrowerID int64) ([]Book, error)
	DetachAuthor(ctx context.Context, authorID int64) ([]Book, error)
	DetachBorrower(ctx context.Context, borrowerID int64) ([]Book, error)
	History(ctx context.Context, id int64) ([]history.Event, error)
}

// Repository describes the persistence required for books.
//
// Save inserts when book.ID is zero and overwrites the row otherwise; it returns
// ErrBookMissing when the row to overwrite does not exist. ClearReference unsets one
// reference of a single book only while it still points at refID, and returns
// ErrBookMissing when no such book is left. DeleteByID reports whether a row was
// removed; unknown ids are not an error.
type Repository interface {
	FindAll(ctx context.Context) ([]Book, error)
	FindByTitleContains(ctx context.Context, title string) ([]Book, error)
	FindByPublisher(ctx context.Context, publisher string) ([]Book, error)
	FindByID(ctx context.Context, id int64) (Book, bool, error)
	FindByAuthorID(ctx context.Context, authorID int64) ([]Book, error)
	FindByBorrowerID(ctx context.Context, borrowerID int64) ([]Book, error)
	Save(ctx context.Context, book Book) (Book, error)
	ClearReference(ctx context.Context, bookID int64, ref Entity, refID int64) (Book, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// ExistenceChecker answers whether a remote entity exists.
// Implementations fail closed: anything short of a confirmation is false.
type ExistenceChecker interface {
	Exists(ctx context.Context, id int64) bool
}
