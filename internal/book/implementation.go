// internal/book/implementation.go
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookservice/internal/history"
)

// service implements the Service interface.
type service struct {
	repo      Repository
	authors   ExistenceChecker
	borrowers ExistenceChecker
	history   history.Store
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures the service built by NewService.
type Option func(*service)

// WithHistory makes the service record every successful write to store.
func WithHistory(store history.Store) Option {
	return func(s *service) {
		s.history = store
	}
}

// WithLogger sets the logger used for warnings and write notices.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the provider of the service spans instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) {
		s.tracer = tp.Tracer("bookservice/book")
	}
}

// NewService creates a new book service instance.
// authors and borrowers guard the two references on create and update.
func NewService(repo Repository, authors, borrowers ExistenceChecker, opts ...Option) Service {
	s := &service{
		repo:      repo,
		authors:   authors,
		borrowers: borrowers,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("bookservice/book"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListBooks returns every book, or only those whose title contains *title.
func (s *service) ListBooks(ctx context.Context, title *string) ([]Book, error) {
	var (
		books []Book
		err   error
	)
	if title == nil {
		books, err = s.repo.FindAll(ctx)
	} else {
		books, err = s.repo.FindByTitleContains(ctx, *title)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// ListByPublisher returns the books issued by publisher.
func (s *service) ListByPublisher(ctx context.Context, publisher string) ([]Book, error) {
	books, err := s.repo.FindByPublisher(ctx, publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by publisher: %w", err)
	}
	return books, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id int64) (Book, bool, error) {
	b, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Book{}, false, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return b, ok, nil
}

// CreateBook validates the candidate's references and stores it under a new id.
func (s *service) CreateBook(ctx context.Context, candidate Book) (Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.create")
	defer span.End()

	if err := s.checkReferences(ctx, candidate); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Book{}, err
	}

	candidate.ID = 0
	created, err := s.repo.Save(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return Book{}, fmt.Errorf("failed to save book: %w", err)
	}

	span.SetAttributes(attribute.Int64("book.id", created.ID))
	s.logger.InfoContext(ctx, "book created", "book_id", created.ID)
	s.record(ctx, created.ID, history.BookCreated, created)

	return created, nil
}

// UpdateBook replaces every attribute of book id with those of replacement.
// References are checked before the book is looked up.
func (s *service) UpdateBook(ctx context.Context, id int64, replacement Book) (Book, bool, error) {
	ctx, span := s.tracer.Start(ctx, "book.update",
		trace.WithAttributes(attribute.Int64("book.id", id)),
	)
	defer span.End()

	if err := s.checkReferences(ctx, replacement); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Book{}, false, err
	}

	existing, ok, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return Book{}, false, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	if !ok {
		return Book{}, false, nil
	}

	updated, err := s.repo.Save(ctx, existing.replaceWith(replacement))
	if errors.Is(err, ErrBookMissing) {
		return Book{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return Book{}, false, fmt.Errorf("failed to save book %d: %w", id, err)
	}

	s.record(ctx, id, history.BookUpdated, updated)
	return updated, true, nil
}

// DeleteBook removes the book. Unknown ids are not an error and leave no history.
func (s *service) DeleteBook(ctx context.Context, id int64) error {
	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}

	if removed {
		s.record(ctx, id, history.BookDeleted, history.DeletedData{ID: id})
	}
	return nil
}

// ListByAuthor returns the books referencing authorID.
func (s *service) ListByAuthor(ctx context.Context, authorID int64) ([]Book, error) {
	books, err := s.repo.FindByAuthorID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by author: %w", err)
	}
	return books, nil
}

// ListByBorrower returns the books referencing borrowerID.
func (s *service) ListByBorrower(ctx context.Context, borrowerID int64) ([]Book, error) {
	books, err := s.repo.FindByBorrowerID(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books by borrower: %w", err)
	}
	return books, nil
}

// DetachAuthor clears the author reference on every book pointing at authorID.
func (s *service) DetachAuthor(ctx context.Context, authorID int64) ([]Book, error) {
	return s.detach(ctx, EntityAuthor, authorID, s.repo.FindByAuthorID, history.AuthorDetached)
}

// DetachBorrower clears the borrower reference on every book pointing at borrowerID.
func (s *service) DetachBorrower(ctx context.Context, borrowerID int64) ([]Book, error) {
	return s.detach(ctx, EntityBorrower, borrowerID, s.repo.FindByBorrowerID, history.BorrowerDetached)
}

// History returns the recorded changes of book id, oldest first.
func (s *service) History(ctx context.Context, id int64) ([]history.Event, error) {
	if s.history == nil {
		return nil, nil
	}

	events, err := s.history.ListByBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of book %d: %w", id, err)
	}
	return events, nil
}

// detach clears the reference of each matching book on its own. Books deleted or
// re-pointed in the meantime are skipped and the other fields are never written.
// On a store failure the books cleared so far are returned along with the error.
func (s *service) detach(
	ctx context.Context,
	kind Entity,
	refID int64,
	find func(context.Context, int64) ([]Book, error),
	eventType history.Type,
) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "book.detach_"+string(kind),
		trace.WithAttributes(attribute.Int64("reference.id", refID)),
	)
	defer span.End()

	books, err := find(ctx, refID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find books by %s: %w", kind, err)
	}

	updated := make([]Book, 0, len(books))
	for _, b := range books {
		saved, err := s.repo.ClearReference(ctx, b.ID, kind, refID)
		if errors.Is(err, ErrBookMissing) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return updated, fmt.Errorf("failed to detach %s %d from book %d: %w", kind, refID, b.ID, err)
		}
		updated = append(updated, saved)
		s.record(ctx, saved.ID, eventType, history.DetachedData{ReferenceID: refID})
	}

	span.SetAttributes(attribute.Int("books.updated", len(updated)))
	if len(updated) > 0 {
		s.logger.InfoContext(ctx, "detached books", "kind", string(kind), "reference_id", refID, "count", len(updated))
	}
	return updated, nil
}

// checkReferences asks the author service first, then the borrower service.
// The first failed check is returned.
func (s *service) checkReferences(ctx context.Context, b Book) error {
	if hasReference(b.AuthorID) && !s.authors.Exists(ctx, *b.AuthorID) {
		return &NotFoundError{Entity: EntityAuthor, ID: *b.AuthorID}
	}
	if hasReference(b.BorrowerID) && !s.borrowers.Exists(ctx, *b.BorrowerID) {
		return &NotFoundError{Entity: EntityBorrower, ID: *b.BorrowerID}
	}
	return nil
}

func (s *service) record(ctx context.Context, bookID int64, eventType history.Type, data any) {
	if s.history == nil {
		return
	}

	event, err := history.NewEvent(bookID, eventType, data)
	if err == nil {
		_, err = s.history.Append(ctx, event)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record book history",
			"book_id", bookID,
			"event_type", string(eventType),
			"error", err,
		)
	}
}
