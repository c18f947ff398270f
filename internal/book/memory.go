package book

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository provides an in-memory implementation of Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	books  map[int64]Book
	nextID int64
}

// NewMemoryRepository constructs a MemoryRepository seeded with the provided books.
// Seed books keep their ids; new ids continue after the highest one.
func NewMemoryRepository(seed ...Book) *MemoryRepository {
	repo := &MemoryRepository{
		books:  make(map[int64]Book, len(seed)),
		nextID: 1,
	}

	for _, b := range seed {
		repo.books[b.ID] = clone(b)
		if b.ID >= repo.nextID {
			repo.nextID = b.ID + 1
		}
	}

	return repo
}

// FindAll returns all books in ascending ID order.
func (r *MemoryRepository) FindAll(_ context.Context) ([]Book, error) {
	return r.filter(func(Book) bool { return true }), nil
}

// FindByTitleContains returns the books whose title contains title (case-sensitive).
func (r *MemoryRepository) FindByTitleContains(_ context.Context, title string) ([]Book, error) {
	return r.filter(func(b Book) bool { return strings.Contains(b.Title, title) }), nil
}

// FindByPublisher returns the books with exactly this publisher.
func (r *MemoryRepository) FindByPublisher(_ context.Context, publisher string) ([]Book, error) {
	return r.filter(func(b Book) bool { return b.Publisher == publisher }), nil
}

// FindByID retrieves a book by its ID.
func (r *MemoryRepository) FindByID(_ context.Context, id int64) (Book, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[id]
	if !ok {
		return Book{}, false, nil
	}
	return clone(b), true, nil
}

// FindByAuthorID returns the books referencing authorID.
func (r *MemoryRepository) FindByAuthorID(_ context.Context, authorID int64) ([]Book, error) {
	return r.filter(func(b Book) bool { return b.AuthorID != nil && *b.AuthorID == authorID }), nil
}

// FindByBorrowerID returns the books referencing borrowerID.
func (r *MemoryRepository) FindByBorrowerID(_ context.Context, borrowerID int64) ([]Book, error) {
	return r.filter(func(b Book) bool { return b.BorrowerID != nil && *b.BorrowerID == borrowerID }), nil
}

// Save inserts book under a new ID when its ID is zero, otherwise replaces the stored book.
func (r *MemoryRepository) Save(_ context.Context, b Book) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == 0 {
		b.ID = r.nextID
		r.nextID++
	} else if _, ok := r.books[b.ID]; !ok {
		return Book{}, ErrBookMissing
	}

	r.books[b.ID] = clone(b)
	return clone(b), nil
}

// ClearReference unsets the ref reference of book bookID if it still equals refID.
func (r *MemoryRepository) ClearReference(_ context.Context, bookID int64, ref Entity, refID int64) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[bookID]
	if !ok {
		return Book{}, ErrBookMissing
	}

	field := &b.AuthorID
	if ref == EntityBorrower {
		field = &b.BorrowerID
	}
	if *field == nil || **field != refID {
		return Book{}, ErrBookMissing
	}
	*field = nil

	r.books[bookID] = b
	return clone(b), nil
}

// DeleteByID removes the book with the provided ID if it exists.
func (r *MemoryRepository) DeleteByID(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.books[id]; !ok {
		return false, nil
	}
	delete(r.books, id)
	return true, nil
}

func (r *MemoryRepository) filter(keep func(Book) bool) []Book {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Book, 0, len(r.books))
	for _, b := range r.books {
		if keep(b) {
			result = append(result, clone(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// clone copies the pointer fields so callers never share them with the repository.
func clone(b Book) Book {
	if b.AuthorID != nil {
		b.AuthorID = Int64(*b.AuthorID)
	}
	if b.BorrowerID != nil {
		b.BorrowerID = Int64(*b.BorrowerID)
	}
	if b.Status != nil {
		b.Status = StatusOf(*b.Status)
	}
	return b
}
