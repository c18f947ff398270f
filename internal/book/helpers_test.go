package book

import (
	"context"
	"errors"
	"sync"

	"bookservice/internal/history"
)

// fakeChecker answers Exists from a fixed set of known ids and records every call.
type fakeChecker struct {
	mu    sync.Mutex
	known map[int64]bool
	calls []int64
}

func newFakeChecker(known ...int64) *fakeChecker {
	c := &fakeChecker{known: make(map[int64]bool)}
	for _, id := range known {
		c.known[id] = true
	}
	return c
}

func (c *fakeChecker) Exists(_ context.Context, id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, id)
	return c.known[id]
}

func (c *fakeChecker) Calls() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.calls...)
}

var errStoreDown = errors.New("store is down")

// failingRepository fails every operation with errStoreDown.
type failingRepository struct{}

func (failingRepository) FindAll(context.Context) ([]Book, error) { return nil, errStoreDown }
func (failingRepository) FindByTitleContains(context.Context, string) ([]Book, error) {
	return nil, errStoreDown
}
func (failingRepository) FindByPublisher(context.Context, string) ([]Book, error) {
	return nil, errStoreDown
}
func (failingRepository) FindByID(context.Context, int64) (Book, bool, error) {
	return Book{}, false, errStoreDown
}
func (failingRepository) FindByAuthorID(context.Context, int64) ([]Book, error) {
	return nil, errStoreDown
}
func (failingRepository) FindByBorrowerID(context.Context, int64) ([]Book, error) {
	return nil, errStoreDown
}
func (failingRepository) Save(context.Context, Book) (Book, error) { return Book{}, errStoreDown }
func (failingRepository) ClearReference(context.Context, int64, Entity, int64) (Book, error) {
	return Book{}, errStoreDown
}
func (failingRepository) DeleteByID(context.Context, int64) (bool, error) { return false, errStoreDown }

// vanishingRepository reports ErrBookMissing when writing the ids in gone, as if they were
// deleted between the lookup and the write.
type vanishingRepository struct {
	*MemoryRepository
	gone map[int64]bool
}

func (r vanishingRepository) Save(ctx context.Context, b Book) (Book, error) {
	if r.gone[b.ID] {
		return Book{}, ErrBookMissing
	}
	return r.MemoryRepository.Save(ctx, b)
}

func (r vanishingRepository) ClearReference(ctx context.Context, bookID int64, ref Entity, refID int64) (Book, error) {
	if r.gone[bookID] {
		return Book{}, ErrBookMissing
	}
	return r.MemoryRepository.ClearReference(ctx, bookID, ref, refID)
}

// racingRepository runs meanwhile once, right after the first author lookup returns,
// as if another request wrote between the lookup and the detach.
type racingRepository struct {
	*MemoryRepository
	meanwhile func()
}

func (r *racingRepository) FindByAuthorID(ctx context.Context, authorID int64) ([]Book, error) {
	books, err := r.MemoryRepository.FindByAuthorID(ctx, authorID)
	if r.meanwhile != nil {
		r.meanwhile()
		r.meanwhile = nil
	}
	return books, err
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, history.Event) (history.Event, error) {
	return history.Event{}, errStoreDown
}

func (failingHistory) ListByBook(context.Context, int64) ([]history.Event, error) {
	return nil, errStoreDown
}

func sampleBook(title string) Book {
	return Book{
		Title:       title,
		Description: "A description of " + title,
		Publisher:   "HarperCollins",
		ISBN:        "978-0062315007",
	}
}
