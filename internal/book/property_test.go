package book

import (
	"context"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func bookGen() *rapid.Generator[Book] {
	return rapid.Custom(func(t *rapid.T) Book {
		return Book{
			Title:       rapid.StringMatching(`[A-Za-z][A-Za-z %_]{0,20}`).Draw(t, "title"),
			Description: rapid.StringMatching(`[a-z]{1,30}`).Draw(t, "description"),
			Publisher:   rapid.SampledFrom([]string{"Ace", "Penguin", "HarperOne"}).Draw(t, "publisher"),
			ISBN:        rapid.StringMatching(`97[89]-[0-9]{10}`).Draw(t, "isbn"),
			AuthorID:    rapid.Ptr(rapid.Int64Range(1, 5), true).Draw(t, "authorId"),
			BorrowerID:  rapid.Ptr(rapid.Int64Range(1, 5), true).Draw(t, "borrowerId"),
			Status: rapid.Ptr(rapid.SampledFrom([]Status{
				StatusAvailable, StatusReserved, StatusBorrowed, StatusLost,
			}), true).Draw(t, "status"),
		}
	})
}

// everyone exists, so every generated book passes the reference checks.
func newPermissiveService(repo Repository) Service {
	all := []int64{1, 2, 3, 4, 5}
	return NewService(repo, newFakeChecker(all...), newFakeChecker(all...))
}

func TestPropertyCreateThenGet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := newPermissiveService(NewMemoryRepository())
		candidate := bookGen().Draw(t, "book")

		created, err := svc.CreateBook(ctx, candidate)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		fetched, found, err := svc.GetBook(ctx, created.ID)
		if err != nil || !found {
			t.Fatalf("get %d: found=%v err=%v", created.ID, found, err)
		}

		candidate.ID = created.ID
		if !equalBooks(candidate, fetched) {
			t.Fatalf("fetched %+v, want %+v", fetched, candidate)
		}
	})
}

func TestPropertyUpdatePreservesID(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := newPermissiveService(NewMemoryRepository())

		created, err := svc.CreateBook(ctx, bookGen().Draw(t, "original"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		replacement := bookGen().Draw(t, "replacement")
		replacement.ID = rapid.Int64().Draw(t, "bogusId")

		updated, found, err := svc.UpdateBook(ctx, created.ID, replacement)
		if err != nil || !found {
			t.Fatalf("update: found=%v err=%v", found, err)
		}

		replacement.ID = created.ID
		if !equalBooks(replacement, updated) {
			t.Fatalf("updated %+v, want %+v", updated, replacement)
		}
	})
}

func TestPropertyTitleFilter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		repo := NewMemoryRepository()
		svc := newPermissiveService(repo)

		books := rapid.SliceOfN(bookGen(), 0, 10).Draw(t, "books")
		for _, b := range books {
			if _, err := svc.CreateBook(ctx, b); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		needle := rapid.StringMatching(`[A-Za-z %_]{0,3}`).Draw(t, "needle")

		matches, err := svc.ListBooks(ctx, &needle)
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		want := 0
		for _, b := range books {
			if strings.Contains(b.Title, needle) {
				want++
			}
		}
		if len(matches) != want {
			t.Fatalf("got %d matches for %q, want %d", len(matches), needle, want)
		}
		for _, m := range matches {
			if !strings.Contains(m.Title, needle) {
				t.Fatalf("%q does not contain %q", m.Title, needle)
			}
		}
	})
}

func TestPropertyDetachAuthorClearsExactlyMatchingBooks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		repo := NewMemoryRepository()
		svc := newPermissiveService(repo)

		books := rapid.SliceOfN(bookGen(), 0, 10).Draw(t, "books")
		for _, b := range books {
			if _, err := svc.CreateBook(ctx, b); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		before, _ := repo.FindAll(ctx)
		authorID := rapid.Int64Range(1, 5).Draw(t, "authorId")

		updated, err := svc.DetachAuthor(ctx, authorID)
		if err != nil {
			t.Fatalf("detach: %v", err)
		}

		after, _ := repo.FindAll(ctx)
		detached := 0
		for i, b := range after {
			old := before[i]
			if old.AuthorID != nil && *old.AuthorID == authorID {
				detached++
				if b.AuthorID != nil {
					t.Fatalf("book %d still references author %d", b.ID, authorID)
				}
				old.AuthorID = nil
			}
			if !equalBooks(old, b) {
				t.Fatalf("book %d changed beyond its author: %+v -> %+v", b.ID, before[i], b)
			}
		}
		if len(updated) != detached {
			t.Fatalf("detach returned %d books, want %d", len(updated), detached)
		}

		again, err := svc.DetachAuthor(ctx, authorID)
		if err != nil || len(again) != 0 {
			t.Fatalf("second detach returned %d books, err=%v", len(again), err)
		}
	})
}

func equalBooks(a, b Book) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Publisher == b.Publisher &&
		a.ISBN == b.ISBN &&
		equalPtr(a.AuthorID, b.AuthorID) &&
		equalPtr(a.BorrowerID, b.BorrowerID) &&
		equalPtr(a.Status, b.Status)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
