// internal/book/domain.go
package book

import (
	"strings"
)

// Status is the circulation state of a book.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusBorrowed  Status = "BORROWED"
	StatusLost      Status = "LOST"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusBorrowed, StatusLost:
		return true
	default:
		return false
	}
}

// Book represents a book in the library.
// AuthorID and BorrowerID reference entities owned by sibling services; nil means no reference.
type Book struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Publisher   string  `json:"publisher"`
	ISBN        string  `json:"isbn"`
	AuthorID    *int64  `json:"authorId"`
	BorrowerID  *int64  `json:"borrowerId"`
	Status      *Status `json:"status"`
}

// Validate checks the fields a client must supply.
func (b Book) Validate() error {
	var fields []string
	if strings.TrimSpace(b.Title) == "" {
		fields = append(fields, "title")
	}
	if strings.TrimSpace(b.Description) == "" {
		fields = append(fields, "description")
	}
	if strings.TrimSpace(b.Publisher) == "" {
		fields = append(fields, "publisher")
	}
	if strings.TrimSpace(b.ISBN) == "" {
		fields = append(fields, "isbn")
	}
	if b.Status != nil && !b.Status.Valid() {
		fields = append(fields, "status")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// replaceWith returns r's attributes carried under b's id.
func (b Book) replaceWith(r Book) Book {
	r.ID = b.ID
	return r
}

// hasReference treats nil and the legacy zero value alike as "no reference".
func hasReference(id *int64) bool {
	return id != nil && *id != 0
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// StatusOf returns a pointer to s.
func StatusOf(s Status) *Status {
	return &s
}
