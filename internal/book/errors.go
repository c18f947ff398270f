// internal/book/errors.go
package book

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBookMissing is returned by a Repository when a save targets a row that no longer exists.
var ErrBookMissing = errors.New("book does not exist")

// Entity names the kind of record a NotFoundError refers to.
type Entity string

const (
	EntityBook     Entity = "book"
	EntityAuthor   Entity = "author"
	EntityBorrower Entity = "borrower"
)

// NotFoundError reports a missing book or a reference the remote service could not confirm.
type NotFoundError struct {
	Entity Entity
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id=%d not found", e.Entity, e.ID)
}

// Code is the machine-readable error code, e.g. "author-not-found".
func (e *NotFoundError) Code() string {
	return string(e.Entity) + "-not-found"
}

// Message is the human-readable form used in API responses.
func (e *NotFoundError) Message() string {
	name := string(e.Entity)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf("%s with id=%d not found", name, e.ID)
}

// ValidationError lists the fields of a book payload that were rejected.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid book: missing or invalid " + strings.Join(e.Fields, ", ")
}
