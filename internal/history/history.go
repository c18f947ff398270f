// Package history records the changes applied to books as an append-only event log.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Type identifies what happened to a book.
type Type string

const (
	BookCreated      Type = "BookCreated"
	BookUpdated      Type = "BookUpdated"
	BookDeleted      Type = "BookDeleted"
	AuthorDetached   Type = "AuthorDetached"
	BorrowerDetached Type = "BorrowerDetached"
)

// Event is a single recorded change.
type Event struct {
	ID        int64           `json:"id"`
	BookID    int64           `json:"bookId"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store persists events. Implementations assign ID and CreatedAt on Append.
type Store interface {
	Append(ctx context.Context, event Event) (Event, error)
	ListByBook(ctx context.Context, bookID int64) ([]Event, error)
}

// NewEvent builds an event for bookID with data encoded as its JSON payload.
func NewEvent(bookID int64, eventType Type, data any) (Event, error) {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return Event{
		BookID: bookID,
		Type:   eventType,
		Data:   payload,
	}, nil
}

// DetachedData is the payload of AuthorDetached and BorrowerDetached events.
type DetachedData struct {
	ReferenceID int64 `json:"referenceId"`
}

// DeletedData is the payload of BookDeleted events.
type DeletedData struct {
	ID int64 `json:"id"`
}
