package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookservice/internal/history"
)

const (
	tableBookEvents = "book_events"

	colBookID    = "book_id"
	colEventType = "event_type"
	colEventData = "event_data"
	colCreatedAt = "created_at"
)

type eventRow struct {
	ID        int64     `db:"id"`
	BookID    int64     `db:"book_id"`
	EventType string    `db:"event_type"`
	Data      []byte    `db:"event_data"`
	CreatedAt time.Time `db:"created_at"`
}

// HistoryStore implements history.Store on the book_events table.
type HistoryStore struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	system  string
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewHistoryStore(db *sqlx.DB, opts ...Option) (*HistoryStore, error) {
	dialect, system, err := dialectFor(db)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &HistoryStore{
		db:      db,
		dialect: dialect,
		system:  system,
		logger:  o.logger,
		tracer:  o.tracer,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Append inserts event and returns it with its id and timestamp set.
func (s *HistoryStore) Append(ctx context.Context, event history.Event) (history.Event, error) {
	ctx, span := s.start(ctx, "append",
		attribute.Int64("book.id", event.BookID),
		attribute.String("event.type", string(event.Type)),
	)
	defer span.End()

	event.CreatedAt = s.now()
	ds := s.dialect.Insert(tableBookEvents).Prepared(true).Rows(goqu.Record{
		colBookID:    event.BookID,
		colEventType: string(event.Type),
		// string keeps lib/pq from sending the payload as bytea.
		colEventData: string(event.Data),
		colCreatedAt: event.CreatedAt,
	})

	if s.system == "postgres" {
		query, args, err := ds.Returning(colID).ToSQL()
		if err != nil {
			return history.Event{}, s.fail(ctx, span, "append", err)
		}
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&event.ID); err != nil {
			return history.Event{}, s.fail(ctx, span, "append", err)
		}
		return event, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return history.Event{}, s.fail(ctx, span, "append", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return history.Event{}, s.fail(ctx, span, "append", err)
	}
	if event.ID, err = res.LastInsertId(); err != nil {
		return history.Event{}, s.fail(ctx, span, "append", err)
	}
	return event, nil
}

// ListByBook returns the events of bookID in insertion order.
func (s *HistoryStore) ListByBook(ctx context.Context, bookID int64) ([]history.Event, error) {
	ctx, span := s.start(ctx, "list_by_book", attribute.Int64("book.id", bookID))
	defer span.End()

	query, args, err := s.dialect.From(tableBookEvents).
		Prepared(true).
		Select(colID, colBookID, colEventType, colEventData, colCreatedAt).
		Where(goqu.C(colBookID).Eq(bookID)).
		Order(goqu.C(colID).Asc()).
		ToSQL()
	if err != nil {
		return nil, s.fail(ctx, span, "list_by_book", err)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.fail(ctx, span, "list_by_book", err)
	}

	events := make([]history.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, history.Event{
			ID:        row.ID,
			BookID:    row.BookID,
			Type:      history.Type(row.EventType),
			Data:      row.Data,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return events, nil
}

func (s *HistoryStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", s.system),
		attribute.String("db.operation", op),
		attribute.String("db.collection.name", tableBookEvents),
	)
	return s.tracer.Start(ctx, "store.book_events."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (s *HistoryStore) fail(ctx context.Context, span trace.Span, op string, err error) error {
	return failSpan(ctx, s.logger, span, tableBookEvents, op, err)
}
