package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookservice/internal/book"
)

const (
	tableBooks = "books"

	colID          = "id"
	colTitle       = "title"
	colDescription = "description"
	colPublisher   = "publisher"
	colISBN        = "isbn"
	colAuthorID    = "author_id"
	colBorrowerID  = "borrower_id"
	colStatus      = "status"
)

var bookColumns = []any{colID, colTitle, colDescription, colPublisher, colISBN, colAuthorID, colBorrowerID, colStatus}

type bookRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Publisher   string         `db:"publisher"`
	ISBN        string         `db:"isbn"`
	AuthorID    sql.NullInt64  `db:"author_id"`
	BorrowerID  sql.NullInt64  `db:"borrower_id"`
	Status      sql.NullString `db:"status"`
}

func (r bookRow) toBook() book.Book {
	b := book.Book{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Publisher:   r.Publisher,
		ISBN:        r.ISBN,
	}
	if r.AuthorID.Valid {
		b.AuthorID = book.Int64(r.AuthorID.Int64)
	}
	if r.BorrowerID.Valid {
		b.BorrowerID = book.Int64(r.BorrowerID.Int64)
	}
	if r.Status.Valid {
		b.Status = book.StatusOf(book.Status(r.Status.String))
	}
	return b
}

// BookStore implements book.Repository on top of a SQL database.
type BookStore struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	system  string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures the SQL stores.
type Option func(*storeOptions)

type storeOptions struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *storeOptions) {
		o.tracer = tp.Tracer("bookservice/store")
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("bookservice/store"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewBookStore creates a BookStore speaking the SQL dialect of db's driver.
func NewBookStore(db *sqlx.DB, opts ...Option) (*BookStore, error) {
	dialect, system, err := dialectFor(db)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &BookStore{
		db:      db,
		dialect: dialect,
		system:  system,
		logger:  o.logger,
		tracer:  o.tracer,
	}, nil
}

func (s *BookStore) FindAll(ctx context.Context) ([]book.Book, error) {
	return s.selectBooks(ctx, "find_all", nil)
}

// FindByTitleContains matches title as a literal substring; LIKE wildcards in it are escaped.
func (s *BookStore) FindByTitleContains(ctx context.Context, title string) ([]book.Book, error) {
	pattern := likePattern(title)

	var cond exp.Expression
	if s.system == "sqlite3" {
		// sqlite has no default LIKE escape character.
		cond = goqu.L(`? LIKE ? ESCAPE '\'`, goqu.C(colTitle), pattern)
	} else {
		cond = goqu.C(colTitle).Like(pattern)
	}

	return s.selectBooks(ctx, "find_by_title", cond)
}

func (s *BookStore) FindByPublisher(ctx context.Context, publisher string) ([]book.Book, error) {
	return s.selectBooks(ctx, "find_by_publisher", goqu.C(colPublisher).Eq(publisher))
}

func (s *BookStore) FindByAuthorID(ctx context.Context, authorID int64) ([]book.Book, error) {
	return s.selectBooks(ctx, "find_by_author", goqu.C(colAuthorID).Eq(authorID))
}

func (s *BookStore) FindByBorrowerID(ctx context.Context, borrowerID int64) ([]book.Book, error) {
	return s.selectBooks(ctx, "find_by_borrower", goqu.C(colBorrowerID).Eq(borrowerID))
}

func (s *BookStore) FindByID(ctx context.Context, id int64) (book.Book, bool, error) {
	ctx, span := s.start(ctx, "find_by_id", attribute.Int64("book.id", id))
	defer span.End()

	query, args, err := s.dialect.From(tableBooks).
		Prepared(true).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return book.Book{}, false, s.fail(ctx, span, "find_by_id", err)
	}

	var row bookRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return book.Book{}, false, nil
	}
	if err != nil {
		return book.Book{}, false, s.fail(ctx, span, "find_by_id", err)
	}

	return row.toBook(), true, nil
}

// Save inserts b when its ID is zero and otherwise overwrites every column of row b.ID.
func (s *BookStore) Save(ctx context.Context, b book.Book) (book.Book, error) {
	if b.ID == 0 {
		return s.insert(ctx, b)
	}
	return s.update(ctx, b)
}

// ClearReference sets the ref column of row bookID to NULL while it still holds refID.
// No other column is written.
func (s *BookStore) ClearReference(ctx context.Context, bookID int64, ref book.Entity, refID int64) (book.Book, error) {
	op := "clear_" + string(ref)
	ctx, span := s.start(ctx, op,
		attribute.Int64("book.id", bookID),
		attribute.Int64("reference.id", refID),
	)
	defer span.End()

	col := colAuthorID
	if ref == book.EntityBorrower {
		col = colBorrowerID
	}

	query, args, err := s.dialect.Update(tableBooks).
		Prepared(true).
		Set(goqu.Record{col: nil}).
		Where(goqu.C(colID).Eq(bookID), goqu.C(col).Eq(refID)).
		ToSQL()
	if err != nil {
		return book.Book{}, s.fail(ctx, span, op, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return book.Book{}, s.fail(ctx, span, op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return book.Book{}, s.fail(ctx, span, op, err)
	}
	if affected == 0 {
		return book.Book{}, book.ErrBookMissing
	}

	cleared, found, err := s.FindByID(ctx, bookID)
	if err != nil {
		return book.Book{}, err
	}
	if !found {
		return book.Book{}, book.ErrBookMissing
	}
	return cleared, nil
}

// DeleteByID reports whether a row was removed.
func (s *BookStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	ctx, span := s.start(ctx, "delete", attribute.Int64("book.id", id))
	defer span.End()

	query, args, err := s.dialect.Delete(tableBooks).
		Prepared(true).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return false, s.fail(ctx, span, "delete", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, s.fail(ctx, span, "delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, s.fail(ctx, span, "delete", err)
	}
	return affected > 0, nil
}

// Ping reports whether the database is reachable.
func (s *BookStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *BookStore) insert(ctx context.Context, b book.Book) (book.Book, error) {
	ctx, span := s.start(ctx, "insert")
	defer span.End()

	ds := s.dialect.Insert(tableBooks).Prepared(true).Rows(record(b))

	// postgres hands the identity back through RETURNING, the others through LastInsertId.
	if s.system == "postgres" {
		query, args, err := ds.Returning(colID).ToSQL()
		if err != nil {
			return book.Book{}, s.fail(ctx, span, "insert", err)
		}
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&b.ID); err != nil {
			return book.Book{}, s.fail(ctx, span, "insert", err)
		}
	} else {
		query, args, err := ds.ToSQL()
		if err != nil {
			return book.Book{}, s.fail(ctx, span, "insert", err)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return book.Book{}, s.fail(ctx, span, "insert", err)
		}
		if b.ID, err = res.LastInsertId(); err != nil {
			return book.Book{}, s.fail(ctx, span, "insert", err)
		}
	}

	span.SetAttributes(attribute.Int64("book.id", b.ID))
	return b, nil
}

func (s *BookStore) update(ctx context.Context, b book.Book) (book.Book, error) {
	ctx, span := s.start(ctx, "update", attribute.Int64("book.id", b.ID))
	defer span.End()

	query, args, err := s.dialect.Update(tableBooks).
		Prepared(true).
		Set(record(b)).
		Where(goqu.C(colID).Eq(b.ID)).
		ToSQL()
	if err != nil {
		return book.Book{}, s.fail(ctx, span, "update", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return book.Book{}, s.fail(ctx, span, "update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return book.Book{}, s.fail(ctx, span, "update", err)
	}
	if affected == 0 {
		return book.Book{}, book.ErrBookMissing
	}

	return b, nil
}

func (s *BookStore) selectBooks(ctx context.Context, op string, cond exp.Expression) ([]book.Book, error) {
	ctx, span := s.start(ctx, op)
	defer span.End()

	ds := s.dialect.From(tableBooks).
		Prepared(true).
		Select(bookColumns...).
		Order(goqu.C(colID).Asc())
	if cond != nil {
		ds = ds.Where(cond)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, s.fail(ctx, span, op, err)
	}

	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.fail(ctx, span, op, err)
	}

	books := make([]book.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	span.SetAttributes(attribute.Int("db.rows", len(books)))
	return books, nil
}

func (s *BookStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", s.system),
		attribute.String("db.operation", op),
		attribute.String("db.collection.name", tableBooks),
	)
	return s.tracer.Start(ctx, "store.books."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (s *BookStore) fail(ctx context.Context, span trace.Span, op string, err error) error {
	return failSpan(ctx, s.logger, span, tableBooks, op, err)
}

func failSpan(ctx context.Context, logger *slog.Logger, span trace.Span, table, op string, err error) error {
	code := errorCode(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	if code != "" {
		span.SetAttributes(attribute.String("db.response.status_code", code))
	}
	logger.DebugContext(ctx, "database operation failed",
		"table", table,
		"operation", op,
		"code", code,
		"error", err,
	)
	return fmt.Errorf("failed to %s %s: %w", strings.ReplaceAll(op, "_", " "), table, err)
}

func record(b book.Book) goqu.Record {
	rec := goqu.Record{
		colTitle:       b.Title,
		colDescription: b.Description,
		colPublisher:   b.Publisher,
		colISBN:        b.ISBN,
		colAuthorID:    nil,
		colBorrowerID:  nil,
		colStatus:      nil,
	}
	if b.AuthorID != nil {
		rec[colAuthorID] = *b.AuthorID
	}
	if b.BorrowerID != nil {
		rec[colBorrowerID] = *b.BorrowerID
	}
	if b.Status != nil {
		rec[colStatus] = string(*b.Status)
	}
	return rec
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a substring LIKE match using backslash as the escape character.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
