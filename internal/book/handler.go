// internal/book/handler.go
package book

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxPayloadBytes = 1 << 20

const detachedMessage = "Books updated successfully"

// ErrorResponse is the body of every JSON error reply.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the book routes on r under /api/books.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)

		r.Get("/author/{id}", h.handleListByAuthor)
		r.Put("/author/{id}", h.handleDetachAuthor)
		r.Get("/borrower/{id}", h.handleListByBorrower)
		r.Put("/borrower/{id}", h.handleDetachBorrower)

		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/history", h.handleHistory)
	})
}

// Routes returns a router serving only the book routes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	_, hasTitle := query["title"]
	_, hasPublisher := query["publisher"]

	var (
		books []Book
		err   error
	)
	switch {
	case hasTitle && hasPublisher:
		h.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid-request",
			Message: "title and publisher cannot be combined",
		})
		return
	case hasPublisher:
		books, err = h.service.ListByPublisher(r.Context(), query.Get("publisher"))
	case hasTitle:
		title := query.Get("title")
		books, err = h.service.ListBooks(r.Context(), &title)
	default:
		books, err = h.service.ListBooks(r.Context(), nil)
	}
	if err != nil {
		h.internalError(w, r, "failed to list books", err)
		return
	}

	h.writeList(w, books)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	b, found, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to get book", err)
		return
	}
	if !found {
		h.writeNotFound(w, &NotFoundError{Entity: EntityBook, ID: id})
		return
	}

	h.writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	candidate, ok := h.decodeBook(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreateBook(r.Context(), candidate)
	var notFound *NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.writeNotFound(w, notFound)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "failed to create book",
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	replacement, ok := h.decodeBook(w, r)
	if !ok {
		return
	}

	updated, found, err := h.service.UpdateBook(r.Context(), id, replacement)
	var notFound *NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.writeNotFound(w, notFound)
		return
	case err != nil:
		h.internalError(w, r, "failed to update book", err)
		return
	case !found:
		h.writeNotFound(w, &NotFoundError{Entity: EntityBook, ID: id})
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete book",
			"request_id", chimw.GetReqID(r.Context()),
			"book_id", id,
			"error", err,
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListByAuthor(w http.ResponseWriter, r *http.Request) {
	h.listByReference(w, r, h.service.ListByAuthor)
}

func (h *Handler) handleListByBorrower(w http.ResponseWriter, r *http.Request) {
	h.listByReference(w, r, h.service.ListByBorrower)
}

func (h *Handler) handleDetachAuthor(w http.ResponseWriter, r *http.Request) {
	h.detach(w, r, EntityAuthor, h.service.DetachAuthor)
}

func (h *Handler) handleDetachBorrower(w http.ResponseWriter, r *http.Request) {
	h.detach(w, r, EntityBorrower, h.service.DetachBorrower)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to load book history", err)
		return
	}
	if len(events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) listByReference(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, id int64) ([]Book, error),
) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	books, err := list(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to list books", err)
		return
	}

	h.writeList(w, books)
}

func (h *Handler) detach(
	w http.ResponseWriter,
	r *http.Request,
	kind Entity,
	detach func(ctx context.Context, id int64) ([]Book, error),
) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := detach(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "failed to detach books", err)
		return
	}
	if len(updated) == 0 {
		h.writeError(w, http.StatusNotFound, ErrorResponse{
			Code:    "books-not-found",
			Message: "Books with the " + string(kind) + " id=" + strconv.FormatInt(id, 10) + " not found",
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(detachedMessage))
}

// pathID parses the {id} URL parameter, replying 400 when it is not an integer.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid-request",
			Message: "invalid id " + strconv.Quote(raw),
		})
		return 0, false
	}
	return id, true
}

// decodeBook reads and validates a book payload, replying 400 on failure.
func (h *Handler) decodeBook(w http.ResponseWriter, r *http.Request) (Book, bool) {
	var b Book
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err := dec.Decode(&b); err != nil || dec.More() {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid-request",
			Message: "malformed book payload",
		})
		return Book{}, false
	}

	var invalid *ValidationError
	if err := b.Validate(); errors.As(err, &invalid) {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    "invalid-book",
			Message: invalid.Error(),
			Fields:  invalid.Fields,
		})
		return Book{}, false
	}

	return b, true
}

func (h *Handler) writeList(w http.ResponseWriter, books []Book) {
	if len(books) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handler) writeNotFound(w http.ResponseWriter, err *NotFoundError) {
	h.writeError(w, http.StatusNotFound, ErrorResponse{Code: err.Code(), Message: err.Message()})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", chimw.GetReqID(r.Context()),
		"error", err,
	)
	h.writeError(w, http.StatusInternalServerError, ErrorResponse{
		Code:    "internal-error",
		Message: "internal server error",
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}
