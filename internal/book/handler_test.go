package book

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookservice/internal/history"
)

type handlerFixture struct {
	server    *httptest.Server
	repo      *MemoryRepository
	authors   *fakeChecker
	borrowers *fakeChecker
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		repo:      NewMemoryRepository(),
		authors:   newFakeChecker(3),
		borrowers: newFakeChecker(5),
	}
	svc := NewService(f.repo, f.authors, f.borrowers, WithHistory(history.NewMemoryStore()))
	f.server = httptest.NewServer(NewHandler(svc, nil).Routes())
	t.Cleanup(f.server.Close)
	return f
}

func newFailingServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := NewService(failingRepository{}, newFakeChecker(), newFakeChecker(), WithHistory(failingHistory{}))
	server := httptest.NewServer(NewHandler(svc, nil).Routes())
	t.Cleanup(server.Close)
	return server
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	return doRequest(t, f.server, method, path, body)
}

func doRequest(t *testing.T, server *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func decodeError(t *testing.T, body string) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &e))
	return e
}

const alchemist = `{
	"title": "The Alchemist",
	"description": "A shepherd boy travels to Egypt",
	"publisher": "HarperOne",
	"isbn": "978-0062315007",
	"authorId": 3
}`

func TestAlchemistScenario(t *testing.T) {
	f := newHandlerFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/books", alchemist)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var created Book
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, int64(1), created.ID)
	require.NotNil(t, created.AuthorID)
	assert.Equal(t, int64(3), *created.AuthorID)
	assert.Nil(t, created.BorrowerID)
	assert.Nil(t, created.Status)
	assert.Contains(t, body, `"status":null`)

	resp, body = f.do(t, http.MethodGet, "/api/books/author/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byAuthor []Book
	require.NoError(t, json.Unmarshal([]byte(body), &byAuthor))
	assert.Equal(t, []int64{1}, ids(byAuthor))

	resp, body = f.do(t, http.MethodPut, "/api/books/author/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Books updated successfully", body)

	resp, _ = f.do(t, http.MethodGet, "/api/books/author/3", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/books/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched Book
	require.NoError(t, json.Unmarshal([]byte(body), &fetched))
	assert.Nil(t, fetched.AuthorID)
	assert.Equal(t, "The Alchemist", fetched.Title)

	resp, body = f.do(t, http.MethodPut, "/api/books/author/3", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "books-not-found", e.Code)
	assert.Equal(t, "Books with the author id=3 not found", e.Message)
}

func TestCreateBookUnknownAuthor(t *testing.T) {
	f := newHandlerFixture(t)

	payload := strings.Replace(alchemist, `"authorId": 3`, `"authorId": 4`, 1)
	resp, body := f.do(t, http.MethodPost, "/api/books", payload)

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "author-not-found", e.Code)
	assert.Equal(t, "Author with id=4 not found", e.Message)

	resp, _ = f.do(t, http.MethodGet, "/api/books", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateBookUnknownBorrower(t *testing.T) {
	f := newHandlerFixture(t)

	payload := strings.Replace(alchemist, `"authorId": 3`, `"authorId": 3, "borrowerId": 6`, 1)
	resp, body := f.do(t, http.MethodPost, "/api/books", payload)

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "borrower-not-found", e.Code)
	assert.Equal(t, "Borrower with id=6 not found", e.Message)
}

func TestCreateBookRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
		fields   []string
	}{
		{name: "malformed json", payload: `{"title": `, wantCode: "invalid-request"},
		{name: "wrong type", payload: `{"title": "x", "authorId": "three"}`, wantCode: "invalid-request"},
		{name: "trailing data", payload: alchemist + `garbage`, wantCode: "invalid-request"},
		{name: "second object", payload: alchemist + alchemist, wantCode: "invalid-request"},
		{
			name:     "oversized body",
			payload:  strings.Replace(alchemist, `"The Alchemist"`, `"`+strings.Repeat("a", maxPayloadBytes)+`"`, 1),
			wantCode: "invalid-request",
		},
		{
			name:     "blank title",
			payload:  strings.Replace(alchemist, `"The Alchemist"`, `"  "`, 1),
			wantCode: "invalid-book",
			fields:   []string{"title"},
		},
		{
			name:     "unknown status",
			payload:  strings.Replace(alchemist, `"authorId": 3`, `"status": "MISPLACED"`, 1),
			wantCode: "invalid-book",
			fields:   []string{"status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)

			resp, body := f.do(t, http.MethodPost, "/api/books", tt.payload)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
			e := decodeError(t, body)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.fields, e.Fields)
			assert.Empty(t, f.authors.Calls())
		})
	}
}

func TestGetBook(t *testing.T) {
	f := newHandlerFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/books/7", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "book-not-found", e.Code)
	assert.Equal(t, "Book with id=7 not found", e.Message)

	resp, body = f.do(t, http.MethodGet, "/api/books/seven", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid-request", decodeError(t, body).Code)
}

func TestUpdateBook(t *testing.T) {
	f := newHandlerFixture(t)
	_, _ = f.do(t, http.MethodPost, "/api/books", alchemist)

	replacement := `{
		"title": "O Alquimista",
		"description": "Portuguese edition",
		"publisher": "Rocco",
		"isbn": "978-8532511010",
		"borrowerId": 5,
		"status": "BORROWED"
	}`
	resp, body := f.do(t, http.MethodPut, "/api/books/1", replacement)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var updated Book
	require.NoError(t, json.Unmarshal([]byte(body), &updated))
	assert.Equal(t, int64(1), updated.ID)
	assert.Equal(t, "O Alquimista", updated.Title)
	assert.Nil(t, updated.AuthorID)
	require.NotNil(t, updated.Status)
	assert.Equal(t, StatusBorrowed, *updated.Status)

	resp, body = f.do(t, http.MethodPut, "/api/books/2", replacement)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "book-not-found", decodeError(t, body).Code)

	missingAuthor := strings.Replace(alchemist, `"authorId": 3`, `"authorId": 12`, 1)
	resp, body = f.do(t, http.MethodPut, "/api/books/2", missingAuthor)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "author-not-found", decodeError(t, body).Code)
}

func TestDeleteBookEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	_, _ = f.do(t, http.MethodPost, "/api/books", alchemist)

	resp, body := f.do(t, http.MethodDelete, "/api/books/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, body)

	resp, _ = f.do(t, http.MethodDelete, "/api/books/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/books/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/books/999", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/books/999/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "no history for a book that never existed")
}

func TestListBooksQueries(t *testing.T) {
	f := newHandlerFixture(t)
	_, _ = f.do(t, http.MethodPost, "/api/books", alchemist)
	_, _ = f.do(t, http.MethodPost, "/api/books",
		`{"title": "Dune", "description": "Spice", "publisher": "Ace", "isbn": "978-0441013593"}`)

	tests := []struct {
		query  string
		status int
		ids    []int64
	}{
		{query: "", status: http.StatusOK, ids: []int64{1, 2}},
		{query: "?title=Alchem", status: http.StatusOK, ids: []int64{1}},
		{query: "?title=Zzz", status: http.StatusNoContent},
		{query: "?publisher=Ace", status: http.StatusOK, ids: []int64{2}},
		{query: "?publisher=ace", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := f.do(t, http.MethodGet, "/api/books"+tt.query, "")
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusNoContent {
				assert.Empty(t, body)
				return
			}
			var books []Book
			require.NoError(t, json.Unmarshal([]byte(body), &books))
			assert.Equal(t, tt.ids, ids(books))
		})
	}

	resp, body := f.do(t, http.MethodGet, "/api/books?title=a&publisher=Ace", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid-request", decodeError(t, body).Code)
}

func TestDetachBorrowerEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	payload := strings.Replace(alchemist, `"authorId": 3`, `"borrowerId": 5`, 1)
	_, _ = f.do(t, http.MethodPost, "/api/books", payload)

	resp, body := f.do(t, http.MethodGet, "/api/books/borrower/5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = f.do(t, http.MethodPut, "/api/books/borrower/5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Books updated successfully", body)

	resp, body = f.do(t, http.MethodPut, "/api/books/borrower/5", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Books with the borrower id=5 not found", decodeError(t, body).Message)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/books/1/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, _ = f.do(t, http.MethodPost, "/api/books", alchemist)
	_, _ = f.do(t, http.MethodPut, "/api/books/author/3", "")

	resp, body := f.do(t, http.MethodGet, "/api/books/1/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []history.Event
	require.NoError(t, json.Unmarshal([]byte(body), &events))
	require.Len(t, events, 2)
	assert.Equal(t, history.BookCreated, events[0].Type)
	assert.Equal(t, history.AuthorDetached, events[1].Type)
}

func TestHandlerStoreFailures(t *testing.T) {
	server := newFailingServer(t)

	tests := []struct {
		method, path, body string
		status             int
		emptyBody          bool
	}{
		{method: http.MethodGet, path: "/api/books", status: http.StatusInternalServerError},
		{method: http.MethodGet, path: "/api/books/1", status: http.StatusInternalServerError},
		{method: http.MethodPut, path: "/api/books/1", body: `{"title":"t","description":"d","publisher":"p","isbn":"i"}`, status: http.StatusInternalServerError},
		{method: http.MethodPut, path: "/api/books/author/1", status: http.StatusInternalServerError},
		{method: http.MethodGet, path: "/api/books/1/history", status: http.StatusInternalServerError},
		{method: http.MethodPost, path: "/api/books", body: `{"title":"t","description":"d","publisher":"p","isbn":"i"}`, status: http.StatusInternalServerError, emptyBody: true},
		{method: http.MethodDelete, path: "/api/books/1", status: http.StatusInternalServerError, emptyBody: true},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, body := doRequest(t, server, tt.method, tt.path, tt.body)

			require.Equal(t, tt.status, resp.StatusCode)
			if tt.emptyBody {
				assert.Empty(t, body)
				return
			}
			e := decodeError(t, body)
			assert.Equal(t, "internal-error", e.Code)
			assert.Equal(t, "internal server error", e.Message)
			assert.NotContains(t, body, errStoreDown.Error())
		})
	}
}
