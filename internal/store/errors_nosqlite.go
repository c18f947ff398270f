//go:build !cgo

package store

// sqliteErrorCode never matches without cgo: go-sqlite3 is a stub then and
// cannot produce sqlite3.Error values.
func sqliteErrorCode(err error) (string, bool) {
	return "", false
}
