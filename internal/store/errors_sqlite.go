//go:build cgo

package store

import (
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3"
)

// sqliteErrorCode returns the SQLite result code carried by err, if any.
func sqliteErrorCode(err error) (string, bool) {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(int(liteErr.Code)), true
	}
	return "", false
}
