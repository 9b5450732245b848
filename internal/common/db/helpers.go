package db

import (
	"database/sql"
	"errors"
)

// IsNoRows reports whether err wraps sql.ErrNoRows, as returned by Row.Scan for an empty result.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
