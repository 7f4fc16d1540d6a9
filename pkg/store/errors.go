package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotConnected is returned by every Store operation invoked on a
// zero-value Store. Operations on a closed Store return the pool's own
// error instead.
var ErrNotConnected = errors.New("store: not connected")

// ErrNotFound is returned by read paths that find no matching row.
var ErrNotFound = errors.New("store: not found")

// translateNoRows maps pgx's no-rows sentinel to the package's own
// ErrNotFound so callers never need to import pgx directly.
func translateNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
