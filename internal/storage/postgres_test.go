package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/yourname/babylog/internal"
)

func TestMapPgErrorClassifiesCodes(t *testing.T) {
	// A unique violation on the open-session index is the losing side of a
	// concurrent start and must surface as a conflict.
	uniq := &pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "idx_events_open_sleep"`}
	assert.True(t, internal.IsConflict(mapPgError("create event", uniq)))

	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := mapPgError("update event", &pgconn.PgError{Code: code, Message: "contended"})
		assert.True(t, internal.IsConcurrentUpdate(err), "code %s", code)
	}

	var storageErr *internal.StorageError
	err := mapPgError("list events", errors.New("connection reset"))
	assert.True(t, errors.As(err, &storageErr))
}
