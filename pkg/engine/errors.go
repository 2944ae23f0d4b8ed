package engine

import (
	"errors"
	"fmt"

	"github.com/marmos91/eradb/pkg/journal"
	"github.com/marmos91/eradb/pkg/vcommit"
)

var (
	// ErrInvalidOptions is returned by Open for options that fail validation.
	ErrInvalidOptions = errors.New("engine: invalid options")

	// ErrEmptyBatch is returned by Commit for a nil or empty batch.
	ErrEmptyBatch = errors.New("engine: empty batch")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine: closed")

	// ErrDatabaseLocked is returned by Open when another process holds the
	// database directory.
	ErrDatabaseLocked = errors.New("engine: database is locked by another process")

	// ErrFlushInProgress is returned by TryFlush while a flush is running.
	ErrFlushInProgress = errors.New("engine: flush in progress")

	// ErrIO wraps storage failures of the journal, the virtual commit or the
	// mapped store.
	ErrIO = errors.New("engine: i/o error")
)

// Errors surfaced from the lower layers.
var (
	ErrEraLimitExceeded     = journal.ErrEraLimitExceeded
	ErrNothingToRollback    = journal.ErrNothingToRollback
	ErrCorruptEra           = journal.ErrCorruptEra
	ErrCorruptVirtualCommit = vcommit.ErrCorruptVirtualCommit
)

func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}
