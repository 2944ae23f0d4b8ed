package store

import "errors"

var (
	// ErrCorrupted is returned when the store file cannot be read back:
	// no meta slot validates, or the record log does not parse.
	ErrCorrupted = errors.New("store: data file corrupted")

	// ErrVersionMismatch is returned for a store written with an unsupported
	// format.
	ErrVersionMismatch = errors.New("store: unsupported format version")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)
