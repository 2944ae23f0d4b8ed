package batch

import "errors"

var (
	// ErrCorrupt is returned when an encoded batch cannot be decoded.
	ErrCorrupt = errors.New("batch: corrupt encoding")

	// ErrEmptyKey is returned for a zero-length key.
	ErrEmptyKey = errors.New("batch: empty key")

	// ErrKeyTooLarge is returned for keys longer than MaxKeySize.
	ErrKeyTooLarge = errors.New("batch: key too large")

	// ErrValueTooLarge is returned for values longer than MaxValueSize.
	ErrValueTooLarge = errors.New("batch: value too large")
)
