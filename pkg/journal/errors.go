package journal

import "errors"

var (
	// ErrEraLimitExceeded is returned by Push when the journal already holds
	// the maximum number of eras.
	ErrEraLimitExceeded = errors.New("journal: era limit exceeded")

	// ErrNothingToRollback is returned by Pop on an empty journal.
	ErrNothingToRollback = errors.New("journal: nothing to rollback")

	// ErrCorruptEra is returned when an era file fails validation.
	ErrCorruptEra = errors.New("journal: corrupt era")
)
