package vcommit

import "errors"

var (
	// ErrCorruptVirtualCommit is returned by Load when the staged file is
	// partial, unmarked or fails its digest.
	ErrCorruptVirtualCommit = errors.New("vcommit: corrupt virtual commit")

	// ErrExists is returned when staging while a virtual commit file is
	// already present.
	ErrExists = errors.New("vcommit: virtual commit already exists")

	// ErrInvalidTransition is returned for a flush state change that the
	// state machine does not allow.
	ErrInvalidTransition = errors.New("vcommit: invalid state transition")
)
