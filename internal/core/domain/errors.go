package domain

import "errors"

var (
	// ErrTransient marks a cache or store that was unreachable or timed out.
	ErrTransient = errors.New("transient tier failure")
	// ErrInconsistentState marks tiers that disagree and need a re-sync.
	ErrInconsistentState = errors.New("inconsistent tier state")
	// ErrInvalidInput marks a malformed identifier, rejected before any tier access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a user unknown to the durable store.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a role change that would not change anything.
	ErrConflict = errors.New("conflict")
)
