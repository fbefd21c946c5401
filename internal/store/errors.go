package store

import "errors"

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrTransient marks lock timeouts, serialization failures and deadlocks.
	// The request may succeed if retried.
	ErrTransient = errors.New("transient storage failure")
	// ErrDuplicateID means a row with the same primary key already exists.
	ErrDuplicateID = errors.New("duplicate id")
)
