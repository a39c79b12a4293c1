// Package common defines shared sentinel errors used across the upload
// pipeline. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrSessionNotFound = errors.New("session not found")

	// Coordinator contract violations. These are the only errors that
	// propagate to the caller as hard failures; item-level errors are
	// captured into the item state instead.
	ErrSessionFinalized = errors.New("session already finalized")
	ErrSessionRunning   = errors.New("session already running")
	ErrNoSession        = errors.New("no active session")
	ErrItemNotFound     = errors.New("item not found")
)
