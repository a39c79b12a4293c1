// Package models defines the upload pipeline data types: source files,
// per-item upload state and sessions with their derived aggregates.
package models

import "fmt"

// Status is the lifecycle state of an UploadItem.
//
// Allowed transitions:
//
//	Pending -> Compressing -> Uploading -> Succeeded
//	Uploading -> Retrying -> Uploading
//	Uploading -> Failed
//	any non-terminal -> Aborted
//
// Succeeded, Failed and Aborted are terminal: once reached, the item must
// not be mutated again.
type Status int

const (
	// StatusPending means the item was created but processing has not started.
	StatusPending Status = iota
	// StatusCompressing means the compression worker is running.
	StatusCompressing
	// StatusUploading means a transport attempt is in flight.
	StatusUploading
	// StatusRetrying means the last attempt failed and a backoff wait is pending.
	StatusRetrying
	// StatusSucceeded means a transport tier accepted the file.
	StatusSucceeded
	// StatusFailed means every transport tier exhausted its attempt budget.
	StatusFailed
	// StatusAborted means the item was canceled before completion.
	StatusAborted
)

// String returns the stored/displayed form of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompressing:
		return "compressing"
	case StatusUploading:
		return "uploading"
	case StatusRetrying:
		return "retrying"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ParseStatus maps the stored string form back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "compressing":
		return StatusCompressing, nil
	case "uploading":
		return StatusUploading, nil
	case "retrying":
		return StatusRetrying, nil
	case "succeeded":
		return StatusSucceeded, nil
	case "failed":
		return StatusFailed, nil
	case "aborted":
		return StatusAborted, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// Terminal reports whether the status allows no further mutation.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// SourceFile describes the original bytes of one user-selected file.
// Immutable once created.
type SourceFile struct {
	Name string
	Path string
	Size int64
	MIME string
}

// UploadItem tracks one file's journey through the pipeline. The ID is
// generated client-side, is unique within a session and serves as the
// idempotency key for retries.
type UploadItem struct {
	ID       string
	Source   SourceFile
	Status   Status
	Progress int
	Attempt  int

	// RemoteID and RemoteURL are set if and only if Status is Succeeded.
	RemoteID  string
	RemoteURL string

	// Error holds the last failure reason. It is retained across later
	// attempts and cleared only on success.
	Error string

	// CompressionApplied is true only when the policy selected a profile
	// and the worker completed without falling back to the original bytes.
	CompressionApplied bool
}

// Clone returns a copy safe to hand to callbacks and external readers.
func (i *UploadItem) Clone() *UploadItem {
	c := *i
	return &c
}
