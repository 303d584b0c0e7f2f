package backend

import "errors"

var (
	// ErrEmptyText indicates a document produced no text to ingest.
	ErrEmptyText = errors.New("document has no text content")

	// ErrVerifyTimeout indicates an archive task did not complete within
	// the verification window.
	ErrVerifyTimeout = errors.New("archive verification timed out")

	// ErrArchiveRejected indicates the archive reported a failed task.
	ErrArchiveRejected = errors.New("archive rejected document")
)
