package storage

import "errors"

var (
	// ErrNotFound indicates a lookup matched no stored record.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates the backing store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrEmptyQuery indicates a search was issued without a query vector.
	ErrEmptyQuery = errors.New("query vector is empty")

	// ErrSerialization indicates a record could not be encoded or decoded.
	ErrSerialization = errors.New("record serialization failed")
)
