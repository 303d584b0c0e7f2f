package ai

import "errors"

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionRequired is returned when no embedding dimension is configured.
	ErrDimensionRequired = errors.New("embedding dimension required")
)
