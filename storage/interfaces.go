package storage

import (
	"context"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// Query describes one similarity search. Vector is required; Source narrows
// the search to one partition; Metadata entries must all match a record's
// metadata for it to qualify.
type Query struct {
	Vector   []float32
	TopK     int
	Source   string
	Metadata map[string]string
}

// VectorRepository is durable, partitioned storage of chunk embeddings with
// similarity search. Implementations must be safe for concurrent use across
// jobs; partition-level isolation is sufficient, no global lock is required.
type VectorRepository interface {
	// Upsert writes records, replacing any existing row that shares
	// (Source, DocumentID, ChunkIndex). Vectors are validated against the
	// configured dimension before anything is written.
	Upsert(ctx context.Context, records ...*core.VectorRecord) error

	// Search returns up to TopK records ordered by descending cosine
	// similarity, ties broken by most recent ingestion timestamp.
	Search(ctx context.Context, query Query) ([]*core.SearchResult, error)

	// DeleteBySource purges an entire partition, index included.
	DeleteBySource(ctx context.Context, source string) error

	// DeleteDocument removes every row of one document within a partition.
	// Used to discard partial writes when an ingest fails midway.
	DeleteDocument(ctx context.Context, source, documentID string) error

	// FindDocumentByHash returns the document ID stored under a content
	// hash, or ErrNotFound. Catches byte-identical content reached via
	// different URLs.
	FindDocumentByHash(ctx context.Context, source, hash string) (string, error)

	// UpdateDocumentMetadata replaces the metadata of every row of one
	// document without touching vectors or text.
	UpdateDocumentMetadata(ctx context.Context, source, documentID string, metadata map[string]string) error

	// GetDocument returns the stored rows of one document ordered by chunk
	// index. Missing documents return an empty slice.
	GetDocument(ctx context.Context, source, documentID string) ([]*core.VectorRecord, error)

	// Sources lists the partitions currently present.
	Sources(ctx context.Context) ([]string, error)

	// Count returns the number of rows in one partition.
	Count(ctx context.Context, source string) (int, error)

	// Close releases the storage backend.
	Close() error
}

// RecordIterator visits stored records partition by partition. Used by bulk
// maintenance such as reindexing.
type RecordIterator interface {
	// Next returns the next batch of at most limit records, or an empty
	// slice when exhausted.
	Next(ctx context.Context, limit int) ([]*core.VectorRecord, error)
}
