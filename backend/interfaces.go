package backend

import (
	"context"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// ParseResult is the extracted content of one document file.
type ParseResult struct {
	Text     string
	Metadata map[string]string
}

// Parser extracts plain text and metadata from downloaded files.
type Parser interface {
	// Parse extracts the content of the file at path. Transport failures
	// and server errors are transient; unsupported or corrupt input is
	// permanent.
	Parse(ctx context.Context, path string) (*ParseResult, error)

	// SupportedFormats lists file extensions the parser accepts.
	SupportedFormats() []string

	// IsAvailable reports whether the parsing service is reachable.
	IsAvailable(ctx context.Context) bool
}

// Archiver stores the original document files in a long-term archive.
type Archiver interface {
	// Archive submits a document for archival and returns an archive
	// task ID that Verify can later poll.
	Archive(ctx context.Context, task *core.DocumentTask) (string, error)

	// Verify blocks until the archive task completes, fails, or the
	// timeout elapses.
	Verify(ctx context.Context, archiveID string, timeout time.Duration) error
}

// IngestRequest carries one parsed document into the vector store.
type IngestRequest struct {
	Source      string
	DocumentID  string
	SourceURL   string
	Title       string
	ContentHash string
	Text        string
	Metadata    map[string]string
}

// IngestResult reports what an ingestion did.
type IngestResult struct {
	DocumentID   string
	ChunkCount   int
	Deduplicated bool
}

// Ingestor chunks, embeds, and stores parsed documents.
type Ingestor interface {
	// Ingest writes one document into the store. The write is atomic per
	// document: on error no chunk of the document remains stored.
	Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error)
}
