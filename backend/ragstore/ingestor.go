package ragstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/chunker"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
)

const defaultConcurrency = 4

// Ingestor chunks a parsed document, embeds the chunks in concurrent
// batches, and stores the resulting records. Writes are atomic per document:
// any failure removes everything the document had written.
type Ingestor struct {
	chunker       *chunker.Chunker
	batchClient   *ai.BatchClient
	repository    storage.VectorRepository
	embeddingPool *ants.Pool
	logger        *slog.Logger
}

var _ backend.Ingestor = (*Ingestor)(nil)

// Option configures the Ingestor.
type Option func(*Ingestor)

// WithLogger sets the ingestor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ing *Ingestor) {
		ing.logger = logger.With("component", "ragstore")
	}
}

// NewIngestor creates an Ingestor. Concurrency bounds the number of
// embedding batches in flight at once.
func NewIngestor(ch *chunker.Chunker, batchClient *ai.BatchClient, repository storage.VectorRepository, concurrency int, opts ...Option) (*Ingestor, error) {
	if ch == nil {
		return nil, errors.New("chunker is required")
	}
	if batchClient == nil {
		return nil, errors.New("batch client is required")
	}
	if repository == nil {
		return nil, errors.New("repository is required")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	ing := &Ingestor{
		chunker:       ch,
		batchClient:   batchClient,
		repository:    repository,
		embeddingPool: pool,
		logger:        slog.Default().With("component", "ragstore"),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

// Release releases the embedding worker pool.
// The ingestor should not be used after calling Release.
func (ing *Ingestor) Release() {
	if ing.embeddingPool != nil {
		ing.embeddingPool.Release()
	}
}

// Ingest writes one document into the vector store. A content hash already
// present in the partition means the document body is unchanged, so only its
// metadata is refreshed and no embedding happens.
func (ing *Ingestor) Ingest(ctx context.Context, req *backend.IngestRequest) (*backend.IngestResult, error) {
	if req.Source == "" {
		return nil, core.ErrEmptySource
	}
	if req.DocumentID == "" {
		return nil, core.ErrEmptyDocumentID
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, core.Permanent(backend.ErrEmptyText)
	}

	if req.ContentHash != "" {
		existing, err := ing.repository.FindDocumentByHash(ctx, req.Source, req.ContentHash)
		if err == nil {
			ing.logger.Info("content unchanged, refreshing metadata",
				"source", req.Source, "document_id", existing)
			if err := ing.repository.UpdateDocumentMetadata(ctx, req.Source, existing, ing.recordMetadata(req)); err != nil {
				return nil, err
			}
			return &backend.IngestResult{DocumentID: existing, Deduplicated: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	chunks := ing.chunker.Split(req.Text)
	if len(chunks) == 0 {
		return nil, core.Permanent(backend.ErrEmptyText)
	}

	vectors, err := ing.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	// Replace any previous version of the document wholesale: rows past the
	// new chunk count and the superseded hash index entry must not survive.
	if err := ing.repository.DeleteDocument(ctx, req.Source, req.DocumentID); err != nil {
		return nil, fmt.Errorf("removing previous document version: %w", err)
	}

	records := ing.buildRecords(req, chunks, vectors)
	if err := ing.repository.Upsert(ctx, records...); err != nil {
		// Roll back whatever landed so a half-written document never
		// serves search results.
		if delErr := ing.repository.DeleteDocument(ctx, req.Source, req.DocumentID); delErr != nil {
			ing.logger.Error("rollback after failed upsert failed",
				"source", req.Source, "document_id", req.DocumentID, "err", delErr)
		}
		return nil, err
	}

	ing.logger.Info("document ingested",
		"source", req.Source, "document_id", req.DocumentID, "chunks", len(records))
	return &backend.IngestResult{DocumentID: req.DocumentID, ChunkCount: len(records)}, nil
}

// embedChunks runs the embedding batches on the worker pool and collects
// vectors in chunk order. Any batch failure fails the whole document.
func (ing *Ingestor) embedChunks(ctx context.Context, chunks []core.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	batches := ing.batchClient.SplitBatches(texts)
	results := make([]ai.BatchResult, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		err := ing.embeddingPool.Submit(func() {
			defer wg.Done()
			results[i] = ing.batchClient.EmbedBatch(ctx, batch)
		})
		if err != nil {
			wg.Done()
			results[i] = ai.BatchResult{Start: batch.Start, Err: err}
		}
	}
	wg.Wait()

	vectors := make([][]float32, 0, len(texts))
	for _, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("embedding chunks %d..%d: %w",
				result.Start, result.Start+ing.batchClient.BatchSize()-1, result.Err)
		}
		vectors = append(vectors, result.Vectors...)
	}
	if len(vectors) != len(texts) {
		return nil, core.Permanentf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func (ing *Ingestor) buildRecords(req *backend.IngestRequest, chunks []core.Chunk, vectors [][]float32) []*core.VectorRecord {
	now := time.Now().UTC()
	metadata := ing.recordMetadata(req)

	records := make([]*core.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = &core.VectorRecord{
			Source:      req.Source,
			DocumentID:  req.DocumentID,
			ChunkIndex:  chunk.Index,
			Text:        chunk.Text,
			Heading:     chunk.Heading,
			Vector:      vectors[i],
			Metadata:    metadata,
			ContentHash: req.ContentHash,
			IngestedAt:  now,
		}
	}
	return records
}

func (ing *Ingestor) recordMetadata(req *backend.IngestRequest) map[string]string {
	metadata := make(map[string]string, len(req.Metadata)+2)
	for key, value := range req.Metadata {
		metadata[key] = value
	}
	if req.Title != "" {
		metadata["title"] = req.Title
	}
	if req.SourceURL != "" {
		metadata["source_url"] = req.SourceURL
	}
	return metadata
}
