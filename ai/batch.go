package ai

import (
	"context"
	"log/slog"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// DefaultBatchSize bounds how many texts go to the embedding service in one
// request when no batch size is configured.
const DefaultBatchSize = 32

// Batch is one bounded group of texts sent to the embedder together.
// Start is the offset of the batch's first text within the original input.
type Batch struct {
	Start int
	Texts []string
}

// BatchResult is the explicit outcome of embedding one batch. A failed batch
// carries no vectors at all; partial results within a batch do not exist.
type BatchResult struct {
	Start   int
	Vectors [][]float32
	Err     error
}

// BatchClient wraps an Embedder with batching, order preservation, and
// dimension validation against the deployment-wide configured dimension.
type BatchClient struct {
	embedder  Embedder
	batchSize int
	dimension int
	logger    *slog.Logger
}

// Option configures a BatchClient.
type Option func(*BatchClient)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *BatchClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewBatchClient creates a batching embedding client. dimension is the
// expected width of every returned vector; batchSize defaults to
// DefaultBatchSize when non-positive.
func NewBatchClient(embedder Embedder, batchSize, dimension int, opts ...Option) (*BatchClient, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if dimension <= 0 {
		return nil, ErrDimensionRequired
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	c := &BatchClient{
		embedder:  embedder,
		batchSize: batchSize,
		dimension: dimension,
		logger:    slog.Default().With("component", "batch-embedder"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dimension returns the configured embedding dimension.
func (c *BatchClient) Dimension() int { return c.dimension }

// BatchSize returns the effective batch size.
func (c *BatchClient) BatchSize() int { return c.batchSize }

// SplitBatches partitions texts into groups of at most the batch size,
// preserving order. The caller drives each batch through EmbedBatch so it
// can retry at batch granularity.
func (c *BatchClient) SplitBatches(texts []string) []Batch {
	if len(texts) == 0 {
		return nil
	}
	batches := make([]Batch, 0, (len(texts)+c.batchSize-1)/c.batchSize)
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, Batch{Start: start, Texts: texts[start:end]})
	}
	return batches
}

// EmbedBatch embeds one batch and returns an explicit result value. Network
// and service failures come back transient; a count or dimension mismatch is
// a configuration problem and comes back permanent.
func (c *BatchClient) EmbedBatch(ctx context.Context, batch Batch) BatchResult {
	vectors, err := c.embedder.EmbedTexts(ctx, batch.Texts)
	if err != nil {
		c.logger.Warn("embedding batch failed", "start", batch.Start, "size", len(batch.Texts), "err", err)
		return BatchResult{Start: batch.Start, Err: classifyEmbedError(err)}
	}
	if len(vectors) != len(batch.Texts) {
		return BatchResult{
			Start: batch.Start,
			Err: core.Permanentf("embedding count mismatch: expected %d, got %d",
				len(batch.Texts), len(vectors)),
		}
	}
	for i, vec := range vectors {
		if len(vec) != c.dimension {
			return BatchResult{
				Start: batch.Start,
				Err: core.Permanentf("%w: text %d: want %d, got %d",
					core.ErrDimensionMismatch, batch.Start+i, c.dimension, len(vec)),
			}
		}
	}
	return BatchResult{Start: batch.Start, Vectors: vectors}
}

// EmbedAll embeds every text in order, batch by batch. The first failed
// batch aborts the call; no partial vector set is ever returned.
func (c *BatchClient) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for _, batch := range c.SplitBatches(texts) {
		result := c.EmbedBatch(ctx, batch)
		if result.Err != nil {
			return nil, result.Err
		}
		copy(out[batch.Start:], result.Vectors)
	}
	return out, nil
}

// classifyEmbedError treats embedder transport failures as transient unless
// the error already carries a classification.
func classifyEmbedError(err error) error {
	if core.IsPermanent(err) || core.IsResource(err) || core.IsTransient(err) {
		return err
	}
	return core.Transient(err)
}
