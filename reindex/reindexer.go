// Package reindex re-embeds every stored chunk, for example after switching
// embedding models. Records keep their text, metadata, and identity; only
// vectors change.
package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/progress"
	"github.com/nkissick-del/ragflow-scraper-sub000/retry"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// Retry is the retry policy for embedding and storage calls
	Retry retry.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		Retry:          retry.DefaultConfig(),
	}
}

// Reindexer orchestrates re-embedding of all stored records.
type Reindexer struct {
	repository  storage.VectorRepository
	iterator    storage.RecordIterator
	batchClient *ai.BatchClient
	config      *Config
	progress    io.Writer
	logger      *slog.Logger
}

// New creates a Reindexer.
// progressWriter: where to write progress output (typically os.Stderr)
func New(repository storage.VectorRepository, iterator storage.RecordIterator, batchClient *ai.BatchClient, config *Config, progressWriter io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reindexer{
		repository:  repository,
		iterator:    iterator,
		batchClient: batchClient,
		config:      config,
		progress:    progressWriter,
		logger:      slog.Default().With("component", "reindex"),
	}
}

// Run re-embeds every record in the store, batch by batch. A batch that
// keeps failing after retries aborts the run; batches already written stay
// written.
func (r *Reindexer) Run(ctx context.Context) error {
	total, err := r.countRecords(ctx)
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records to reindex\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Reindexing %d records (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := progress.NewTracker(r.progress, "records", total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	for {
		batch, err := r.iterator.Next(ctx, r.config.BatchSize)
		if err != nil {
			return fmt.Errorf("reading batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := r.processBatch(ctx, batch); err != nil {
			return fmt.Errorf("reindexing batch at record %d: %w", processed, err)
		}

		processed += len(batch)
		tracker.Increment(len(batch))
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindexing complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	return nil
}

func (r *Reindexer) processBatch(ctx context.Context, batch []*core.VectorRecord) error {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = record.Text
	}

	var vectors [][]float32
	err := retry.Do(ctx, r.config.Retry, func() error {
		var err error
		vectors, err = r.batchClient.EmbedAll(ctx, texts)
		return err
	})
	if err != nil {
		return err
	}

	for i, record := range batch {
		record.Vector = vectors[i]
	}

	return retry.Do(ctx, r.config.Retry, func() error {
		return r.repository.Upsert(ctx, batch...)
	})
}

func (r *Reindexer) countRecords(ctx context.Context) (int, error) {
	sources, err := r.repository.Sources(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, source := range sources {
		count, err := r.repository.Count(ctx, source)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}
