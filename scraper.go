// Package scraper wires the document pipeline together: storage, embedding,
// parsing, archival, collectors, and the job queue behind one App value.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/ai/openai"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend/paperless"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend/ragstore"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend/tika"
	"github.com/nkissick-del/ragflow-scraper-sub000/chunker"
	"github.com/nkissick-del/ragflow-scraper-sub000/collector"
	"github.com/nkissick-del/ragflow-scraper-sub000/config"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/jobqueue"
	"github.com/nkissick-del/ragflow-scraper-sub000/pipeline"
	"github.com/nkissick-del/ragflow-scraper-sub000/progress"
	"github.com/nkissick-del/ragflow-scraper-sub000/reindex"
	"github.com/nkissick-del/ragflow-scraper-sub000/retry"
	"github.com/nkissick-del/ragflow-scraper-sub000/search"
	"github.com/nkissick-del/ragflow-scraper-sub000/state"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
	badgerstore "github.com/nkissick-del/ragflow-scraper-sub000/storage/badger"
)

const shutdownTimeout = 30 * time.Second

// RunSummary aggregates the outcome of one collector run.
type RunSummary struct {
	Collector string
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// App owns every long-lived component of the scraper.
type App struct {
	config      *config.AppConfig
	repository  *badgerstore.VectorRepository
	embedder    ai.Embedder
	batchClient *ai.BatchClient
	ingestor    *ragstore.Ingestor
	parser      backend.Parser
	archiver    backend.Archiver
	queue       *jobqueue.Queue
	registry    *collector.Registry
	logger      *slog.Logger
}

// Option configures the App.
type Option func(*appOptions)

type appOptions struct {
	embedder ai.Embedder
	parser   backend.Parser
	inMemory bool
}

// WithEmbedder replaces the configured embedding client, mainly for tests.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *appOptions) {
		o.embedder = embedder
	}
}

// WithParser replaces the configured parsing client, mainly for tests.
func WithParser(parser backend.Parser) Option {
	return func(o *appOptions) {
		o.parser = parser
	}
}

// WithInMemoryStore uses a non-persistent store, mainly for tests.
func WithInMemoryStore() Option {
	return func(o *appOptions) {
		o.inMemory = true
	}
}

// New builds the App from configuration. Components are constructed in
// dependency order and torn down in reverse by Close.
func New(cfg *config.AppConfig, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &appOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := slog.Default()

	storeBackend, err := badgerstore.OpenBackend(cfg.Store.Path, options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	repository, err := badgerstore.NewVectorRepository(storeBackend, cfg.Store.Dimension)
	if err != nil {
		storeBackend.Close()
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model, "")
		if err != nil {
			repository.Close()
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}

	batchClient, err := ai.NewBatchClient(embedder, cfg.Embedder.BatchSize, cfg.Store.Dimension,
		ai.WithLogger(logger))
	if err != nil {
		repository.Close()
		return nil, err
	}

	counter := chunker.NewCounter(cfg.Chunker.Tokenizer, logger)
	splitter := chunker.New(cfg.Chunker.MaxTokens, cfg.Chunker.OverlapTokens, counter)

	ingestor, err := ragstore.NewIngestor(splitter, batchClient, repository,
		cfg.Embedder.Concurrency, ragstore.WithLogger(logger))
	if err != nil {
		repository.Close()
		return nil, err
	}

	parser := options.parser
	if parser == nil {
		parser = tika.NewClient(cfg.Parser.BaseURL,
			tika.WithTimeout(cfg.Parser.Timeout),
			tika.WithLogger(logger))
	}

	var archiver backend.Archiver
	if cfg.Archive.Enabled {
		archiver = paperless.NewClient(cfg.Archive.BaseURL, cfg.ArchiveToken(),
			paperless.WithPollInterval(cfg.Archive.PollInterval),
			paperless.WithLogger(logger))
	}

	return &App{
		config:      cfg,
		repository:  repository,
		embedder:    embedder,
		batchClient: batchClient,
		ingestor:    ingestor,
		parser:      parser,
		archiver:    archiver,
		queue:       jobqueue.New(cfg.Jobs.QueueSize, jobqueue.WithLogger(logger)),
		registry:    collector.NewRegistry(),
		logger:      logger,
	}, nil
}

// Close tears the App down in reverse construction order. The queue drains
// first so no job runs against closed components.
func (a *App) Close() error {
	if !a.queue.Shutdown(true, shutdownTimeout) {
		a.logger.Warn("job queue did not drain before shutdown timeout")
	}
	a.ingestor.Release()
	if err := a.repository.Close(); err != nil {
		a.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Registry returns the collector registry for process-start registration.
func (a *App) Registry() *collector.Registry {
	return a.registry
}

// Repository returns the vector store.
func (a *App) Repository() storage.VectorRepository {
	return a.repository
}

// Queue returns the job queue.
func (a *App) Queue() *jobqueue.Queue {
	return a.queue
}

// NewSearcher builds a query searcher over the store.
func (a *App) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.New(a.embedder, a.repository, opts...)
}

// NewReindexer builds a reindexer that re-embeds every stored chunk.
func (a *App) NewReindexer(progressWriter io.Writer) *reindex.Reindexer {
	cfg := reindex.DefaultConfig()
	cfg.Retry = a.retryConfig()
	return reindex.New(a.repository, badgerstore.NewRecordIterator(a.repository),
		a.batchClient, cfg, progressWriter)
}

// SubmitRun queues a full collector run under the collector's name. A second
// submission for the same collector while one is active returns
// core.ErrAlreadyRunning.
func (a *App) SubmitRun(name string, progressWriter io.Writer) (*jobqueue.Job, error) {
	return a.queue.Submit(name, func(ctx context.Context) (any, error) {
		return a.RunCollector(ctx, name, progressWriter)
	})
}

// RunCollector drives every document the named collector yields through the
// pipeline. Per-document failures are counted, not fatal; the error return
// covers collector and setup failures only.
func (a *App) RunCollector(ctx context.Context, name string, progressWriter io.Writer) (*RunSummary, error) {
	tracker, err := state.Open(a.config.State.Dir, name, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening state for %s: %w", name, err)
	}

	downloader, err := collector.NewDownloader(
		filepath.Join(a.config.DataDir, "downloads", name),
		collector.WithDownloadLogger(a.logger))
	if err != nil {
		return nil, err
	}

	col, err := a.registry.Create(name, collector.Capabilities{
		Downloader: downloader,
		Tracker:    tracker,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	pipe, err := a.newPipeline(tracker)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Collector: name}
	reporter := progress.NewTracker(progressWriter, "documents", 0, 10)
	reporter.Start()

	err = col.Collect(ctx, func(task *core.DocumentTask) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := pipe.Process(ctx, task)
		summary.Processed++
		switch result.Outcome {
		case core.OutcomeSucceeded:
			summary.Succeeded++
		case core.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
		reporter.Increment(1)
		return nil
	})
	reporter.Finish()
	summary.Elapsed = reporter.Elapsed()

	if err != nil {
		return summary, err
	}
	a.logger.Info("collector run finished", "collector", name,
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

// Purge removes every stored record of one source partition.
func (a *App) Purge(ctx context.Context, source string) error {
	return a.repository.DeleteBySource(ctx, source)
}

func (a *App) newPipeline(tracker *state.Tracker) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{
		pipeline.WithRetryConfig(a.retryConfig()),
		pipeline.WithLogger(a.logger),
	}
	if a.archiver != nil {
		opts = append(opts, pipeline.WithArchiver(a.archiver, a.config.Archive.VerifyTimeout))
	}
	return pipeline.New(a.parser, a.ingestor, tracker, opts...)
}

func (a *App) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: a.config.Retry.MaxAttempts,
		BaseDelay:   a.config.Retry.BaseDelay,
		MaxDelay:    a.config.Retry.MaxDelay,
	}
}
