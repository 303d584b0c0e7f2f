package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/retry"
	"github.com/nkissick-del/ragflow-scraper-sub000/state"
)

const defaultVerifyTimeout = 5 * time.Minute

// Processing statuses recorded in the state tracker.
const (
	statusIngested     = "ingested"
	statusDeduplicated = "deduplicated"
)

var (
	// ErrParserRequired is returned when no parser is configured.
	ErrParserRequired = errors.New("parser is required")
	// ErrIngestorRequired is returned when no ingestor is configured.
	ErrIngestorRequired = errors.New("ingestor is required")
	// ErrTrackerRequired is returned when no state tracker is configured.
	ErrTrackerRequired = errors.New("state tracker is required")
)

// Pipeline runs one document through the fixed stage order: skip check,
// archive, parse, ingest, cleanup. Archiving is best-effort; parsing is
// required; ingestion is atomic per document; cleanup never deletes a file
// whose archival was not confirmed.
type Pipeline struct {
	parser        backend.Parser
	archiver      backend.Archiver
	ingestor      backend.Ingestor
	tracker       *state.Tracker
	retryConfig   retry.Config
	verifyTimeout time.Duration
	logger        *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithArchiver enables the archive and verified-cleanup stages.
func WithArchiver(archiver backend.Archiver, verifyTimeout time.Duration) Option {
	return func(p *Pipeline) {
		p.archiver = archiver
		if verifyTimeout > 0 {
			p.verifyTimeout = verifyTimeout
		}
	}
}

// WithRetryConfig overrides the retry policy for external calls.
func WithRetryConfig(cfg retry.Config) Option {
	return func(p *Pipeline) {
		p.retryConfig = cfg
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger.With("component", "pipeline")
	}
}

// New creates a Pipeline. Parser, ingestor, and tracker are required;
// archiving is optional and off unless WithArchiver is given.
func New(parser backend.Parser, ingestor backend.Ingestor, tracker *state.Tracker, opts ...Option) (*Pipeline, error) {
	if parser == nil {
		return nil, ErrParserRequired
	}
	if ingestor == nil {
		return nil, ErrIngestorRequired
	}
	if tracker == nil {
		return nil, ErrTrackerRequired
	}

	p := &Pipeline{
		parser:        parser,
		ingestor:      ingestor,
		tracker:       tracker,
		retryConfig:   retry.DefaultConfig(),
		verifyTimeout: defaultVerifyTimeout,
		logger:        slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs one document through every stage and returns the per-stage
// outcome. It never panics across documents; stage errors land in the result.
func (p *Pipeline) Process(ctx context.Context, task *core.DocumentTask) *core.PipelineResult {
	result := &core.PipelineResult{Task: task}
	logger := p.logger.With("source", task.Source, "url", task.SourceURL)

	if err := core.ValidateDocumentTask(task); err != nil {
		result.Outcome = core.OutcomeFailed
		result.Detail = err.Error()
		return result
	}

	if p.tracker.IsProcessed(task.SourceURL) {
		logger.Debug("already processed, skipping")
		p.tracker.AddSkipped()
		result.Outcome = core.OutcomeSkipped
		result.Detail = "already processed"
		return result
	}

	var details []string

	archiveID := p.archive(ctx, task, result, logger, &details)

	parsed := p.parse(ctx, task, result, logger, &details)
	if parsed == nil {
		result.Outcome = core.OutcomeFailed
		p.tracker.AddFailed()
		p.cleanup(ctx, task, archiveID, result, logger, &details)
		result.Detail = strings.Join(details, "; ")
		return result
	}

	if !p.ingest(ctx, task, parsed, result, logger, &details) {
		result.Outcome = core.OutcomeFailed
		p.tracker.AddFailed()
		p.cleanup(ctx, task, archiveID, result, logger, &details)
		result.Detail = strings.Join(details, "; ")
		return result
	}

	result.Outcome = core.OutcomeSucceeded
	p.cleanup(ctx, task, archiveID, result, logger, &details)
	result.Detail = strings.Join(details, "; ")
	return result
}

// archive submits the document to the archive. Failures are recorded but do
// not stop the run. Returns the archive task ID, or "" when nothing was
// archived.
func (p *Pipeline) archive(ctx context.Context, task *core.DocumentTask, result *core.PipelineResult, logger *slog.Logger, details *[]string) string {
	if p.archiver == nil || task.FilePath == "" {
		return ""
	}

	var archiveID string
	err := retry.Do(ctx, p.retryConfig, func() error {
		var err error
		archiveID, err = p.archiver.Archive(ctx, task)
		return err
	})
	if err != nil {
		logger.Warn("archive failed", "err", err)
		result.Archive = core.StageFailed
		*details = append(*details, "archive: "+err.Error())
		return ""
	}

	result.Archive = core.StageSucceeded
	return archiveID
}

func (p *Pipeline) parse(ctx context.Context, task *core.DocumentTask, result *core.PipelineResult, logger *slog.Logger, details *[]string) *backend.ParseResult {
	var parsed *backend.ParseResult
	err := retry.Do(ctx, p.retryConfig, func() error {
		var err error
		parsed, err = p.parser.Parse(ctx, task.FilePath)
		return err
	})
	if err != nil {
		logger.Error("parse failed", "err", err)
		result.Parse = core.StageFailed
		*details = append(*details, "parse: "+err.Error())
		return nil
	}

	result.Parse = core.StageSucceeded
	return parsed
}

func (p *Pipeline) ingest(ctx context.Context, task *core.DocumentTask, parsed *backend.ParseResult, result *core.PipelineResult, logger *slog.Logger, details *[]string) bool {
	req := buildIngestRequest(task, parsed)

	var ingested *backend.IngestResult
	err := retry.Do(ctx, p.retryConfig, func() error {
		var err error
		ingested, err = p.ingestor.Ingest(ctx, req)
		return err
	})
	if err != nil {
		logger.Error("ingest failed", "err", err)
		result.Ingest = core.StageFailed
		*details = append(*details, "ingest: "+err.Error())
		return false
	}

	result.Ingest = core.StageSucceeded

	status := statusIngested
	if ingested.Deduplicated {
		status = statusDeduplicated
	}
	if err := p.tracker.MarkProcessed(task.SourceURL, status, task.ContentHash, task.Metadata); err != nil {
		// The document is stored; a state write failure only risks a
		// redundant re-run later.
		logger.Warn("marking processed failed", "err", err)
	}
	logger.Info("document processed", "status", status, "chunks", ingested.ChunkCount)
	return true
}

// cleanup deletes the local file once it is safe to do so. A file whose
// archival was requested but never confirmed is kept. Cleanup failures never
// change the run outcome.
func (p *Pipeline) cleanup(ctx context.Context, task *core.DocumentTask, archiveID string, result *core.PipelineResult, logger *slog.Logger, details *[]string) {
	if task.FilePath == "" {
		return
	}

	if p.archiver != nil {
		if archiveID == "" {
			// Archive never confirmed this document; keep the file.
			logger.Debug("keeping local file, archive unconfirmed", "path", task.FilePath)
			return
		}
		if err := p.archiver.Verify(ctx, archiveID, p.verifyTimeout); err != nil {
			logger.Warn("archive verification failed, keeping local file", "err", err)
			result.Cleanup = core.StageFailed
			*details = append(*details, "cleanup: "+err.Error())
			return
		}
	}

	if err := os.Remove(task.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("removing local file failed", "path", task.FilePath, "err", err)
		result.Cleanup = core.StageFailed
		*details = append(*details, "cleanup: "+err.Error())
		return
	}
	result.Cleanup = core.StageSucceeded
}

func buildIngestRequest(task *core.DocumentTask, parsed *backend.ParseResult) *backend.IngestRequest {
	metadata := make(map[string]string, len(parsed.Metadata)+len(task.Metadata)+1)
	for key, value := range parsed.Metadata {
		metadata[key] = value
	}
	// Task metadata wins over parser output.
	for key, value := range task.Metadata {
		metadata[key] = value
	}
	if len(task.Tags) > 0 {
		metadata["tags"] = strings.Join(task.Tags, ",")
	}

	title := task.Title
	if title == "" {
		title = parsed.Metadata["dc:title"]
	}

	return &backend.IngestRequest{
		Source:      task.Source,
		DocumentID:  task.DocumentID(),
		SourceURL:   task.SourceURL,
		Title:       title,
		ContentHash: task.ContentHash,
		Text:        parsed.Text,
		Metadata:    metadata,
	}
}
