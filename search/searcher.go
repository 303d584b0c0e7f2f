package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
)

const defaultTopK = 5

var (
	// ErrEmptyQuery is returned for a blank query string.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrEmbedderRequired is returned when no embedder is configured.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRepositoryRequired is returned when no repository is configured.
	ErrRepositoryRequired = errors.New("repository is required")
)

// Options narrow a search.
type Options struct {
	TopK     int
	Source   string
	Metadata map[string]string
	MinScore float32
}

// Searcher answers natural-language queries by embedding them and ranking
// stored chunks by similarity.
type Searcher struct {
	embedder   ai.Embedder
	repository storage.VectorRepository
	logger     *slog.Logger
}

// Option configures the Searcher.
type Option func(*Searcher)

// WithLogger sets the searcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger.With("component", "search")
	}
}

// New creates a Searcher.
func New(embedder ai.Embedder, repository storage.VectorRepository, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Searcher{
		embedder:   embedder,
		repository: repository,
		logger:     slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search embeds the query and returns the best-matching chunks, ordered by
// descending similarity.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]*core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.repository.Search(ctx, storage.Query{
		Vector:   vector,
		TopK:     topK,
		Source:   opts.Source,
		Metadata: opts.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if opts.MinScore > 0 {
		kept := results[:0]
		for _, result := range results {
			if result.Score >= opts.MinScore {
				kept = append(kept, result)
			}
		}
		results = kept
	}

	s.logger.Debug("search answered", "query", query, "hits", len(results))
	return results, nil
}
