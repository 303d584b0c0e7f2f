// Package collector defines the contract for document sources and the
// shared capabilities (downloading, exclusion, state tracking) they are
// built from.
package collector

import (
	"context"
	"log/slog"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/state"
)

// Collector discovers documents for one source and yields them as tasks
// ready for the pipeline: downloaded to a local file, hashed, with metadata.
type Collector interface {
	// Name identifies the collector. It doubles as the job owner key.
	Name() string

	// Collect walks the source and calls yield for each discovered
	// document. A yield error stops the walk and is returned as-is.
	// Implementations should poll ctx between documents.
	Collect(ctx context.Context, yield func(task *core.DocumentTask) error) error
}

// Capabilities is the shared toolkit injected into collectors at
// construction. Fields a collector does not need may be nil.
type Capabilities struct {
	Downloader *Downloader
	Excluder   *ExclusionFilter
	Tracker    *state.Tracker
	Logger     *slog.Logger
}

// Log returns the configured logger or the process default.
func (c Capabilities) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Excluded reports whether a URL is filtered out. Nil filter excludes
// nothing.
func (c Capabilities) Excluded(url string) bool {
	return c.Excluder != nil && c.Excluder.Excluded(url)
}
