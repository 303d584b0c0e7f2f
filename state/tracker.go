package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// Record is the persisted outcome for one processed URL.
type Record struct {
	ProcessedAt time.Time         `json:"processedAt"`
	Status      string            `json:"status"`
	Hash        string            `json:"hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Statistics are run counters, updated atomically alongside marks.
type Statistics struct {
	TotalProcessed  int `json:"totalProcessed"`
	TotalDownloaded int `json:"totalDownloaded"`
	TotalSkipped    int `json:"totalSkipped"`
	TotalFailed     int `json:"totalFailed"`
}

// stateFile is the on-disk JSON layout. There is no schema version field;
// incompatible changes mean delete and regenerate, not migrate.
type stateFile struct {
	SourceName    string            `json:"sourceName"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastUpdated   time.Time         `json:"lastUpdated"`
	ProcessedURLs map[string]Record `json:"processedUrls"`
	Statistics    Statistics        `json:"statistics"`
}

// Tracker persists per-source URL processing outcomes for deduplication and
// incremental runs. One collector run may hit a Tracker from concurrent
// downloads, so all access is mutex-guarded; the backing file is the sole
// durable copy and every write is atomic (temp file + rename).
type Tracker struct {
	mu     sync.Mutex
	path   string
	doc    stateFile
	logger *slog.Logger
}

// Open loads or creates the state file for a source inside dir. A corrupt
// file is discarded and treated as a fresh start rather than an error.
func Open(dir, source string, logger *slog.Logger) (*Tracker, error) {
	if source == "" {
		return nil, core.ErrEmptySource
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "state-tracker", "source", source)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.Resource(err)
	}

	t := &Tracker{
		path:   filepath.Join(dir, source+".json"),
		logger: logger,
	}

	data, err := os.ReadFile(t.path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &t.doc); jsonErr != nil {
			logger.Warn("state file corrupt, starting fresh", "path", t.path, "err", jsonErr)
			t.doc = stateFile{}
		}
	case os.IsNotExist(err):
		// fresh source
	default:
		return nil, core.Resource(err)
	}

	if t.doc.ProcessedURLs == nil {
		t.doc.ProcessedURLs = make(map[string]Record)
	}
	if t.doc.SourceName == "" {
		t.doc.SourceName = source
		t.doc.CreatedAt = time.Now().UTC()
	}
	return t, nil
}

// Source returns the source name this tracker belongs to.
func (t *Tracker) Source() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.SourceName
}

// IsProcessed reports whether the URL already has a recorded outcome.
func (t *Tracker) IsProcessed(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.doc.ProcessedURLs[url]
	return ok
}

// Lookup returns the recorded outcome for a URL, if any.
func (t *Tracker) Lookup(url string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.doc.ProcessedURLs[url]
	return rec, ok
}

// MarkProcessed records a terminal outcome for a URL and bumps the processed
// counter in the same durable write.
func (t *Tracker) MarkProcessed(url, status, hash string, metadata map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.ProcessedURLs[url] = Record{
		ProcessedAt: time.Now().UTC(),
		Status:      status,
		Hash:        hash,
		Metadata:    metadata,
	}
	t.doc.Statistics.TotalProcessed++
	return t.save()
}

// AddDownloaded bumps the download counter.
func (t *Tracker) AddDownloaded() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc.Statistics.TotalDownloaded++
	return t.save()
}

// AddSkipped bumps the skipped counter.
func (t *Tracker) AddSkipped() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc.Statistics.TotalSkipped++
	return t.save()
}

// AddFailed bumps the failure counter. Failed documents are deliberately not
// added to ProcessedURLs so the next run retries them.
func (t *Tracker) AddFailed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc.Statistics.TotalFailed++
	return t.save()
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Statistics
}

// ProcessedCount returns how many URLs have recorded outcomes.
func (t *Tracker) ProcessedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.doc.ProcessedURLs)
}

// save writes the state file atomically. Must be called with the lock held.
// A crash between write and rename leaves the previous valid file intact.
func (t *Tracker) save() error {
	t.doc.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(&t.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.Resource(fmt.Errorf("write state: %w", err))
	}
	if err := os.Rename(tmp, t.path); err != nil {
		os.Remove(tmp)
		return core.Resource(fmt.Errorf("replace state: %w", err))
	}
	return nil
}
