// Package localdir collects pre-downloaded documents from a directory tree.
package localdir

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nkissick-del/ragflow-scraper-sub000/collector"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// Collector walks a directory tree and yields every file as a document
// task. Files are staged into a work directory so the pipeline's cleanup
// never touches the originals.
type Collector struct {
	caps     collector.Capabilities
	source   string
	root     string
	stageDir string
}

var _ collector.Collector = (*Collector)(nil)

// New creates a localdir collector reading from root and staging copies
// under stageDir.
func New(source, root, stageDir string, caps collector.Capabilities) (*Collector, error) {
	if source == "" {
		return nil, core.ErrEmptySource
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(root + " is not a directory")
	}
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return nil, err
	}
	return &Collector{caps: caps, source: source, root: root, stageDir: stageDir}, nil
}

// Factory returns a registry factory for this collector.
func Factory(source, root, stageDir string) collector.Factory {
	return func(caps collector.Capabilities) (collector.Collector, error) {
		return New(source, root, stageDir, caps)
	}
}

// Name identifies the collector; it doubles as the job owner key.
func (c *Collector) Name() string {
	return c.source
}

// Collect walks the tree and yields one task per file. Excluded and
// already-processed files are skipped without staging.
func (c *Collector) Collect(ctx context.Context, yield func(task *core.DocumentTask) error) error {
	logger := c.caps.Log().With("collector", c.source)

	return filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		sourceURL := "file://" + filepath.ToSlash(abs)

		if c.caps.Excluded(sourceURL) {
			logger.Debug("excluded", "path", path)
			return nil
		}
		if c.caps.Tracker != nil && c.caps.Tracker.IsProcessed(sourceURL) {
			logger.Debug("already processed", "path", path)
			if err := c.caps.Tracker.AddSkipped(); err != nil {
				logger.Warn("recording skip failed", "err", err)
			}
			return nil
		}

		staged, hash, err := c.stage(path)
		if err != nil {
			logger.Warn("staging failed", "path", path, "err", err)
			if c.caps.Tracker != nil {
				if err := c.caps.Tracker.AddFailed(); err != nil {
					logger.Warn("recording failure failed", "err", err)
				}
			}
			return nil
		}
		if c.caps.Tracker != nil {
			if err := c.caps.Tracker.AddDownloaded(); err != nil {
				logger.Warn("recording download failed", "err", err)
			}
		}

		name := entry.Name()
		return yield(&core.DocumentTask{
			SourceURL:   sourceURL,
			FilePath:    staged,
			Source:      c.source,
			Title:       strings.TrimSuffix(name, filepath.Ext(name)),
			ContentHash: hash,
			Metadata:    map[string]string{"filename": name},
		})
	})
}

// stage copies a file into the work directory, hashing it on the way.
func (c *Collector) stage(path string) (string, string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(c.stageDir, "staged-*"+filepath.Ext(path))
	if err != nil {
		return "", "", err
	}

	hash, err := core.HashReader(io.TeeReader(src, dst))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", "", err
	}
	return dst.Name(), hash, nil
}
