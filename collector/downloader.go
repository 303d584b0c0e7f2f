package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

const (
	defaultDownloadTimeout = 5 * time.Minute
	defaultUserAgent       = "ragflow-scraper/1.0"
)

// Download is the outcome of fetching one URL.
type Download struct {
	Path        string
	Hash        string
	Size        int64
	ContentType string
}

// Downloader fetches URLs into a local directory, hashing the content as it
// streams to disk.
type Downloader struct {
	dir        string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// DownloaderOption configures the Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) DownloaderOption {
	return func(d *Downloader) {
		d.userAgent = agent
	}
}

// WithDownloadLogger sets the downloader logger.
func WithDownloadLogger(logger *slog.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = logger.With("component", "downloader")
	}
}

// NewDownloader creates a Downloader writing into dir. The directory is
// created if missing.
func NewDownloader(dir string, opts ...DownloaderOption) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	d := &Downloader{
		dir:        dir,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultDownloadTimeout},
		logger:     slog.Default().With("component", "downloader"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download fetches rawURL into a new file and returns its path, content
// hash, and size. The caller owns the file. Server errors and transport
// failures are transient; client errors are permanent.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.Permanentf("building request for %s: %v", rawURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, core.Transientf("fetching %s: %v", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, core.ClassifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("fetching %s returned %d", rawURL, resp.StatusCode))
	}

	file, err := os.CreateTemp(d.dir, "download-*"+extensionFor(rawURL))
	if err != nil {
		return nil, core.Resource(err)
	}

	// Hash while streaming to disk; one pass over the body.
	hash, err := core.HashReader(io.TeeReader(resp.Body, file))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, core.Transientf("saving %s: %v", rawURL, err)
	}

	info, err := os.Stat(file.Name())
	if err != nil {
		os.Remove(file.Name())
		return nil, err
	}

	d.logger.Debug("downloaded", "url", rawURL, "path", file.Name(), "bytes", info.Size())
	return &Download{
		Path:        file.Name(),
		Hash:        hash,
		Size:        info.Size(),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func extensionFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}
