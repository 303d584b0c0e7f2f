package tika

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

const defaultTimeout = 2 * time.Minute

// Metadata fields worth carrying over from Tika's output.
var metadataFields = []string{
	"dc:title",
	"dc:creator",
	"Content-Type",
	"xmpTPg:NPages",
	"dcterms:created",
	"dcterms:modified",
}

// Client talks to an Apache Tika server for text extraction.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ backend.Parser = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "tika")
	}
}

// NewClient creates a Tika client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "tika"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse extracts plain text and metadata from the file at path by sending it
// to the Tika server twice: once for text, once for metadata. A metadata
// failure is logged and tolerated; a text failure is not.
func (c *Client) Parse(ctx context.Context, path string) (*backend.ParseResult, error) {
	text, err := c.extractText(ctx, path)
	if err != nil {
		return nil, err
	}

	metadata, err := c.extractMetadata(ctx, path)
	if err != nil {
		c.logger.Warn("metadata extraction failed", "path", path, "err", err)
		metadata = nil
	}

	return &backend.ParseResult{
		Text:     strings.TrimSpace(text),
		Metadata: metadata,
	}, nil
}

// SupportedFormats lists the extensions this deployment sends to Tika.
func (c *Client) SupportedFormats() []string {
	return []string{".pdf", ".html", ".htm", ".docx", ".doc", ".odt", ".rtf", ".txt", ".md", ".epub"}
}

// IsAvailable reports whether the Tika server answers.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tika", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) extractText(ctx context.Context, path string) (string, error) {
	body, err := c.put(ctx, path, "/tika", "text/plain")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) extractMetadata(ctx context.Context, path string) (map[string]string, error) {
	body, err := c.put(ctx, path, "/meta", "application/json")
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.Permanentf("decoding tika metadata: %v", err)
	}

	metadata := make(map[string]string)
	for _, field := range metadataFields {
		switch value := raw[field].(type) {
		case string:
			metadata[field] = value
		case []any:
			if len(value) > 0 {
				if s, ok := value[0].(string); ok {
					metadata[field] = s
				}
			}
		}
	}
	return metadata, nil
}

func (c *Client) put(ctx context.Context, path, endpoint, accept string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.Permanentf("opening %s: %v", path, err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+endpoint, file)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.Transientf("tika request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, core.ClassifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("tika %s returned %d", endpoint, resp.StatusCode))
	}

	return io.ReadAll(resp.Body)
}
