package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

const (
	defaultTimeout      = 2 * time.Minute
	defaultPollInterval = 2 * time.Second
)

// Task states reported by the Paperless-ngx tasks API.
const (
	taskSuccess = "SUCCESS"
	taskFailure = "FAILURE"
)

// Client archives documents in a Paperless-ngx instance.
type Client struct {
	baseURL      string
	token        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ backend.Archiver = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithPollInterval sets how often Verify polls the tasks API.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "paperless")
	}
}

// NewClient creates a Paperless-ngx client. The token authenticates every
// request via the Authorization header.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       slog.Default().With("component", "paperless"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Archive uploads the task's local file and returns the consume-task UUID
// that Verify can poll.
func (c *Client) Archive(ctx context.Context, task *core.DocumentTask) (string, error) {
	file, err := os.Open(task.FilePath)
	if err != nil {
		return "", core.Permanentf("opening %s: %v", task.FilePath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("document", filepath.Base(task.FilePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if task.Title != "" {
		if err := writer.WriteField("title", task.Title); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/documents/post_document/", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.Transientf("paperless upload failed: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", core.ClassifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("paperless upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	// The endpoint answers with the task UUID as a JSON string.
	var taskID string
	if err := json.Unmarshal(payload, &taskID); err != nil {
		taskID = strings.Trim(strings.TrimSpace(string(payload)), `"`)
	}
	if taskID == "" {
		return "", core.Permanent(fmt.Errorf("paperless returned no task id"))
	}

	c.logger.Debug("document submitted to archive", "url", task.SourceURL, "task_id", taskID)
	return taskID, nil
}

// Verify polls the tasks API until the consume task succeeds, fails, or the
// timeout elapses.
func (c *Client) Verify(ctx context.Context, archiveID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.taskStatus(ctx, archiveID)
		if err == nil {
			switch status {
			case taskSuccess:
				return nil
			case taskFailure:
				return core.Permanent(backend.ErrArchiveRejected)
			}
		} else if core.IsPermanent(err) {
			return err
		} else {
			c.logger.Debug("task poll failed, retrying", "task_id", archiveID, "err", err)
		}

		select {
		case <-ctx.Done():
			return core.Transient(backend.ErrVerifyTimeout)
		case <-ticker.C:
		}
	}
}

func (c *Client) taskStatus(ctx context.Context, taskID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/tasks/?task_id="+taskID, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.Transientf("paperless task poll failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", core.ClassifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("paperless tasks returned %d", resp.StatusCode))
	}

	var tasks []struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return "", core.Transientf("decoding task status: %v", err)
	}
	for _, task := range tasks {
		if task.TaskID == taskID {
			return task.Status, nil
		}
	}
	return "", core.Transientf("task %s not listed yet", taskID)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
}
