package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tracker, err := Open(dir, "aemo", nil)
	require.NoError(t, err)

	url := "https://example.com/report.pdf"
	assert.False(t, tracker.IsProcessed(url))

	require.NoError(t, tracker.MarkProcessed(url, "succeeded", "abc123", map[string]string{"title": "Report"}))
	assert.True(t, tracker.IsProcessed(url))

	rec, ok := tracker.Lookup(url)
	require.True(t, ok)
	assert.Equal(t, "succeeded", rec.Status)
	assert.Equal(t, "abc123", rec.Hash)
	assert.Equal(t, "Report", rec.Metadata["title"])
	assert.False(t, rec.ProcessedAt.IsZero())

	// Reopen from disk: the file is the sole durable copy.
	reloaded, err := Open(dir, "aemo", nil)
	require.NoError(t, err)
	assert.True(t, reloaded.IsProcessed(url))
	assert.Equal(t, 1, reloaded.Stats().TotalProcessed)
}

func TestStateFileLayout(t *testing.T) {
	dir := t.TempDir()
	tracker, err := Open(dir, "aemo", nil)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessed("https://example.com/a", "succeeded", "h1", nil))

	data, err := os.ReadFile(filepath.Join(dir, "aemo.json"))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"sourceName", "createdAt", "lastUpdated", "processedUrls", "statistics"} {
		assert.Contains(t, doc, key)
	}
}

func TestCorruptStateFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aemo.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	tracker, err := Open(dir, "aemo", nil)
	require.NoError(t, err, "corruption is a fresh-start condition, not a crash")
	assert.Equal(t, 0, tracker.ProcessedCount())
	assert.Equal(t, Statistics{}, tracker.Stats())
}

func TestCountersUpdatedAlongsideMarks(t *testing.T) {
	tracker, err := Open(t.TempDir(), "aemo", nil)
	require.NoError(t, err)

	require.NoError(t, tracker.AddDownloaded())
	require.NoError(t, tracker.AddDownloaded())
	require.NoError(t, tracker.AddSkipped())
	require.NoError(t, tracker.AddFailed())
	require.NoError(t, tracker.MarkProcessed("https://example.com/a", "succeeded", "h", nil))

	stats := tracker.Stats()
	assert.Equal(t, 2, stats.TotalDownloaded)
	assert.Equal(t, 1, stats.TotalSkipped)
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Equal(t, 1, stats.TotalProcessed)
}

func TestFailedDocumentsStayUnmarked(t *testing.T) {
	tracker, err := Open(t.TempDir(), "aemo", nil)
	require.NoError(t, err)

	require.NoError(t, tracker.AddFailed())
	assert.False(t, tracker.IsProcessed("https://example.com/broken.pdf"),
		"failures must remain unmarked so the next run retries them")
}

func TestConcurrentMarks(t *testing.T) {
	tracker, err := Open(t.TempDir(), "aemo", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://example.com/doc-%d", i)
			_ = tracker.MarkProcessed(url, "succeeded", fmt.Sprintf("h%d", i), nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, tracker.ProcessedCount())
	assert.Equal(t, 20, tracker.Stats().TotalProcessed)
}

func TestOpenRejectsEmptySource(t *testing.T) {
	_, err := Open(t.TempDir(), "", nil)
	require.Error(t, err)
}
