package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 1000, cfg.Chunker.MaxTokens)
	assert.Equal(t, 100, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Archive.VerifyTimeout)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
store:
  path: /tmp/vecs
  dimension: 384
chunker:
  max_tokens: 500
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vecs", cfg.Store.Path)
	assert.Equal(t, 384, cfg.Store.Dimension)
	assert.Equal(t, 500, cfg.Chunker.MaxTokens)
	assert.Equal(t, 100, cfg.Chunker.OverlapTokens, "missing fields still get defaults")
	assert.Equal(t, "embeddinggemma", cfg.Embedder.Model)
}

func TestLoadRejectsInvalidOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
chunker:
  max_tokens: 100
  overlap_tokens: 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestArchiveTokenFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv(cfg.Archive.TokenEnv, "secret-token")
	assert.Equal(t, "secret-token", cfg.ArchiveToken())
}
