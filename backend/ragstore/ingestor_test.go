package ragstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/ai/mock"
	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/chunker"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
	badgerstore "github.com/nkissick-del/ragflow-scraper-sub000/storage/badger"
)

const testDimension = 8

func newTestIngestor(t *testing.T, embedder *mock.Embedder) (*Ingestor, *badgerstore.VectorRepository) {
	t.Helper()

	repo, _, err := badgerstore.NewMemoryRepository(testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)

	ch := chunker.New(50, 5, chunker.ApproxCounter{})
	ingestor, err := NewIngestor(ch, batchClient, repo, 2)
	require.NoError(t, err)
	t.Cleanup(ingestor.Release)

	return ingestor, repo
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func testRequest(text string) *backend.IngestRequest {
	return &backend.IngestRequest{
		Source:      "wiki",
		DocumentID:  "doc1",
		SourceURL:   "https://example.org/a",
		Title:       "Example",
		ContentHash: "hash-a",
		Text:        text,
		Metadata:    map[string]string{"lang": "en"},
	}
}

func TestIngestStoresAllChunks(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	ingestor, repo := newTestIngestor(t, embedder)

	ctx := context.Background()
	result, err := ingestor.Ingest(ctx, testRequest(words(120)))
	require.NoError(t, err)

	assert.Equal(t, "doc1", result.DocumentID)
	assert.False(t, result.Deduplicated)
	assert.Greater(t, result.ChunkCount, 1)

	stored, err := repo.GetDocument(ctx, "wiki", "doc1")
	require.NoError(t, err)
	require.Len(t, stored, result.ChunkCount)
	for i, record := range stored {
		assert.Equal(t, i, record.ChunkIndex)
		assert.Equal(t, "hash-a", record.ContentHash)
		assert.Equal(t, "en", record.Metadata["lang"])
		assert.Equal(t, "Example", record.Metadata["title"])
		assert.Equal(t, "https://example.org/a", record.Metadata["source_url"])
	}
}

func TestIngestDeduplicatesByContentHash(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	ingestor, repo := newTestIngestor(t, embedder)

	ctx := context.Background()
	first, err := ingestor.Ingest(ctx, testRequest(words(60)))
	require.NoError(t, err)

	callsAfterFirst := embedder.CallCount()

	// Same content hash under a different URL: metadata refresh only.
	req := testRequest(words(60))
	req.DocumentID = "doc2"
	req.SourceURL = "https://example.org/mirror"
	second, err := ingestor.Ingest(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, callsAfterFirst, embedder.CallCount(), "dedup hit must not embed")

	stored, err := repo.GetDocument(ctx, "wiki", first.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	assert.Equal(t, "https://example.org/mirror", stored[0].Metadata["source_url"])

	// doc2 never got rows of its own.
	none, err := repo.GetDocument(ctx, "wiki", "doc2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIngestReplacesShrunkenDocument(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	ingestor, repo := newTestIngestor(t, embedder)

	ctx := context.Background()
	first, err := ingestor.Ingest(ctx, testRequest(words(200)))
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 1)

	// Same document shrinks to a single chunk under a new content hash; no
	// rows of the old version may survive.
	req := testRequest("short new body")
	req.ContentHash = "hash-b"
	second, err := ingestor.Ingest(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Deduplicated)
	assert.Equal(t, 1, second.ChunkCount)

	stored, err := repo.GetDocument(ctx, "wiki", "doc1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "short new body", stored[0].Text)
	assert.Equal(t, "hash-b", stored[0].ContentHash)

	// The superseded hash must not dedup a later document into the new rows.
	_, err = repo.FindDocumentByHash(ctx, "wiki", "hash-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	current, err := repo.FindDocumentByHash(ctx, "wiki", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, "doc1", current)
}

func TestIngestEmbedFailureWritesNothing(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding backend down")
	}
	ingestor, repo := newTestIngestor(t, embedder)

	ctx := context.Background()
	_, err := ingestor.Ingest(ctx, testRequest(words(120)))
	require.Error(t, err)

	count, err := repo.Count(ctx, "wiki")
	require.NoError(t, err)
	assert.Zero(t, count, "failed ingest must leave no records")

	// And the document is not findable by hash either.
	_, err = repo.FindDocumentByHash(ctx, "wiki", "hash-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIngestEmptyTextRejected(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	ingestor, _ := newTestIngestor(t, embedder)

	_, err := ingestor.Ingest(context.Background(), testRequest("   \n\t "))
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrEmptyText)
}

func TestIngestValidation(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	ingestor, _ := newTestIngestor(t, embedder)

	req := testRequest(words(10))
	req.Source = ""
	_, err := ingestor.Ingest(context.Background(), req)
	assert.Error(t, err)

	req = testRequest(words(10))
	req.DocumentID = ""
	_, err = ingestor.Ingest(context.Background(), req)
	assert.Error(t, err)
}

func TestNewIngestorValidation(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)
	ch := chunker.New(50, 5, chunker.ApproxCounter{})

	_, err = NewIngestor(nil, batchClient, nil, 1)
	assert.Error(t, err)

	_, err = NewIngestor(ch, nil, nil, 1)
	assert.Error(t, err)
}
