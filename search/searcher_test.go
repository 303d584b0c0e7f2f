package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai/mock"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	badgerstore "github.com/nkissick-del/ragflow-scraper-sub000/storage/badger"
)

const testDimension = 16

func seedRepository(t *testing.T) *badgerstore.VectorRepository {
	t.Helper()

	repo, _, err := badgerstore.NewMemoryRepository(testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		text := fmt.Sprintf("chunk number %d", i)
		record := &core.VectorRecord{
			Source:      "wiki",
			DocumentID:  fmt.Sprintf("doc%d", i),
			ChunkIndex:  0,
			Text:        text,
			Vector:      mock.DeterministicVector(text, testDimension),
			Metadata:    map[string]string{"parity": fmt.Sprintf("%d", i%2)},
			ContentHash: fmt.Sprintf("hash%d", i),
		}
		require.NoError(t, repo.Upsert(ctx, record))
	}
	return repo
}

func newTestSearcher(t *testing.T) *Searcher {
	t.Helper()
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	searcher, err := New(embedder, seedRepository(t))
	require.NoError(t, err)
	return searcher
}

func TestSearchRanksExactMatchFirst(t *testing.T) {
	searcher := newTestSearcher(t)

	results, err := searcher.Search(context.Background(), "chunk number 3", Options{TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "chunk number 3", results[0].Record.Text)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score,
			"scores must be non-increasing")
	}
}

func TestSearchSourceAndMetadataFilters(t *testing.T) {
	searcher := newTestSearcher(t)

	results, err := searcher.Search(context.Background(), "chunk number 4", Options{
		TopK:     10,
		Source:   "wiki",
		Metadata: map[string]string{"parity": "0"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, result := range results {
		assert.Equal(t, "0", result.Record.Metadata["parity"])
	}

	none, err := searcher.Search(context.Background(), "chunk number 4", Options{
		TopK:   5,
		Source: "unknown-source",
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchMinScore(t *testing.T) {
	searcher := newTestSearcher(t)

	results, err := searcher.Search(context.Background(), "chunk number 7", Options{
		TopK:     10,
		MinScore: 0.999,
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "only the exact match clears the threshold")
	assert.Equal(t, "chunk number 7", results[0].Record.Text)
}

func TestSearchEmptyQuery(t *testing.T) {
	searcher := newTestSearcher(t)

	_, err := searcher.Search(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestNewValidation(t *testing.T) {
	embedder := mock.NewEmbedder()

	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = New(embedder, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
}
