package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/ai/mock"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/retry"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
	badgerstore "github.com/nkissick-del/ragflow-scraper-sub000/storage/badger"
)

const testDimension = 16

func fastConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 1,
		Retry:          retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func seedRepository(t *testing.T, count int) *badgerstore.VectorRepository {
	t.Helper()

	repo, _, err := badgerstore.NewMemoryRepository(testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for i := 0; i < count; i++ {
		text := fmt.Sprintf("stored chunk %d", i)
		require.NoError(t, repo.Upsert(ctx, &core.VectorRecord{
			Source:      "wiki",
			DocumentID:  fmt.Sprintf("doc%d", i),
			ChunkIndex:  0,
			Text:        text,
			Vector:      mock.DeterministicVector(text, testDimension),
			ContentHash: fmt.Sprintf("hash%d", i),
		}))
	}
	return repo
}

// v2Embedder embeds with a different deterministic function than the seeds.
func v2Embedder() *mock.Embedder {
	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector("v2:"+text, testDimension)
		}
		return vectors, nil
	}
	return embedder
}

func TestRunReembedsEverything(t *testing.T) {
	repo := seedRepository(t, 7)
	embedder := v2Embedder()

	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)

	var out bytes.Buffer
	reindexer := New(repo, badgerstore.NewRecordIterator(repo), batchClient, fastConfig(), &out)
	require.NoError(t, reindexer.Run(context.Background()))

	ctx := context.Background()
	count, err := repo.Count(ctx, "wiki")
	require.NoError(t, err)
	assert.Equal(t, 7, count, "reindex must not add or drop records")

	// A v2 query vector now lands exactly on its record.
	query := mock.DeterministicVector("v2:stored chunk 4", testDimension)
	results, err := repo.Search(ctx, storage.Query{Vector: query, TopK: 1, Source: "wiki"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "stored chunk 4", results[0].Record.Text)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-4)

	assert.Contains(t, out.String(), "Reindexing complete")
}

func TestRunPreservesRecordIdentity(t *testing.T) {
	repo := seedRepository(t, 2)
	embedder := v2Embedder()

	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)

	var out bytes.Buffer
	reindexer := New(repo, badgerstore.NewRecordIterator(repo), batchClient, fastConfig(), &out)
	require.NoError(t, reindexer.Run(context.Background()))

	stored, err := repo.GetDocument(context.Background(), "wiki", "doc1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "stored chunk 1", stored[0].Text)
	assert.Equal(t, "hash1", stored[0].ContentHash)
}

func TestRunEmptyStore(t *testing.T) {
	repo := seedRepository(t, 0)
	embedder := v2Embedder()

	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)

	var out bytes.Buffer
	reindexer := New(repo, badgerstore.NewRecordIterator(repo), batchClient, fastConfig(), &out)
	require.NoError(t, reindexer.Run(context.Background()))
	assert.Contains(t, out.String(), "No records")
}

func TestRunAbortsOnPersistentFailure(t *testing.T) {
	repo := seedRepository(t, 5)

	embedder := mock.NewEmbedder()
	embedder.Dimension = testDimension
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model gone")
	}

	batchClient, err := ai.NewBatchClient(embedder, 4, testDimension)
	require.NoError(t, err)

	var out bytes.Buffer
	reindexer := New(repo, badgerstore.NewRecordIterator(repo), batchClient, fastConfig(), &out)
	err = reindexer.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reindexing batch")
}
