package ai_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkissick-del/ragflow-scraper-sub000/ai"
	"github.com/nkissick-del/ragflow-scraper-sub000/ai/mock"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text %d", i)
	}
	return out
}

func TestSplitBatchesPreservesOrder(t *testing.T) {
	client, err := ai.NewBatchClient(mock.NewEmbedder(), 4, 384)
	require.NoError(t, err)

	batches := client.SplitBatches(texts(10))
	require.Len(t, batches, 3)
	assert.Equal(t, 0, batches[0].Start)
	assert.Len(t, batches[0].Texts, 4)
	assert.Equal(t, 4, batches[1].Start)
	assert.Equal(t, 8, batches[2].Start)
	assert.Len(t, batches[2].Texts, 2)
	assert.Equal(t, "text 8", batches[2].Texts[0])
}

func TestEmbedAllOrderCorrespondence(t *testing.T) {
	embedder := mock.NewEmbedder()
	client, err := ai.NewBatchClient(embedder, 3, 384)
	require.NoError(t, err)

	input := texts(8)
	vectors, err := client.EmbedAll(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, vectors, 8)

	for i, text := range input {
		assert.Equal(t, mock.DeterministicVector(text, 384), vectors[i],
			"vector %d must correspond to input %d", i, i)
	}
}

func TestEmbedBatchFailureReturnsNoVectors(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	client, err := ai.NewBatchClient(embedder, 4, 384)
	require.NoError(t, err)

	result := client.EmbedBatch(context.Background(), ai.Batch{Start: 0, Texts: texts(4)})
	require.Error(t, result.Err)
	assert.Nil(t, result.Vectors, "a failed batch carries no partial results")
	assert.True(t, core.IsTransient(result.Err), "transport failures are transient")
}

func TestEmbedBatchDimensionMismatchIsPermanent(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.Dimension = 128 // configured expectation below is 384
	client, err := ai.NewBatchClient(embedder, 4, 384)
	require.NoError(t, err)

	result := client.EmbedBatch(context.Background(), ai.Batch{Start: 0, Texts: texts(2)})
	require.Error(t, result.Err)
	assert.True(t, core.IsPermanent(result.Err), "dimension mismatch must never be retried")
	assert.ErrorIs(t, result.Err, core.ErrDimensionMismatch)
}

func TestEmbedBatchCountMismatchIsPermanent(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		return [][]float32{mock.DeterministicVector("only one", 384)}, nil
	}
	client, err := ai.NewBatchClient(embedder, 4, 384)
	require.NoError(t, err)

	result := client.EmbedBatch(context.Background(), ai.Batch{Start: 0, Texts: texts(3)})
	require.Error(t, result.Err)
	assert.True(t, core.IsPermanent(result.Err))
}

func TestEmbedAllAbortsOnFirstBatchFailure(t *testing.T) {
	calls := 0
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("timeout")
		}
		out := make([][]float32, len(in))
		for i := range in {
			out[i] = mock.DeterministicVector(in[i], 384)
		}
		return out, nil
	}
	client, err := ai.NewBatchClient(embedder, 2, 384)
	require.NoError(t, err)

	vectors, err := client.EmbedAll(context.Background(), texts(6))
	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 2, calls, "no batches after the failed one")
}

func TestNewBatchClientValidation(t *testing.T) {
	_, err := ai.NewBatchClient(nil, 4, 384)
	assert.ErrorIs(t, err, ai.ErrEmbedderRequired)

	_, err = ai.NewBatchClient(mock.NewEmbedder(), 4, 0)
	assert.ErrorIs(t, err, ai.ErrDimensionRequired)

	client, err := ai.NewBatchClient(mock.NewEmbedder(), 0, 384)
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultBatchSize, client.BatchSize())
}
