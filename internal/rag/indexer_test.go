package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-rag/internal/models"
	"complaint-rag/internal/parser"
)

func TestIndexer_Index(t *testing.T) {
	store, stats := buildIndex(t)
	ctx := context.Background()

	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, 4, stats.Chunks)
	assert.Equal(t, 4, stats.Added)
	assert.False(t, stats.Truncated)
	assert.NotEmpty(t, stats.RunID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	results, err := store.Query(ctx, []float32{0, 0, 0, 1, 0.1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	hit := results[0]
	assert.Equal(t, "chunk_3", hit.ID)
	assert.Equal(t, "my transfer never arrived", hit.Content)
	assert.Equal(t, "4", hit.Metadata[models.MetaComplaintID])
	assert.Equal(t, "Money transfers", hit.Metadata[models.MetaProduct])
	assert.Equal(t, "0", hit.Metadata[models.MetaChunkIndex])
	assert.Equal(t, stats.RunID, hit.Metadata[models.MetaIngestRun])
}

func TestIndexer_IDsContinueAcrossRuns(t *testing.T) {
	store, first := buildIndex(t)
	chunker, err := parser.NewChunker(60, 10, parser.StrategyWindow)
	require.NoError(t, err)

	second, err := NewIndexer(chunker, &keywordEmbedder{}, store, 3, 0).Index(context.Background(), complaintRecords()[:1])
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	results, err := store.Query(context.Background(), []float32{1, 0, 0, 0, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk_0", results[0].ID)
	assert.Equal(t, "chunk_4", results[1].ID)
}

func TestIndexer_MaxChunks(t *testing.T) {
	store := memoryStore(t)
	chunker, err := parser.NewChunker(20, 5, parser.StrategyWindow)
	require.NoError(t, err)

	var records []models.Record
	for i := 0; i < 10; i++ {
		records = append(records, models.Record{
			ComplaintID: fmt.Sprint(i),
			Product:     "Credit card",
			Narrative:   "the late fee was applied although the payment posted on time",
		})
	}

	stats, err := NewIndexer(chunker, &keywordEmbedder{}, store, 4, 7).Index(context.Background(), records)
	require.NoError(t, err)
	assert.True(t, stats.Truncated)
	assert.Equal(t, 7, stats.Chunks)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestIndexer_EmptyNarratives(t *testing.T) {
	store := memoryStore(t)
	chunker, err := parser.NewChunker(60, 10, parser.StrategyWindow)
	require.NoError(t, err)

	stats, err := NewIndexer(chunker, &keywordEmbedder{}, store, 4, 0).
		Index(context.Background(), []models.Record{{ComplaintID: "1", Narrative: "!!!"}})
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Added)
}

// failingEmbedder fails on the failOn-th EmbedDocuments call.
type failingEmbedder struct {
	keywordEmbedder
	failOn int
	calls  int
}

func (f *failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("model crashed")
	}
	return f.keywordEmbedder.EmbedDocuments(ctx, texts)
}

func TestIndexer_FailureKeepsStoredBatches(t *testing.T) {
	store := memoryStore(t)
	chunker, err := parser.NewChunker(60, 10, parser.StrategyWindow)
	require.NoError(t, err)

	stats, err := NewIndexer(chunker, &failingEmbedder{failOn: 2}, store, 1, 0).
		Index(context.Background(), complaintRecords())
	require.ErrorContains(t, err, "model crashed")
	assert.Equal(t, 4, stats.Chunks)
	assert.Equal(t, 1, stats.Added)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexer_UsesCleanedText(t *testing.T) {
	store := memoryStore(t)
	chunker, err := parser.NewChunker(60, 10, parser.StrategyWindow)
	require.NoError(t, err)

	stats, err := NewIndexer(chunker, &keywordEmbedder{}, store, 4, 0).Index(context.Background(), []models.Record{
		{ComplaintID: "1", Product: "Credit card", Narrative: "RAW Narrative!!", Cleaned: "annual fee dispute"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Added)

	results, err := store.Query(context.Background(), []float32{1, 0, 0, 0, 0.1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "annual fee dispute", results[0].Content)
}
