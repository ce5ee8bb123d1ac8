package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-rag/internal/chromemdb"
	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
	"complaint-rag/internal/parser"
)

// keywordEmbedder puts each text on axes chosen by the words it contains.
type keywordEmbedder struct {
	err error
}

var keywordAxes = []string{"fee", "declin", "loan", "transfer"}

func (k *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	vec := make([]float32, len(keywordAxes)+1)
	vec[len(keywordAxes)] = 0.1
	for i, w := range keywordAxes {
		if strings.Contains(text, w) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := k.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeAnswerer struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeAnswerer) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func memoryStore(t *testing.T) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	_, err = m.GetOrCreateCollection(models.Schema{Name: "complaints_test", Dimension: len(keywordAxes) + 1, Metric: models.MetricCosine})
	require.NoError(t, err)
	return m
}

func ragConfig() *config.RAGConfig {
	cfg := config.Default().RAG
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10
	cfg.BatchSize = 2
	return &cfg
}

func complaintRecords() []models.Record {
	return []models.Record{
		{ComplaintID: "1", Product: "Credit card", Narrative: "The annual fee was charged twice on my card."},
		{ComplaintID: "2", Product: "Credit card", Narrative: "My card was declined repeatedly at the store."},
		{ComplaintID: "3", Product: "Personal loan", Narrative: "The loan payoff amount was wrong."},
		{ComplaintID: "4", Product: "Money transfers", Narrative: "I am writing to file a complaint. My transfer never arrived!"},
	}
}

func buildIndex(t *testing.T) (*chromemdb.VectorDBManager, IndexStats) {
	t.Helper()
	cfg := ragConfig()
	store := memoryStore(t)
	chunker, err := parser.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkStrategy)
	require.NoError(t, err)

	stats, err := NewIndexer(chunker, &keywordEmbedder{}, store, cfg.BatchSize, 0).Index(context.Background(), complaintRecords())
	require.NoError(t, err)
	return store, stats
}

func TestPipeline_Ask(t *testing.T) {
	store, _ := buildIndex(t)
	gen := &fakeAnswerer{answer: "Customers report duplicate fees."}
	cfg := ragConfig()
	cfg.TopK = 2

	resp, err := NewPipeline(&keywordEmbedder{}, store, gen, cfg).Ask(context.Background(), "Which fee complaints are common?")
	require.NoError(t, err)

	assert.Equal(t, "Which fee complaints are common?", resp.Query)
	assert.Equal(t, "Customers report duplicate fees.", resp.Content)
	require.Len(t, resp.Results, 2)
	assert.Contains(t, resp.Documents()[0], "annual fee")
	assert.Equal(t, "1", resp.Metadatas()[0][models.MetaComplaintID])
	assert.True(t, strings.HasPrefix(resp.Source, "Source 1:\nthe annual fee"))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "- the annual fee was charged twice on my card")
	assert.True(t, strings.HasSuffix(gen.prompts[0], "Answer:"))
}

func TestPipeline_AskWhere(t *testing.T) {
	store, _ := buildIndex(t)
	gen := &fakeAnswerer{answer: "Loan payoff errors."}

	resp, err := NewPipeline(&keywordEmbedder{}, store, gen, ragConfig()).
		AskWhere(context.Background(), "Which fee complaints are common?", map[string]string{models.MetaProduct: "Personal loan"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Personal loan", resp.Results[0].Metadata[models.MetaProduct])
}

func TestPipeline_StageErrorsAbort(t *testing.T) {
	store, _ := buildIndex(t)
	boom := errors.New("boom")
	ctx := context.Background()

	_, err := NewPipeline(&keywordEmbedder{err: boom}, store, &fakeAnswerer{answer: "x"}, ragConfig()).Ask(ctx, "fees?")
	assert.ErrorIs(t, err, boom)

	gen := &fakeAnswerer{err: models.ErrGenerationFormat}
	resp, err := NewPipeline(&keywordEmbedder{}, store, gen, ragConfig()).Ask(ctx, "fees?")
	assert.ErrorIs(t, err, models.ErrGenerationFormat)
	assert.Nil(t, resp)

	_, err = NewPipeline(&keywordEmbedder{}, store, gen, ragConfig()).Ask(ctx, "  ")
	assert.Error(t, err)
}

func TestPipeline_DimensionMismatch(t *testing.T) {
	m, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	_, err = m.GetOrCreateCollection(models.Schema{Name: "complaints_test", Dimension: 3, Metric: models.MetricCosine})
	require.NoError(t, err)

	_, err = NewPipeline(&keywordEmbedder{}, m, &fakeAnswerer{answer: "x"}, ragConfig()).Ask(context.Background(), "fees?")
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "embedding", StageEmbedding.String())
	assert.Equal(t, "querying", StageQuerying.String())
	assert.Equal(t, "building", StageBuilding.String())
	assert.Equal(t, "generating", StageGenerating.String())
}
