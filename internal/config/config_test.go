package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Store.Backend)
	assert.Equal(t, "complaints_full", cfg.Store.Collection)
	assert.Equal(t, "cosine", cfg.Store.Metric)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 500, cfg.RAG.ContextWidth)
	assert.Equal(t, 300, cfg.RAG.MaxNewTokens)
	assert.Equal(t, 2, cfg.RAG.SourcesShown)
	assert.Equal(t, "Consumer complaint narrative", cfg.Dataset.NarrativeColumn)
	assert.NotEmpty(t, cfg.Dataset.Products)
}

func TestLoadConfig_OverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("RAG_TEST_COLLECTION", "complaints_small")
	path := writeConfig(t, `
dataset:
  products: ["Credit card"]
rag:
  chunk_size: 300
  chunk_overlap: 30
  top_k: 3
store:
  collection: ${RAG_TEST_COLLECTION}
embed_llm:
  provider: openai
  model: text-embedding-3-small
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "complaints_small", cfg.Store.Collection)
	assert.Equal(t, []string{"Credit card"}, cfg.Dataset.Products)
	assert.Equal(t, 300, cfg.RAG.ChunkSize)
	assert.Equal(t, 30, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.RAG.BatchSize)
	assert.Equal(t, "openai", cfg.EmbedLLM.Provider)
	// untouched sections keep their defaults
	assert.Equal(t, "mistral:7b-instruct", cfg.InferenceLLM.Model)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"overlap not below size", "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"unknown backend", "store:\n  backend: faiss\n"},
		{"unknown metric", "store:\n  metric: dot\n"},
		{"short encryption key", "store:\n  encryption_key: short\n"},
		{"pgvector without dsn", "store:\n  backend: pgvector\n"},
		{"empty product list", "dataset:\n  products: []\n"},
		{"bad yaml", "rag: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
