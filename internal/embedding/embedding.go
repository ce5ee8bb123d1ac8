package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
)

// Embedder is satisfied by langchaingo's embeddings.EmbedderImpl.
type Embedder = embeddings.Embedder

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// New builds the embedder once for the process; batchSize bounds how many
// texts go into one model call.
func New(llmConfig *config.LLMConfig, batchSize int) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	client, err := newClient(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("initialize embedding client: %w", err)
	}
	return NewWithClient(client, batchSize)
}

// NewWithClient wraps any langchaingo embedding client.
func NewWithClient(client embeddings.EmbedderClient, batchSize int) (*embeddings.EmbedderImpl, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

func newClient(llmConfig *config.LLMConfig) (embeddings.EmbedderClient, error) {
	switch llmConfig.Provider {
	case ProviderOllama, "":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", llmConfig.Provider)
	}
}

// Probe embeds a fixed string to learn the model's output dimension.
func Probe(ctx context.Context, embedder Embedder) (int, error) {
	vec, err := embedder.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("embedding model returned an empty vector")
	}
	return len(vec), nil
}

// GenerateEmbedding embeds chunks in order, checking every vector has dim
// entries when dim is positive.
func GenerateEmbedding(ctx context.Context, embedder Embedder, chunks []models.Chunk, dim int) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, want %d", models.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, nil
}
