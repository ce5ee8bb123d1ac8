package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"complaint-rag/internal/config"
	"complaint-rag/internal/embedding"
	"complaint-rag/internal/models"
	"complaint-rag/internal/vectorstore"
)

// Stage is the step a question is at inside Ask.
type Stage int

const (
	StageIdle Stage = iota
	StageEmbedding
	StageQuerying
	StageBuilding
	StageGenerating
)

func (s Stage) String() string {
	switch s {
	case StageEmbedding:
		return "embedding"
	case StageQuerying:
		return "querying"
	case StageBuilding:
		return "building"
	case StageGenerating:
		return "generating"
	default:
		return "idle"
	}
}

// Answerer turns a finished prompt into an answer.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline answers one question at a time against an already built store.
// It holds no per-call state and does not own its dependencies.
type Pipeline struct {
	embedder     embedding.Embedder
	store        vectorstore.Store
	generator    Answerer
	topK         int
	contextWidth int
	sourcesShown int
	sourceWidth  int
}

func NewPipeline(embedder embedding.Embedder, store vectorstore.Store, generator Answerer, cfg *config.RAGConfig) *Pipeline {
	return &Pipeline{
		embedder:     embedder,
		store:        store,
		generator:    generator,
		topK:         cfg.TopK,
		contextWidth: cfg.ContextWidth,
		sourcesShown: cfg.SourcesShown,
		sourceWidth:  cfg.SourceWidth,
	}
}

func (p *Pipeline) Ask(ctx context.Context, question string) (*models.PromptResponse, error) {
	return p.AskWhere(ctx, question, nil)
}

// AskWhere is Ask restricted to chunks whose metadata matches where.
func (p *Pipeline) AskWhere(ctx context.Context, question string, where map[string]string) (*models.PromptResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}

	stage := StageEmbedding
	log.Debug().Stringer("stage", stage).Str("question", question).Msg("Answering question")
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	stage = StageQuerying
	log.Debug().Stringer("stage", stage).Int("top_k", p.topK).Interface("where", where).Msg("Searching store")
	results, err := p.store.Query(ctx, vector, p.topK, where)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	stage = StageBuilding
	log.Debug().Stringer("stage", stage).Int("results", len(results)).Msg("Building prompt")
	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Content
	}
	prompt, err := BuildPrompt(chunks, question, p.contextWidth)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	stage = StageGenerating
	log.Debug().Stringer("stage", stage).Int("prompt_chars", len(prompt)).Msg("Generating answer")
	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	log.Debug().Stringer("stage", StageIdle).Msg("Answered")
	return &models.PromptResponse{
		Query:   question,
		Source:  FormatSources(results, p.sourcesShown, p.sourceWidth),
		Content: answer,
		Results: results,
	}, nil
}
