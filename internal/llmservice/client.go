package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
)

// NewLLM builds the generative model client for the configured provider.
func NewLLM(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("llmConfig", map[string]string{
		"provider": llmConfig.Provider,
		"base_url": llmConfig.BaseURL,
		"model":    llmConfig.Model,
	}).Msg("Creating inference model")

	switch llmConfig.Provider {
	case "ollama", "":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
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
		return nil, fmt.Errorf("unknown inference provider %q", llmConfig.Provider)
	}
}

// Generator runs greedy, length-bounded completions and extracts the answer.
type Generator struct {
	llm          llms.Model
	maxNewTokens int
}

func NewGenerator(llm llms.Model, maxNewTokens int) *Generator {
	return &Generator{llm: llm, maxNewTokens: maxNewTokens}
}

// Generate completes prompt and returns the text after its answer cue.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithMaxTokens(g.maxNewTokens),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	log.Debug().Int("completion_chars", len(completion)).Msg("Generated completion")

	// the model continues the prompt, so the cue is looked up in both
	return ExtractAnswer(prompt + completion)
}

// ExtractAnswer returns the trimmed text after the last answer cue in raw.
// A missing cue or an empty answer is models.ErrGenerationFormat.
func ExtractAnswer(raw string) (string, error) {
	idx := strings.LastIndex(raw, models.AnswerCue)
	if idx < 0 {
		return "", fmt.Errorf("%w: no %q cue in output", models.ErrGenerationFormat, models.AnswerCue)
	}
	answer := strings.TrimSpace(raw[idx+len(models.AnswerCue):])
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", models.ErrGenerationFormat)
	}
	return answer, nil
}
