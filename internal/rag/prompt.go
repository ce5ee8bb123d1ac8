package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/prompts"

	"complaint-rag/internal/models"
)

var promptTemplate = prompts.PromptTemplate{
	Template:       models.PromptTemplate,
	InputVariables: []string{"context", "question"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// Shorten collapses whitespace in text and, when the result is longer than
// width, drops whole words from the end and appends a placeholder so the
// total stays within width.
func Shorten(text string, width int) (string, error) {
	marker := strings.TrimSpace(models.ShortenPlaceholder)
	if width < utf8.RuneCountInString(marker) {
		return "", fmt.Errorf("width %d is too small for placeholder %q", width, marker)
	}

	words := strings.Fields(text)
	joined := strings.Join(words, " ")
	if utf8.RuneCountInString(joined) <= width {
		return joined, nil
	}

	budget := width - utf8.RuneCountInString(models.ShortenPlaceholder)
	kept, n := 0, 0
	for i, w := range words {
		next := n + utf8.RuneCountInString(w)
		if i > 0 {
			next++
		}
		if next > budget {
			break
		}
		kept, n = i+1, next
	}
	if kept == 0 {
		return marker, nil
	}
	return strings.Join(words[:kept], " ") + models.ShortenPlaceholder, nil
}

// BuildPrompt renders retrieved chunks and the question into the answer
// prompt. Chunks keep their order; the result ends with the answer cue.
func BuildPrompt(chunks []string, question string, width int) (string, error) {
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		short, err := Shorten(c, width)
		if err != nil {
			return "", err
		}
		lines = append(lines, "- "+short)
	}

	prompt, err := promptTemplate.Format(map[string]any{
		"context":  strings.Join(lines, models.ChunkSeparator),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return strings.TrimSpace(prompt), nil
}

// FormatSources renders the first n results as numbered excerpts of at most
// width characters.
func FormatSources(results []models.QueryResult, n, width int) string {
	n = min(n, len(results))
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf("Source %d:\n%s", i+1, truncate(results[i].Content, width)))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width])
}
