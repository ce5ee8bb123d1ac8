package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"complaint-rag/internal/models"
)

const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// Chunker splits cleaned narratives into retrieval units.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	Strategy     string
	Separator    string
}

func NewChunker(size, overlap int, strategy string) (*Chunker, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = StrategyWindow
	}
	if strategy != StrategyWindow && strategy != StrategyRecursive {
		return nil, fmt.Errorf("unknown chunk strategy %q", strategy)
	}
	return &Chunker{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Strategy:     strategy,
		Separator:    models.ChunkSeparator,
	}, nil
}

// Split chunks the concatenation of texts with the configured strategy.
func (c *Chunker) Split(texts []string) ([]string, error) {
	if c.Strategy == StrategyRecursive {
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.ChunkSize),
			textsplitter.WithChunkOverlap(c.ChunkOverlap),
		)
		content := strings.Join(texts, c.Separator)
		if content == "" {
			return nil, nil
		}
		return splitter.SplitText(content)
	}
	return ChunkTexts(texts, c.ChunkSize, c.ChunkOverlap, c.Separator)
}

// ChunkRecord turns one complaint into chunks tagged with its source.
func (c *Chunker) ChunkRecord(rec models.Record) ([]models.Chunk, error) {
	pieces, err := c.Split([]string{rec.Cleaned})
	if err != nil {
		return nil, fmt.Errorf("chunk complaint %s: %w", rec.ComplaintID, err)
	}
	chunks := make([]models.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, models.Chunk{
			Content:     p,
			ComplaintID: rec.ComplaintID,
			Product:     rec.Product,
			ChunkID:     i,
		})
	}
	return chunks, nil
}

func checkWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return nil
}

// ChunkTexts joins texts with sep and slides a window of size runes across
// the result, advancing size-overlap runes per step. The tail that fits in one
// window becomes the last chunk, so every rune is covered.
func ChunkTexts(texts []string, size, overlap int, sep string) ([]string, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(strings.Join(texts, sep))
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []string
	start := 0
	for len(runes)-start > size {
		chunks = append(chunks, string(runes[start:start+size]))
		start += step
	}
	return append(chunks, string(runes[start:])), nil
}

// Reassemble is the inverse of ChunkTexts: it drops the leading overlap of
// every chunk after the first.
func Reassemble(chunks []string, overlap int) string {
	var content strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			content.WriteString(chunk)
			continue
		}
		r := []rune(chunk)
		if len(r) > overlap {
			content.WriteString(string(r[overlap:]))
		}
	}
	return content.String()
}
