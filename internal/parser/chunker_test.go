package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-rag/internal/models"
)

func TestChunkTexts_Windows(t *testing.T) {
	chunks, err := ChunkTexts([]string{"abcdefghij"}, 4, 1, " ")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)

	chunks, err = ChunkTexts([]string{"abcdefghijk"}, 4, 1, " ")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij", "jk"}, chunks)
}

func TestChunkTexts_ShortAndEmpty(t *testing.T) {
	chunks, err := ChunkTexts([]string{"short"}, 100, 10, " ")
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, chunks)

	chunks, err = ChunkTexts(nil, 100, 10, " ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkTexts_JoinsWithSeparator(t *testing.T) {
	chunks, err := ChunkTexts([]string{"ab", "cd"}, 10, 0, "|")
	require.NoError(t, err)
	assert.Equal(t, []string{"ab|cd"}, chunks)
}

func TestChunkTexts_InvalidWindow(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, 10}, {10, 11}, {10, -1}} {
		_, err := ChunkTexts([]string{"text"}, tc.size, tc.overlap, " ")
		assert.Error(t, err, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestChunkTexts_ReassembleExactly(t *testing.T) {
	texts := []string{
		"loan fees too high and nobody at the bank would explain them",
		"card declined repeatedly at the grocery store",
		"my money transfer never arrived - über slow, ça va?",
	}
	joined := strings.Join(texts, models.ChunkSeparator)

	for size := 1; size <= 40; size++ {
		for overlap := 0; overlap < size; overlap++ {
			chunks, err := ChunkTexts(texts, size, overlap, models.ChunkSeparator)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			for i, c := range chunks {
				assert.LessOrEqual(t, len([]rune(c)), size, "chunk %d too long", i)
			}
			assert.Equal(t, joined, Reassemble(chunks, overlap), "size=%d overlap=%d", size, overlap)
		}
	}
}

func TestChunker_ChunkRecord(t *testing.T) {
	c, err := NewChunker(10, 2, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyWindow, c.Strategy)

	rec := models.Record{ComplaintID: "42", Product: "Credit card", Cleaned: "card declined repeatedly"}
	chunks, err := c.ChunkRecord(rec)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, "42", ch.ComplaintID)
		assert.Equal(t, "Credit card", ch.Product)
		assert.Equal(t, i, ch.ChunkID)
	}
	assert.Equal(t, rec.Cleaned, Reassemble([]string{chunks[0].Content, chunks[1].Content, chunks[2].Content}, 2))

	empty, err := c.ChunkRecord(models.Record{ComplaintID: "43"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChunker_Recursive(t *testing.T) {
	c, err := NewChunker(40, 5, StrategyRecursive)
	require.NoError(t, err)

	text := "the bank charged me a late fee even though i paid on time and then refused to refund it"
	chunks, err := c.Split([]string{text})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 40)
	}
}

func TestNewChunker_Invalid(t *testing.T) {
	_, err := NewChunker(10, 10, StrategyWindow)
	assert.Error(t, err)
	_, err = NewChunker(10, 2, "semantic")
	assert.Error(t, err)
}
