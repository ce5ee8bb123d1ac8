package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"complaint-rag/internal/embedding"
	"complaint-rag/internal/helper"
	"complaint-rag/internal/models"
	"complaint-rag/internal/parser"
	"complaint-rag/internal/vectorstore"
)

// IndexStats reports what one Index call did.
type IndexStats struct {
	RunID     string `json:"run_id"`
	Records   int    `json:"records"`
	Chunks    int    `json:"chunks"`
	Added     int    `json:"added"`
	Truncated bool   `json:"truncated"`
}

// Indexer builds the vector store from complaint records.
type Indexer struct {
	chunker   *parser.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Store
	batchSize int
	maxChunks int
}

func NewIndexer(chunker *parser.Chunker, embedder embedding.Embedder, store vectorstore.Store, batchSize, maxChunks int) *Indexer {
	return &Indexer{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		maxChunks: maxChunks,
	}
}

// Index chunks, embeds and stores records. Entry ids continue the
// collection's insertion sequence as chunk_<n>. Cleaned text, as set by
// parser.LoadRecords, is used as is; only records without it are cleaned here.
// Each batch is embedded and stored before the next one is embedded, so a
// failure keeps the batches already written.
func (ix *Indexer) Index(ctx context.Context, records []models.Record) (IndexStats, error) {
	if ix.batchSize <= 0 {
		return IndexStats{}, fmt.Errorf("batch size must be positive, got %d", ix.batchSize)
	}
	runID, err := helper.GenerateUUID()
	if err != nil {
		return IndexStats{}, err
	}
	stats := IndexStats{RunID: runID, Records: len(records)}

	var chunks []models.Chunk
	for i, rec := range records {
		if rec.Cleaned == "" && rec.Narrative != "" {
			rec.Cleaned = parser.CleanText(rec.Narrative)
		}
		cs, err := ix.chunker.ChunkRecord(rec)
		if err != nil {
			return stats, err
		}
		chunks = append(chunks, cs...)
		if ix.maxChunks > 0 && len(chunks) >= ix.maxChunks {
			stats.Truncated = len(chunks) > ix.maxChunks || i < len(records)-1
			chunks = chunks[:ix.maxChunks]
			break
		}
	}
	stats.Chunks = len(chunks)
	if stats.Truncated {
		log.Warn().Int("max_chunks", ix.maxChunks).Msg("Chunk cap reached, remaining records skipped")
	}
	log.Info().Str("run", runID).Int("records", len(records)).Int("chunks", len(chunks)).Msg("Chunked records")
	if len(chunks) == 0 {
		return stats, nil
	}

	base, err := ix.store.Count(ctx)
	if err != nil {
		return stats, err
	}
	dim := ix.store.Schema().Dimension

	added, err := vectorstore.AddBatched(ctx, ix.store, len(chunks), ix.batchSize, func(ctx context.Context, start, end int) ([]models.Entry, error) {
		vectors, err := embedding.GenerateEmbedding(ctx, ix.embedder, chunks[start:end], dim)
		if err != nil {
			return nil, err
		}
		batch := make([]models.Entry, len(vectors))
		for i, v := range vectors {
			c := chunks[start+i]
			batch[i] = models.Entry{
				ID:        fmt.Sprintf("chunk_%d", base+start+i),
				Embedding: v,
				Content:   c.Content,
				Metadata: map[string]string{
					models.MetaComplaintID: c.ComplaintID,
					models.MetaProduct:     c.Product,
					models.MetaChunkIndex:  strconv.Itoa(c.ChunkID),
					models.MetaIngestRun:   runID,
				},
			}
		}
		return batch, nil
	})
	stats.Added = added
	return stats, err
}
