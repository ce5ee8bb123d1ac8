package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"complaint-rag/internal/embedding"
	"complaint-rag/internal/helper"
	"complaint-rag/internal/history"
	"complaint-rag/internal/parser"
	"complaint-rag/internal/rag"
	"complaint-rag/internal/vectorstore"
)

func newIngestCmd(a *app) *cobra.Command {
	var dryRun, reset bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index the complaint narratives",
		Long: `Load and clean the dataset, split every narrative into overlapping chunks,
embed them and add them to the configured vector store collection. Running
ingest again appends to an existing collection; --reset drops it first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			records, _, err := loadDataset(a)
			if err != nil {
				return err
			}
			chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.ChunkStrategy)
			if err != nil {
				return err
			}

			if dryRun {
				var chunks int
				for _, rec := range records {
					cs, err := chunker.ChunkRecord(rec)
					if err != nil {
						return err
					}
					chunks += len(cs)
				}
				helper.PrettyPrint(cmd.OutOrStdout(), map[string]int{"records": len(records), "chunks": chunks})
				return nil
			}

			embedder, err := embedding.New(&cfg.EmbedLLM, cfg.RAG.BatchSize)
			if err != nil {
				return err
			}
			dim, err := embedding.Probe(ctx, embedder)
			if err != nil {
				return err
			}
			log.Info().Str("model", cfg.EmbedLLM.Model).Int("dimension", dim).Msg("Embedding model ready")

			if reset {
				if err := vectorstore.Reset(ctx, cfg); err != nil {
					return err
				}
			}
			store, err := vectorstore.Create(ctx, cfg, dim)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := rag.NewIndexer(chunker, embedder, store, cfg.RAG.BatchSize, cfg.RAG.MaxChunks).Index(ctx, records)
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), stats)

			ledger, err := a.openHistory()
			if err != nil || ledger == nil {
				return err
			}
			defer ledger.Close()
			return ledger.RecordIngest(ctx, history.IngestRun{
				RunID:      stats.RunID,
				Backend:    cfg.Store.Backend,
				Collection: cfg.Store.Collection,
				Records:    stats.Records,
				Chunks:     stats.Chunks,
				Added:      stats.Added,
				Truncated:  stats.Truncated,
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Chunk only, do not embed or store")
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the existing collection before indexing")
	return cmd
}
