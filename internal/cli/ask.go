package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"complaint-rag/internal/embedding"
	"complaint-rag/internal/llmservice"
	"complaint-rag/internal/models"
	"complaint-rag/internal/rag"
	"complaint-rag/internal/vectorstore"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		product string
		topK    int
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed complaints",
		Long: `Embed the question, retrieve the closest complaint chunks and generate an
answer grounded in them. Without an argument, questions are read one per line
from standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if topK > 0 {
				cfg.RAG.TopK = topK
			}

			store, err := vectorstore.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedder, err := embedding.New(&cfg.EmbedLLM, cfg.RAG.BatchSize)
			if err != nil {
				return err
			}
			llm, err := llmservice.NewLLM(&cfg.InferenceLLM)
			if err != nil {
				return err
			}
			pipeline := rag.NewPipeline(embedder, store, llmservice.NewGenerator(llm, cfg.RAG.MaxNewTokens), &cfg.RAG)

			var where map[string]string
			if product != "" {
				where = map[string]string{models.MetaProduct: product}
			}

			ledger, err := a.openHistory()
			if err != nil {
				return err
			}
			if ledger != nil {
				defer ledger.Close()
			}
			answer := func(question string) error {
				response, err := pipeline.AskWhere(ctx, question, where)
				if err != nil {
					return err
				}
				printResponse(cmd.OutOrStdout(), response)
				if ledger == nil {
					return nil
				}
				ids := make([]string, len(response.Results))
				for i, r := range response.Results {
					ids[i] = r.ID
				}
				return ledger.RecordAnswer(ctx, cfg.Store.Collection, question, response.Content, ids)
			}

			if len(args) == 1 {
				return answer(args[0])
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if err := answer(question); err != nil {
					log.Error().Err(err).Str("question", question).Msg("Error answering")
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "Only retrieve complaints for this product")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (default rag.top_k)")
	return cmd
}

func printResponse(w io.Writer, response *models.PromptResponse) {
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(w, "%s\n\n", response.Query)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(w, "%s\n\n", response.Content)

	if response.Source != "" {
		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(w, "%s\n\n", response.Source)
	}
}
