package cli

import (
	"time"

	"github.com/spf13/cobra"

	"complaint-rag/internal/helper"
	"complaint-rag/internal/history"
	"complaint-rag/internal/vectorstore"
)

type storeInfo struct {
	Backend    string `json:"backend"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Metric     string `json:"metric"`
	CreatedAt  string `json:"created_at,omitempty"`
	Entries    int    `json:"entries"`

	Ingests []history.IngestRun `json:"recent_ingests,omitempty"`
	Answers []history.Answer    `json:"recent_answers,omitempty"`
}

const recentLimit = 5

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the schema and size of the configured collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := vectorstore.Open(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Count(ctx)
			if err != nil {
				return err
			}
			schema := store.Schema()
			info := storeInfo{
				Backend:    a.cfg.Store.Backend,
				Collection: schema.Name,
				Dimension:  schema.Dimension,
				Metric:     schema.Metric,
				Entries:    count,
			}
			if !schema.CreatedAt.IsZero() {
				info.CreatedAt = schema.CreatedAt.Format(time.RFC3339)
			}

			ledger, err := a.openHistory()
			if err != nil {
				return err
			}
			if ledger != nil {
				defer ledger.Close()
				if info.Ingests, err = ledger.RecentIngests(ctx, schema.Name, recentLimit); err != nil {
					return err
				}
				if info.Answers, err = ledger.RecentAnswers(ctx, schema.Name, recentLimit); err != nil {
					return err
				}
			}
			helper.PrettyPrint(cmd.OutOrStdout(), info)
			return nil
		},
	}
}
