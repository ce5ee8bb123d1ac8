package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"complaint-rag/internal/models"
	"complaint-rag/internal/parser"
)

func newCleanCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Filter and clean the complaint dataset",
		Long: `Load the dataset, keep complaints for the configured products that carry a
narrative, normalize the narratives and write the result to CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = a.cfg.Dataset.CleanedOutput
			}
			if output == "" {
				return fmt.Errorf("no output path: pass --output or set dataset.cleaned_output")
			}

			records, stats, err := loadDataset(a)
			if err != nil {
				return err
			}
			if err := parser.SaveRecords(output, records); err != nil {
				return fmt.Errorf("save cleaned dataset: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rows read:     %d\n", stats.Rows)
			fmt.Fprintf(out, "Eligible rows: %d\n", stats.Eligible)
			for _, p := range a.cfg.Dataset.Products {
				fmt.Fprintf(out, "  %-28s %d\n", p, stats.ByProduct[p])
			}
			fmt.Fprintf(out, "Saved %d records to %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV path for the cleaned dataset (default dataset.cleaned_output)")
	return cmd
}

// loadDataset reads, filters and optionally samples the configured dataset.
func loadDataset(a *app) ([]models.Record, parser.LoadStats, error) {
	records, stats, err := parser.LoadRecords(&a.cfg.Dataset)
	if err != nil {
		return nil, stats, err
	}
	if n := a.cfg.Dataset.SampleSize; n > 0 && n < len(records) {
		records = parser.Sample(records, n, a.cfg.Dataset.Seed)
		log.Info().Int("sample_size", len(records)).Int64("seed", a.cfg.Dataset.Seed).Msg("Sampled records")
	}
	return records, stats, nil
}
