package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"complaint-rag/internal/config"
	"complaint-rag/internal/history"
)

const defaultConfigPath = "./configs/config.yaml"

// app carries state shared by every subcommand once the root has run.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd builds the complaint-rag command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "complaint-rag",
		Short: "Question answering over customer complaint narratives",
		Long: `complaint-rag cleans a complaint dataset, indexes the narratives into a
vector store and answers questions grounded in the retrieved complaints.

Examples:
  complaint-rag clean --output data/filtered_complaints.csv
  complaint-rag ingest
  complaint-rag ask "Why are customers unhappy with BNPL?"
  complaint-rag ask --product "Credit card" "What fees do people dispute?"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			if err := setupLogging(cmd.ErrOrStderr(), &cfg.Log); err != nil {
				return err
			}
			log.Debug().Str("path", a.configPath).Interface("config", redacted(cfg)).Msg("Loaded config")
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newCleanCmd(a),
		newIngestCmd(a),
		newAskCmd(a),
		newInfoCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return cmd
}

// openHistory opens the ingest/answer ledger, or returns nil when it is
// disabled.
func (a *app) openHistory() (*history.Store, error) {
	if a.cfg.History.Path == "" {
		return nil, nil
	}
	return history.Open(a.cfg.History.Path)
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(w io.Writer, cfg *config.LogConfig) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
		return nil
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return nil
}

// redacted returns a copy of cfg safe to log.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.EmbedLLM.Key != "" {
		c.EmbedLLM.Key = "***"
	}
	if c.InferenceLLM.Key != "" {
		c.InferenceLLM.Key = "***"
	}
	if c.Database.Password != "" {
		c.Database.Password = "***"
	}
	if c.Store.EncryptionKey != "" {
		c.Store.EncryptionKey = "***"
	}
	if c.Store.Qdrant.APIKey != "" {
		c.Store.Qdrant.APIKey = "***"
	}
	return c
}
