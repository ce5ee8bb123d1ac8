package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"complaint-rag/internal/chromemdb"
	"complaint-rag/internal/helper"
	"complaint-rag/internal/vectorstore"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the collection to a single (optionally encrypted) file",
		Long: `Export the configured chromem collection to one gob file. The file is
gzip-compressed when store.compress is set and AES-GCM encrypted when
store.encryption_key is set. The collection schema is written next to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := vectorstore.Open(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			backup, ok := store.(vectorstore.Backup)
			if !ok {
				return fmt.Errorf("the %s backend does not support export", a.cfg.Store.Backend)
			}
			if err := backup.Export(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Str("file", args[0]).Msg("Exported collection")
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a collection written by export into store.path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Store
			if cfg.Backend != vectorstore.BackendChromem {
				return fmt.Errorf("the %s backend does not support import", cfg.Backend)
			}
			if err := helper.CreateFolder(cfg.Path); err != nil {
				return err
			}
			m, err := chromemdb.NewVectorDBManager(cfg.Path, false, cfg.Compress, cfg.EncryptionKey)
			if err != nil {
				return err
			}
			if err := m.Import(cmd.Context(), args[0]); err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), m.Schema())
			return nil
		},
	}
}
