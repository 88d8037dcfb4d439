package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soundjacket/metapub/internal/catalog"
	"github.com/soundjacket/metapub/internal/models"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		root           string
		editionSize    int
		catalogBackend string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index an already published batch into the catalog",
		Long: `Fetches items 0..EDITION_SIZE-1 under an existing batch root from the
gateway and saves them to the catalog. Use it to retry indexing after a run
that published successfully but could not write every catalog entry.`,
		Example: `  metapub index --root QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				return errors.New("--root is required")
			}
			if cmd.Flags().Changed("edition-size") {
				a.cfg.EditionSize = editionSize
			}
			if cmd.Flags().Changed("catalog") {
				a.cfg.CatalogBackend = catalogBackend
			}
			if err := errors.Join(a.cfg.ValidateLocal(), a.cfg.ValidateIndex()); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			runner, store, closeStore, err := newIndexingRunner(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := runner.RunIndex(cmd.Context(), root)
			printSummary(cmd.OutOrStdout(), report)

			if finder, ok := store.(catalog.Finder); ok {
				entries, findErr := finder.Find(cmd.Context(), root)
				if findErr != nil {
					slog.Warn("Failed to list catalog entries", "root", root, "err", findErr)
				} else {
					printEntries(cmd.OutOrStdout(), entries)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Batch root returned by the publish step (required)")
	cmd.Flags().IntVar(&editionSize, "edition-size", 0, "Number of items (overrides EDITION_SIZE)")
	cmd.Flags().StringVar(&catalogBackend, "catalog", "", "mongo, postgres, parquet or memory (overrides CATALOG_BACKEND)")

	return cmd
}

func printEntries(w io.Writer, entries []models.CatalogEntry) {
	fmt.Fprintf(w, "  Catalog entries: %d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "    %d  %s  %s\n", e.Index, e.Name, e.Image)
	}
}
