package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soundjacket/metapub/internal/results"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		editionSize    int
		outputDir      string
		uploadBackend  string
		catalogBackend string
		concurrency    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline",
		Long: `Locates and uploads every item's assets, writes the metadata files,
publishes them in one batch and indexes the published records.

Flags override the matching environment variables for this run.`,
		Example: `  # Run with the settings from .env
  metapub run

  # Ten items, uploaded four at a time, catalogued to a parquet file
  metapub run --edition-size 10 --concurrency 4 --catalog parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("edition-size") {
				a.cfg.EditionSize = editionSize
			}
			if flags.Changed("output") {
				a.cfg.OutputDir = outputDir
			}
			if flags.Changed("upload-backend") {
				a.cfg.UploadBackend = uploadBackend
			}
			if flags.Changed("catalog") {
				a.cfg.CatalogBackend = catalogBackend
			}
			if flags.Changed("concurrency") {
				a.cfg.UploadConcurrency = concurrency
			}
			return a.runPipeline(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&editionSize, "edition-size", 0, "Number of items (overrides EDITION_SIZE)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (overrides OUTPUT_DIR)")
	cmd.Flags().StringVar(&uploadBackend, "upload-backend", "", "moralis or s3 (overrides UPLOAD_BACKEND)")
	cmd.Flags().StringVar(&catalogBackend, "catalog", "", "mongo, postgres, parquet or memory (overrides CATALOG_BACKEND)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Items uploaded in parallel (overrides UPLOAD_CONCURRENCY)")

	return cmd
}

func (a *app) runPipeline(ctx context.Context, out io.Writer) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runner, closeStore, err := newRunner(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := runner.Run(ctx)
	printSummary(out, report)
	return err
}

func printSummary(w io.Writer, r *results.Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "\nRun %s: %s\n", r.RunID, r.State)
	if r.Root != "" {
		fmt.Fprintf(w, "  Batch root: %s\n", r.Root)
	}
	for _, s := range r.Stages {
		fmt.Fprintf(w, "  %-24s %s\n", s.State, s.Duration)
	}
	if !r.HasFailures() {
		return
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}
	fmt.Fprintf(w, "  Failures: %d\n", len(r.Failures))
	for _, f := range r.Failures {
		if f.Index < 0 {
			fmt.Fprintf(w, "    %s: %s\n", f.Stage, f.Error)
			continue
		}
		fmt.Fprintf(w, "    %s item %d: %s\n", f.Stage, f.Index, f.Error)
	}
}
