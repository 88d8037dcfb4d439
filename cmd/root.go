package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundjacket/metapub/internal/config"
	"github.com/soundjacket/metapub/internal/logging"
)

// app carries state shared by all commands once the config is loaded
type app struct {
	cfg     *config.Config
	verbose bool
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "metapub",
		Short: "Upload collection assets, publish their metadata and index it in a catalog",
		Long: `metapub prepares a fixed-size collection for minting.

For every item it uploads the jacket image and the shared audio track to a
content-addressed store, writes a metadata record built from a template,
publishes all records to a pinning service in one batch and indexes the
published records into a catalog.

Running metapub without a subcommand runs the whole pipeline. Configuration
comes from the environment and an optional .env file; see "metapub env".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newEnvCmd())

	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	logging.Setup(os.Stderr, level)
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables metapub reads",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			return nil
		},
	}
}
