package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soundjacket/metapub/internal/assets"
	"github.com/soundjacket/metapub/internal/template"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the template and that every item's assets exist",
		Long: `Loads the metadata template and locates the image of every item and the
shared audio file without contacting any remote service. All problems are
reported at once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := cfg.ValidateLocal(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			tpl, err := template.Load(cfg.TemplatePath)
			if err != nil {
				return err
			}
			slog.Info("Template ok", "path", cfg.TemplatePath, "name", tpl.Name, "attributes", len(tpl.Attributes))

			locator := assets.NewLocator(cfg.ImageDir(), cfg.AudioFile, cfg.ImageExtensions)
			if err := locator.Check(cfg.EditionSize); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "All %d items have an image and the audio file is present.\n", cfg.EditionSize)
			return nil
		},
	}
}
