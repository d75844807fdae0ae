package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"njvaxbot/internal/config"
	"njvaxbot/internal/pipeline"
)

var chicagoShow bool

func init() {
	chicagoCmd.Flags().BoolVar(&chicagoShow, "show", false, "Print the latest snapshot tables.")
	rootCmd.AddCommand(chicagoCmd)
}

var chicagoCmd = &cobra.Command{
	Use:   "chicago [--show]",
	Short: "Fetches the Chicago data portal views and renders the zip code maps and caption.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, func(c *config.Config) profile {
			return profile{width: c.Chicago.ImageWidth, timezone: c.Chicago.Timezone}
		})
		if err != nil {
			return err
		}
		defer e.close()

		srcs, err := pipeline.NewChicagoSources(e.cfg.Chicago, e.scraper)
		if err != nil {
			return err
		}

		res, err := e.pipeline.RunChicago(cmd.Context(), e.run, srcs)
		if err != nil {
			return fmt.Errorf("chicago pipeline failed: %w", err)
		}

		if chicagoShow {
			for _, name := range []string{e.cfg.Chicago.Vaccination.Name, e.cfg.Chicago.Deaths.Name} {
				showTable(res.Tables[name], "Zip")
			}
		}

		fmt.Println(res.Caption)

		return nil
	},
}
