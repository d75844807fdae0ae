package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"njvaxbot/internal/config"
	"njvaxbot/internal/pipeline"
)

var njShow bool

func init() {
	njCmd.Flags().BoolVar(&njShow, "show", false, "Print the joined and normalized tables.")
	rootCmd.AddCommand(njCmd)
}

var njCmd = &cobra.Command{
	Use:   "nj [--show]",
	Short: "Fetches the NJ dashboards, exports the joined table and renders the county maps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, func(c *config.Config) profile {
			return profile{width: c.NJ.ImageWidth, timezone: c.NJ.Timezone}
		})
		if err != nil {
			return err
		}
		defer e.close()

		srcs, err := pipeline.NewNJSources(e.cfg.NJ, e.scraper)
		if err != nil {
			return err
		}

		res, err := e.pipeline.RunNJ(cmd.Context(), e.run, srcs)
		if err != nil {
			return fmt.Errorf("nj pipeline failed: %w", err)
		}

		if njShow {
			showTable(res.Tables.Joined, pipeline.IndexLabel)
			showTable(res.Tables.Normalized, pipeline.IndexLabel)
		}

		return nil
	},
}
