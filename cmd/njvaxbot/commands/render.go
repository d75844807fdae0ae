package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"njvaxbot/internal/binner"
	"njvaxbot/internal/config"
	"njvaxbot/internal/pipeline"
	"njvaxbot/internal/render"
)

var renderOpts struct {
	csv      string
	field    string
	palette  string
	mode     string
	template string
	out      string
	width    int
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderOpts.csv, "csv", "", "CSV export to read.")
	f.StringVar(&renderOpts.field, "field", "", "Column to bin.")
	f.StringVar(&renderOpts.palette, "palette", "", "Palette name from the configuration.")
	f.StringVar(&renderOpts.mode, "mode", string(binner.Linear), "Legend mode: linear or percent.")
	f.StringVar(&renderOpts.template, "template", "", "SVG template.")
	f.StringVar(&renderOpts.out, "out", "", "Output PNG.")
	f.IntVar(&renderOpts.width, "width", 0, "Output width in pixels (0 keeps the template size).")

	for _, name := range []string{"csv", "field", "palette", "template", "out"} {
		_ = renderCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render --csv <file> --field <name> --palette <name> --mode <linear|percent> --template <svg> --out <png>",
	Short: "Bins one column of an existing CSV export and renders it without fetching.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, func(*config.Config) profile { return profile{width: renderOpts.width} })
		if err != nil {
			return err
		}
		defer e.close()

		palette, err := e.cfg.Palette(renderOpts.palette)
		if err != nil {
			return err
		}

		mode, err := binner.ParseMode(renderOpts.mode)
		if err != nil {
			return err
		}

		res, err := pipeline.RenderCSV(cmd.Context(), render.NewSVGSink(renderOpts.width),
			renderOpts.csv, renderOpts.field, palette, mode, renderOpts.template, renderOpts.out)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}

		w := newTable()
		w.AppendHeader([]any{"Bin", "Color", "Up to"})

		for i := range binner.Bins {
			w.AppendRow([]any{i + 1, res.Palette[i], res.Labels[i]})
		}

		w.Render()

		fmt.Fprintf(os.Stderr, "wrote %s\n", renderOpts.out)

		return nil
	},
}
