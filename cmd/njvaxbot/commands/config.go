package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configOut string

func init() {
	configCmd.Flags().StringVar(&configOut, "out", "", "Path of the YAML file to write.")
	_ = configCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config --out <file>",
	Short: "Writes the effective configuration after the local override and environment are applied.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := cfg.SaveConfig(configOut); err != nil {
			return err
		}

		fmt.Printf("💾 Wrote effective configuration of %s to %s\n", path, configOut)

		return nil
	},
}
