package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"njvaxbot/internal/validator"
)

var verifyRows int

func init() {
	verifyCmd.Flags().IntVar(&verifyRows, "rows", 0, "Expected number of table rows (0 skips the check).")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify <report.md>...",
	Short: "Checks the table and the signature of exported markdown reports.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := validator.NewReportValidator(verifyRows)
		failed := 0

		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("error reading file: %w", err)
			}

			result, err := v.Validate(string(content))
			fmt.Printf("📂 %s: %s\n", path, result)
			result.PrintErrors()
			result.PrintWarnings()

			if err != nil {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("%w: %d of %d reports failed", validator.ErrInvalidReport, failed, len(args))
		}

		return nil
	},
}
