package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	anaFlags      runFlags
	anaOutputPath string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Profile a CSV/TSV/XLSX file and train baseline models",
	Long: `Analyze infers a role for every column, profiles distributions, missing
values, outliers and associations, resolves the problem type for --target and
trains baseline models on a seeded split. Flags override config values.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := anaFlags.reportFormat(cmd)
		if err != nil {
			return err
		}
		rep, err := anaFlags.analyzeFile(cmd, args[0])
		if err != nil {
			return err
		}
		if anaOutputPath != "" {
			if err := rep.Write(anaOutputPath, format); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s report to %s\n", format, anaOutputPath)
			return nil
		}
		b, err := rep.Render(format)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaFlags.register(analyzeCmd.Flags())
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report (stdout if omitted)")
}
