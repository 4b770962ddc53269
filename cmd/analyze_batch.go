package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	abFlags     runFlags
	abOutputDir string
	abKeepGoing bool
	abQuiet     bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/TSV/XLSX files with progress",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		format, err := abFlags.reportFormat(cmd)
		if err != nil {
			return err
		}
		if abOutputDir != "" {
			if err := os.MkdirAll(abOutputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		var failed []error
		used := map[string]struct{}{}
		total := len(files)
		for i, path := range files {
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			rep, err := abFlags.analyzeFile(cmd, path)
			if err != nil {
				if !abKeepGoing {
					return err
				}
				fmt.Fprintf(out, "⚠ Skipped %s: %v\n", filepath.Base(path), err)
				failed = append(failed, err)
				continue
			}
			if abOutputDir == "" {
				b, err := rep.Render(format)
				if err != nil {
					return err
				}
				if !abQuiet {
					fmt.Fprintln(out, string(b))
				}
				continue
			}
			outFile := reportPath(abOutputDir, path, format.Ext(), used)
			if err := rep.Write(outFile, format); err != nil {
				return err
			}
			if !abQuiet {
				fmt.Fprintf(out, "✓ Wrote %s\n", outFile)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d files failed: %w", len(failed), total, errors.Join(failed...))
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, and returns a
// sorted, de-duplicated list.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// reportPath names the report after the input file, adding __2, __3, ...
// when two inputs share a base name or the file already exists.
func reportPath(dir, input, ext string, used map[string]struct{}) string {
	base := filepath.Base(input)
	safe := strings.TrimSuffix(base, filepath.Ext(base))
	cand := filepath.Join(dir, safe+".report"+ext)
	for idx := 2; ; idx++ {
		_, taken := used[cand]
		if _, err := os.Stat(cand); !taken && os.IsNotExist(err) {
			break
		}
		cand = filepath.Join(dir, fmt.Sprintf("%s__%d.report%s", safe, idx, ext))
	}
	used[cand] = struct{}{}
	return cand
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	abFlags.register(analyzeBatchCmd.Flags())
	analyzeBatchCmd.Flags().StringVarP(&abOutputDir, "output-dir", "o", "", "directory for one report per input (stdout if omitted)")
	analyzeBatchCmd.Flags().BoolVar(&abKeepGoing, "keep-going", false, "continue with remaining files after a failure")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}
