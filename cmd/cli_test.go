package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/quickeda-cli/internal/errs"
)

// resetFlags clears values and Changed state that persist across Execute
// calls on the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else if f.Value.Type() != "stringToString" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	anaFlags.roles = map[string]string{}
	abFlags.roles = map[string]string{}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeChurnCSV(t *testing.T, path string, rows int) {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	var b strings.Builder
	b.WriteString("customer_id,tenure,spend,plan,churn\n")
	plans := []string{"basic", "plus", "pro"}
	for i := 0; i < rows; i++ {
		tenure := rng.Float64() * 48
		spend := 20 + rng.NormFloat64()*5
		churn := 0
		if tenure < 12 {
			churn = 1
		}
		fmt.Fprintf(&b, "C%04d,%.2f,%.2f,%s,%d\n", i, tenure, spend, plans[i%3], churn)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
}

func TestAnalyzeMarkdownToStdout(t *testing.T) {
	home := isolateHome(t)
	data := filepath.Join(home, "churn.csv")
	writeChurnCSV(t, data, 150)

	out := runCmd(t, "analyze", data, "--target", "churn", "--seed", "7")
	for _, want := range []string{"[SCHEMA]", "- customer_id: identifier", "Target: churn", "[LEADERBOARD]", "random_forest"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeJSONToFile(t *testing.T) {
	home := isolateHome(t)
	data := filepath.Join(home, "churn.csv")
	writeChurnCSV(t, data, 120)
	outPath := filepath.Join(home, "out", "report.json")

	msg := runCmd(t, "analyze", data, "-t", "churn", "-f", "json", "-o", outPath, "--seed", "11", "--ignore", "spend", "--no-train")
	if !strings.Contains(msg, "✓ Wrote json report") {
		t.Fatalf("unexpected message: %q", msg)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var doc struct {
		Config struct {
			Target        string   `json:"target"`
			RandomSeed    int64    `json:"random_seed"`
			IgnoreColumns []string `json:"ignore_columns"`
		} `json:"config"`
		Training any `json:"training"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.Config.Target != "churn" || doc.Config.RandomSeed != 11 || len(doc.Config.IgnoreColumns) != 1 {
		t.Fatalf("flags not applied: %+v", doc.Config)
	}
	if doc.Training != nil {
		t.Fatalf("--no-train still produced training output")
	}
}

func TestAnalyzeRejectsBadConfig(t *testing.T) {
	home := isolateHome(t)
	data := filepath.Join(home, "churn.csv")
	writeChurnCSV(t, data, 50)

	_, err := execute(t, "analyze", data, "--split-ratio", "1.5")
	if !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	_, err = execute(t, "analyze", data, "--target", "nope")
	if !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError for unknown target, got %v", err)
	}
	if _, err := execute(t, "analyze", data, "--format", "pdf"); !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError for format, got %v", err)
	}
}

func TestAnalyzeUsesConfigFile(t *testing.T) {
	home := isolateHome(t)
	data := filepath.Join(home, "churn.csv")
	writeChurnCSV(t, data, 80)
	cfgPath := filepath.Join(home, "quickeda.yaml")
	body := "format: yaml\nanalysis:\n  target: churn\n  random_seed: 5\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out := runCmd(t, "--config", cfgPath, "analyze", data, "--no-train")
	if !strings.Contains(out, "target: churn") || !strings.Contains(out, "random_seed: 5") {
		t.Fatalf("config defaults not applied:\n%s", out)
	}
}

func TestAnalyzeBatchWritesUniqueReports(t *testing.T) {
	home := isolateHome(t)
	writeChurnCSV(t, filepath.Join(home, "d1", "metrics.csv"), 60)
	writeChurnCSV(t, filepath.Join(home, "d2", "metrics.csv"), 60)
	outDir := filepath.Join(home, "reports")

	out := runCmd(t, "analyze-batch", filepath.Join(home, "d*", "metrics.csv"), "-o", outDir, "-t", "churn")
	if !strings.Contains(out, "[2/2] Processing metrics.csv") {
		t.Fatalf("missing progress output:\n%s", out)
	}
	for _, name := range []string{"metrics.report.md", "metrics__2.report.md"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestAnalyzeBatchKeepGoing(t *testing.T) {
	home := isolateHome(t)
	good := filepath.Join(home, "good.csv")
	writeChurnCSV(t, good, 40)
	bad := filepath.Join(home, "empty.csv")
	if err := os.WriteFile(bad, []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	outDir := filepath.Join(home, "reports")

	_, err := execute(t, "analyze-batch", good, bad, "-o", outDir, "--keep-going", "--quiet", "-f", "json")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("expected aggregated failure, got %v", err)
	}
	if !errs.IsData(err) {
		t.Fatalf("expected DataError in chain, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "good.report.json")); err != nil {
		t.Fatalf("good file not written: %v", err)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	home := isolateHome(t)
	runCmd(t, "config", "set", "analysis.random_seed", "9")
	if _, err := os.Stat(filepath.Join(home, ".quickeda", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "random_seed: 9") {
		t.Fatalf("show missing value:\n%s", out)
	}
	if _, err := execute(t, "config", "set", "api_key", "x"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
