package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/quickeda-cli/internal/eda"
	"github.com/KaramelBytes/quickeda-cli/internal/loader"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/report"
)

// runFlags are the analysis flags shared by analyze and analyze-batch.
// Each one overrides the config value only when it was set explicitly.
type runFlags struct {
	target        string
	problemType   string
	seed          int64
	splitRatio    float64
	topFeatures   int
	ignore        []string
	roles         map[string]string
	outlierMethod string
	outlierMult   float64
	imbalance     float64
	maxOneHot     int

	format     string
	noTrain    bool
	bins       int
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
	units      bool
	workers    int
}

func (rf *runFlags) register(fs *pflag.FlagSet) {
	d := eda.DefaultConfig()
	fs.StringVarP(&rf.target, "target", "t", "", "target column for supervised baselines")
	fs.StringVar(&rf.problemType, "problem-type", "", "force problem type: classification|regression")
	fs.Int64Var(&rf.seed, "seed", d.RandomSeed, "random seed for the split and models")
	fs.Float64Var(&rf.splitRatio, "split-ratio", d.TrainTestSplitRatio, "share of rows used for training, in (0,1)")
	fs.IntVar(&rf.topFeatures, "top-features", d.NumTopFeatures, "number of top features to report per model")
	fs.StringSliceVar(&rf.ignore, "ignore", nil, "comma-separated columns to exclude (repeatable)")
	fs.StringToStringVar(&rf.roles, "role", nil, "force column roles, e.g. --role zip=categorical (repeatable)")
	fs.StringVar(&rf.outlierMethod, "outlier-method", d.OutlierMethod, "outlier detection: iqr|zscore")
	fs.Float64Var(&rf.outlierMult, "outlier-multiplier", d.OutlierMultiplier, "fence multiplier k for outlier detection")
	fs.Float64Var(&rf.imbalance, "imbalance-ratio", d.ImbalanceRatio, "minority class share below which balanced accuracy is used")
	fs.IntVar(&rf.maxOneHot, "max-one-hot", d.MaxOneHot, "largest level count one-hot encoded; above it ordinal encoding is used")

	fs.StringVarP(&rf.format, "format", "f", "", "report format: markdown|json|yaml (default from config)")
	fs.BoolVar(&rf.noTrain, "no-train", false, "profile only; skip baseline models")
	fs.IntVar(&rf.bins, "bins", 20, "histogram bins in figure data")
	fs.StringVar(&rf.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (sniffed if omitted)")
	fs.StringVar(&rf.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	fs.StringVar(&rf.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	fs.IntVar(&rf.maxRows, "max-rows", 0, "maximum rows to process (0 = unlimited)")
	fs.StringVar(&rf.sheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	fs.IntVar(&rf.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	fs.BoolVar(&rf.units, "normalize-units", false, "convert unit-annotated columns (g/L, ug/L to mg/L; °F to °C)")
	fs.IntVar(&rf.workers, "workers", 0, "parallel workers (0 = all CPUs)")
}

// edaConfig layers explicitly set flags over the configured defaults.
func (rf *runFlags) edaConfig(cmd *cobra.Command) (eda.Config, error) {
	c := eda.DefaultConfig()
	if cfg != nil {
		c = cfg.Analysis
	}
	f := cmd.Flags()
	if f.Changed("target") {
		c.Target = rf.target
	}
	if f.Changed("problem-type") {
		c.ProblemType = rf.problemType
	}
	if f.Changed("seed") {
		c.RandomSeed = rf.seed
	}
	if f.Changed("split-ratio") {
		c.TrainTestSplitRatio = rf.splitRatio
	}
	if f.Changed("top-features") {
		c.NumTopFeatures = rf.topFeatures
	}
	if f.Changed("ignore") {
		c.IgnoreColumns = append([]string(nil), rf.ignore...)
	}
	if f.Changed("role") {
		roles := make(map[string]string, len(c.ColumnRoles)+len(rf.roles))
		for k, v := range c.ColumnRoles {
			roles[k] = v
		}
		for k, v := range rf.roles {
			roles[k] = strings.ToLower(strings.TrimSpace(v))
		}
		c.ColumnRoles = roles
	}
	if f.Changed("outlier-method") {
		c.OutlierMethod = strings.ToLower(rf.outlierMethod)
	}
	if f.Changed("outlier-multiplier") {
		c.OutlierMultiplier = rf.outlierMult
	}
	if f.Changed("imbalance-ratio") {
		c.ImbalanceRatio = rf.imbalance
	}
	if f.Changed("max-one-hot") {
		c.MaxOneHot = rf.maxOneHot
	}
	return c, c.Validate()
}

func (rf *runFlags) loaderOptions(cmd *cobra.Command) (loader.Options, error) {
	opt := loader.DefaultOptions()
	opt.Logger = logger
	if cfg != nil {
		opt.MaxRows = cfg.MaxRows
		opt.UnitNormalize = cfg.UnitNormalize
	}
	f := cmd.Flags()
	if f.Changed("max-rows") {
		opt.MaxRows = rf.maxRows
	}
	if f.Changed("normalize-units") {
		opt.UnitNormalize = rf.units
	}
	if rf.delimiter != "" {
		switch rf.delimiter {
		case ",":
			opt.Delimiter = ','
		case "\t", "tab":
			opt.Delimiter = '\t'
		case ";":
			opt.Delimiter = ';'
		case "|":
			opt.Delimiter = '|'
		default:
			return opt, fmt.Errorf("unsupported --delimiter: %s", rf.delimiter)
		}
	}
	switch strings.ToLower(strings.TrimSpace(rf.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", rf.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(rf.thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", rf.thousands)
	}
	opt.Sheet = rf.sheetName
	opt.SheetIndex = rf.sheetIndex
	return opt, nil
}

func (rf *runFlags) reportFormat(cmd *cobra.Command) (report.Format, error) {
	if cmd.Flags().Changed("format") || cfg == nil {
		return report.ParseFormat(rf.format)
	}
	return report.ParseFormat(cfg.Format)
}

// analyzeFile loads one file and runs the full pipeline on it.
func (rf *runFlags) analyzeFile(cmd *cobra.Command, path string) (*report.Report, error) {
	ecfg, err := rf.edaConfig(cmd)
	if err != nil {
		return nil, err
	}
	lopt, err := rf.loaderOptions(cmd)
	if err != nil {
		return nil, err
	}
	ds, meta, err := loader.Load(path, lopt)
	if err != nil {
		return nil, err
	}
	log := logging.OrDiscard(logger).With("file", meta.Source)
	for _, w := range meta.Warnings {
		log.Warn(w)
	}
	workers := rf.workers
	if !cmd.Flags().Changed("workers") && cfg != nil {
		workers = cfg.Workers
	}
	eng, err := eda.New(ds, ecfg, eda.Options{Logger: log, Workers: workers})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Source, err)
	}
	a, err := eng.Analyze()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Source, err)
	}
	var tr *eda.Training
	if !rf.noTrain {
		tr, err = eng.Train(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", meta.Source, err)
		}
	}
	return report.New(ds, meta, ecfg, a, tr, report.Options{Bins: rf.bins}), nil
}
