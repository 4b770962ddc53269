// Package report assembles analysis and training results into a document
// and renders it as Markdown, JSON or YAML.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/eda"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/loader"
	"github.com/KaramelBytes/quickeda-cli/internal/utils"
)

// Format is an output encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts "markdown", "md", "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", errs.Config("format", s, "must be markdown, json or yaml")
}

// Ext returns the conventional file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	}
	return ".md"
}

// Report is the assembled output of one run.
type Report struct {
	ID          uuid.UUID     `json:"id" yaml:"id"`
	GeneratedAt time.Time     `json:"generated_at" yaml:"generated_at"`
	Source      loader.Meta   `json:"source" yaml:"source"`
	Config      eda.Config    `json:"config" yaml:"config"`
	Analysis    *eda.Analysis `json:"analysis" yaml:"analysis"`
	Training    *eda.Training `json:"training,omitempty" yaml:"training,omitempty"`
	Figures     Figures       `json:"figures" yaml:"figures"`
}

// Options tunes figure generation.
type Options struct {
	// Bins is the histogram bucket count; 0 means 20.
	Bins int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// New assembles a report. tr may be nil when no model was trained.
func New(ds *dataset.Dataset, meta loader.Meta, cfg eda.Config, a *eda.Analysis, tr *eda.Training, opt Options) *Report {
	if opt.Bins <= 0 {
		opt.Bins = 20
	}
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	return &Report{
		ID:          uuid.New(),
		GeneratedAt: now().UTC(),
		Source:      meta,
		Config:      cfg,
		Analysis:    a,
		Training:    tr,
		Figures:     buildFigures(ds, a, tr, cfg.NumTopFeatures, opt.Bins),
	}
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return utils.PrettyJSON(r)
}

// YAML renders the report as YAML.
func (r *Report) YAML() ([]byte, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return b, nil
}

// Render encodes the report in the given format.
func (r *Report) Render(f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return r.JSON()
	case FormatYAML:
		return r.YAML()
	case FormatMarkdown, "":
		return []byte(r.Markdown()), nil
	}
	return nil, errs.Config("format", string(f), "must be markdown, json or yaml")
}

// Write renders the report and atomically writes it to path.
func (r *Report) Write(path string, f Format) error {
	b, err := r.Render(f)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, b)
}
