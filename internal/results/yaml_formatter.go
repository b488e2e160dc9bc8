// Package results persists test runs so reports can be regenerated and
// browsed after the harness exits.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// TimestampFormat names result and report files
const TimestampFormat = "20060102_150405"

const (
	resultsPrefix = "rag_test_results_"
	reportPrefix  = "rag_test_report_"
	summaryPrefix = "rag_test_summary_"

	idLength = 8
)

// RunConfig represents the configuration section of the results YAML
type RunConfig struct {
	RunID         string    `yaml:"run_id"`
	Mode          string    `yaml:"mode"`
	Source        string    `yaml:"source"`
	Provider      string    `yaml:"provider"`
	Model         string    `yaml:"model"`
	RAGURL        string    `yaml:"rag_url"`
	PassThreshold float64   `yaml:"pass_threshold"`
	StartedAt     time.Time `yaml:"started_at"`
	FinishedAt    time.Time `yaml:"finished_at"`
}

// RunSpec is the complete results document
type RunSpec struct {
	Config  RunConfig           `yaml:"config"`
	Summary *metrics.Summary    `yaml:"summary"`
	Cases   []models.TestCase   `yaml:"cases"`
	Costs   []models.CostRecord `yaml:"costs"`
}

// Stamp formats t for use in file names
func Stamp(t time.Time) string {
	return t.Format(TimestampFormat)
}

// Stem is the shared part of a run's file names: the start time followed by
// up to eight characters of the run ID. Runs started in the same second get
// distinct names.
func Stem(run *models.Run) string {
	id := shortID(run.ID)
	if id == "" {
		return Stamp(run.StartedAt)
	}
	return Stamp(run.StartedAt) + "_" + id
}

func shortID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if b.Len() == idLength {
			break
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResultsPath is where run is saved
func ResultsPath(dir string, run *models.Run) string {
	return filepath.Join(dir, resultsPrefix+Stem(run)+".yaml")
}

// ReportPath is where the HTML report of run is written
func ReportPath(dir string, run *models.Run) string {
	return filepath.Join(dir, reportPrefix+Stem(run)+".html")
}

// SummaryPath is where the JSON summary of run is written
func SummaryPath(dir string, run *models.Run) string {
	return filepath.Join(dir, summaryPrefix+Stem(run)+".json")
}

// IsResultsFile reports whether path is named like a SaveToYAML output
func IsResultsFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, resultsPrefix) && filepath.Ext(base) == ".yaml"
}

// ReportPathFor maps a results file to its sibling report file
func ReportPathFor(resultsPath string) string {
	dir, base := filepath.Split(resultsPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Replace(base, resultsPrefix, reportPrefix, 1)
	return filepath.Join(dir, base+".html")
}

func newSpec(run *models.Run) RunSpec {
	return RunSpec{
		Config: RunConfig{
			RunID:         run.ID,
			Mode:          run.Mode,
			Source:        run.Source,
			Provider:      run.Provider,
			Model:         run.Model,
			RAGURL:        run.RAGURL,
			PassThreshold: run.Threshold,
			StartedAt:     run.StartedAt,
			FinishedAt:    run.FinishedAt,
		},
		Summary: metrics.Aggregate(run),
		Cases:   run.Cases,
		Costs:   run.Costs,
	}
}

// Run rebuilds the run described by the document
func (s RunSpec) Run() *models.Run {
	return &models.Run{
		ID:         s.Config.RunID,
		Mode:       s.Config.Mode,
		Source:     s.Config.Source,
		Provider:   s.Config.Provider,
		Model:      s.Config.Model,
		RAGURL:     s.Config.RAGURL,
		StartedAt:  s.Config.StartedAt,
		FinishedAt: s.Config.FinishedAt,
		Threshold:  s.Config.PassThreshold,
		Cases:      s.Cases,
		Costs:      s.Costs,
	}
}

// SaveToYAML writes the run to dir and returns the file path
func SaveToYAML(dir string, run *models.Run) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &models.IOError{Path: dir, Op: "create results directory", Err: err}
	}

	spec := newSpec(run)
	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	path := ResultsPath(dir, run)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", &models.IOError{Path: path, Op: "write", Err: err}
	}
	return path, nil
}

// SaveToJSON writes the same document as SaveToYAML in JSON, next to it
func SaveToJSON(dir string, run *models.Run) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &models.IOError{Path: dir, Op: "create results directory", Err: err}
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	path := filepath.Join(dir, resultsPrefix+Stem(run)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", &models.IOError{Path: path, Op: "write", Err: err}
	}
	return path, nil
}

// LoadYAML reads a results file written by SaveToYAML
func LoadYAML(path string) (*models.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.IOError{Path: path, Op: "read", Err: err}
	}

	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}
	if spec.Config.RunID == "" && len(spec.Cases) == 0 {
		return nil, fmt.Errorf("%s does not look like a results file", path)
	}
	return spec.Run(), nil
}

// List returns the results files in dir, newest first
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, resultsPrefix+"*.yaml"))
	if err != nil {
		return nil, err
	}
	// the timestamp leads the name so names sort by start time
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}
