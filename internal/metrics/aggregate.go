package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// Summary represents aggregated metrics for a run
type Summary struct {
	TotalCases       int `json:"total_cases" yaml:"total_cases"`
	Passed           int `json:"passed" yaml:"passed"`
	BelowThreshold   int `json:"below_threshold" yaml:"below_threshold"`
	QueryFailed      int `json:"query_failed" yaml:"query_failed"`
	EvaluationFailed int `json:"evaluation_failed" yaml:"evaluation_failed"`
	IOFailed         int `json:"io_failed" yaml:"io_failed"`
	FailureCount     int `json:"failures" yaml:"failures"`

	// SuccessRate is the share of cases that produced a score; PassRate the
	// share that met the threshold. Both are percentages.
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
	PassRate    float64 `json:"pass_rate" yaml:"pass_rate"`

	Accuracy       FieldStats `json:"accuracy" yaml:"accuracy"`
	Completeness   FieldStats `json:"completeness" yaml:"completeness"`
	Clarity        FieldStats `json:"clarity" yaml:"clarity"`
	ImageReference FieldStats `json:"image_reference" yaml:"image_reference"`
	Overall        FieldStats `json:"overall" yaml:"overall"`

	ImageReferenceRate float64 `json:"image_reference_rate" yaml:"image_reference_rate"`

	AverageResponseTime time.Duration `json:"average_response_time" yaml:"average_response_time"`
	TotalResponseTime   time.Duration `json:"total_response_time" yaml:"total_response_time"`

	TotalCost   float64 `json:"total_cost" yaml:"total_cost"`
	CostPerCase float64 `json:"cost_per_case" yaml:"cost_per_case"`

	Categories []CategoryStats `json:"categories" yaml:"categories"`
}

// FieldStats contains statistics for one rubric dimension
type FieldStats struct {
	Average float64   `json:"average" yaml:"average"`
	Median  float64   `json:"median" yaml:"median"`
	Min     float64   `json:"min" yaml:"min"`
	Max     float64   `json:"max" yaml:"max"`
	Scores  []float64 `json:"-" yaml:"-"`
}

// CategoryStats summarizes the cases of one category
type CategoryStats struct {
	Name         string  `json:"name" yaml:"name"`
	Total        int     `json:"total" yaml:"total"`
	Passed       int     `json:"passed" yaml:"passed"`
	Failed       int     `json:"failed" yaml:"failed"`
	AverageScore float64 `json:"average_score" yaml:"average_score"`
	Cost         float64 `json:"cost" yaml:"cost"`
}

// Aggregate computes run-level and per-category statistics. Categories keep
// the order in which they first appear in the run.
func Aggregate(run *models.Run) *Summary {
	s := &Summary{TotalCases: len(run.Cases)}

	var answered int
	var withImageRef int
	byName := make(map[string]*CategoryStats)
	var order []string
	catScores := make(map[string][]float64)

	for _, tc := range run.Cases {
		cat, ok := byName[tc.Category]
		if !ok {
			cat = &CategoryStats{Name: tc.Category}
			byName[tc.Category] = cat
			order = append(order, tc.Category)
		}
		cat.Total++
		cat.Cost += tc.Cost()

		switch tc.Status {
		case models.StatusPassed:
			s.Passed++
			cat.Passed++
		case models.StatusBelowThreshold:
			s.BelowThreshold++
		case models.StatusQueryFailed:
			s.QueryFailed++
		case models.StatusEvaluationFailed:
			s.EvaluationFailed++
		case models.StatusIOFailed:
			s.IOFailed++
		}
		if tc.Failed() {
			s.FailureCount++
			cat.Failed++
		}

		if tc.Answer != "" || tc.Status == models.StatusEvaluationFailed {
			answered++
			s.TotalResponseTime += tc.ResponseTime
			if tc.HasImageReference {
				withImageRef++
			}
		}

		if tc.Evaluation != nil {
			s.Accuracy.Scores = append(s.Accuracy.Scores, tc.Evaluation.Accuracy)
			s.Completeness.Scores = append(s.Completeness.Scores, tc.Evaluation.Completeness)
			s.Clarity.Scores = append(s.Clarity.Scores, tc.Evaluation.Clarity)
			s.ImageReference.Scores = append(s.ImageReference.Scores, tc.Evaluation.ImageReference)
			s.Overall.Scores = append(s.Overall.Scores, tc.Evaluation.WeightedTotal)
			catScores[tc.Category] = append(catScores[tc.Category], tc.Evaluation.WeightedTotal)
		}
	}

	for _, f := range []*FieldStats{&s.Accuracy, &s.Completeness, &s.Clarity, &s.ImageReference, &s.Overall} {
		f.calculate()
	}

	if s.TotalCases > 0 {
		s.SuccessRate = float64(s.TotalCases-s.FailureCount) / float64(s.TotalCases) * 100
		s.PassRate = float64(s.Passed) / float64(s.TotalCases) * 100
	}
	if answered > 0 {
		s.AverageResponseTime = s.TotalResponseTime / time.Duration(answered)
		s.ImageReferenceRate = float64(withImageRef) / float64(answered) * 100
	}

	s.TotalCost = run.TotalCost()
	if s.TotalCases > 0 {
		s.CostPerCase = s.TotalCost / float64(s.TotalCases)
	}

	for _, name := range order {
		cat := byName[name]
		cat.AverageScore = calculateAverage(catScores[name])
		s.Categories = append(s.Categories, *cat)
	}

	return s
}

func (f *FieldStats) calculate() {
	if len(f.Scores) == 0 {
		return
	}
	f.Average = calculateAverage(f.Scores)

	sorted := append([]float64(nil), f.Scores...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		f.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		f.Median = sorted[mid]
	}
	f.Min = sorted[0]
	f.Max = sorted[len(sorted)-1]
}

// calculateAverage calculates the average of a slice of scores
func calculateAverage(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, score := range scores {
		sum += score
	}

	return sum / float64(len(scores))
}

// PrintSummary writes a human-readable summary of the run
func (s *Summary) PrintSummary(w io.Writer, run *models.Run) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, "RAG TEST SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Run ID:   %s\n", run.ID)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Mode:     %s (%s)\n", run.Mode, run.Source)
	fmt.Fprintf(w, "Provider: %s\n", run.Provider)
	fmt.Fprintf(w, "Model:    %s\n", run.Model)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROCESSING STATISTICS")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Total Cases:        %d\n", s.TotalCases)
	fmt.Fprintf(w, "Passed:             %d (%.1f%%)\n", s.Passed, s.PassRate)
	fmt.Fprintf(w, "Below Threshold:    %d\n", s.BelowThreshold)
	fmt.Fprintf(w, "Failed:             %d (query %d, evaluation %d, io %d)\n", s.FailureCount, s.QueryFailed, s.EvaluationFailed, s.IOFailed)
	fmt.Fprintf(w, "Success Rate:       %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(w, "Avg Response Time:  %s\n", s.AverageResponseTime.Round(time.Millisecond))
	fmt.Fprintf(w, "Image References:   %.1f%%\n", s.ImageReferenceRate)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SCORES (0-100)")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	printFieldStats(w, "Technical Accuracy", s.Accuracy)
	printFieldStats(w, "Completeness", s.Completeness)
	printFieldStats(w, "Clarity", s.Clarity)
	printFieldStats(w, "Image Reference", s.ImageReference)
	printFieldStats(w, "Weighted Total", s.Overall)
	fmt.Fprintln(w)

	if len(s.Categories) > 0 {
		fmt.Fprintln(w, "CATEGORIES")
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, c := range s.Categories {
			fmt.Fprintf(w, "  %-30s %2d cases  %2d passed  avg %5.1f  %s\n", c.Name, c.Total, c.Passed, c.AverageScore, cost.Format(c.Cost))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "COST")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, line := range cost.Breakdown(run.Costs, cost.ByStep) {
		fmt.Fprintf(w, "  %-30s %3d calls  %s\n", line.Key, line.Calls, cost.Format(line.USD))
	}
	fmt.Fprintf(w, "Total Cost:         %s\n", cost.Format(s.TotalCost))
	fmt.Fprintf(w, "Cost Per Case:      %s\n", cost.Format(s.CostPerCase))
	fmt.Fprintln(w, strings.Repeat("=", 70))
}

// printFieldStats prints statistics for a single rubric dimension
func printFieldStats(w io.Writer, name string, stats FieldStats) {
	fmt.Fprintf(w, "  %-20s avg %6.2f  median %6.2f  min %6.2f  max %6.2f\n", name, stats.Average, stats.Median, stats.Min, stats.Max)
}

// SaveToJSON writes the summary alone as indented JSON
func (s *Summary) SaveToJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return &models.IOError{Path: path, Op: "write summary", Err: err}
	}
	return nil
}
