package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

func score(a, c, cl, ir float64) *models.EvaluationScore {
	return &models.EvaluationScore{
		Accuracy:       a,
		Completeness:   c,
		Clarity:        cl,
		ImageReference: ir,
		WeightedTotal:  a*0.4 + c*0.3 + cl*0.2 + ir*0.1,
	}
}

func sampleRun() *models.Run {
	costs := []models.CostRecord{
		{Step: models.StepQuestion, Provider: "anthropic", Model: "claude", USD: 0.01},
		{Step: models.StepEvaluation, Provider: "anthropic", Model: "claude", USD: 0.02},
		{Step: models.StepQuestion, Provider: "anthropic", Model: "claude", USD: 0.01},
		{Step: models.StepEvaluation, Provider: "anthropic", Model: "claude", USD: 0.02},
		{Step: models.StepQuestion, Provider: "anthropic", Model: "claude", USD: 0.01},
	}
	return &models.Run{
		ID:        "run-1",
		Mode:      models.ModeFolder,
		Source:    "images",
		Provider:  "anthropic",
		Model:     "claude",
		StartedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Threshold: 70,
		Cases: []models.TestCase{
			{
				Category:          "connectors",
				Answer:            "see diagram.png",
				Evaluation:        score(90, 80, 70, 100),
				Status:            models.StatusPassed,
				ResponseTime:      2 * time.Second,
				HasImageReference: true,
				Costs:             costs[0:2],
			},
			{
				Category:     "connectors",
				Answer:       "no idea",
				Evaluation:   score(40, 50, 60, 0),
				Status:       models.StatusBelowThreshold,
				ResponseTime: 4 * time.Second,
				Costs:        costs[2:4],
			},
			{
				Category: "wiring",
				Status:   models.StatusQueryFailed,
				Error:    "rag query failed after 3 attempts",
				Costs:    costs[4:5],
			},
		},
		Costs: costs,
	}
}

func TestAggregate(t *testing.T) {
	s := Aggregate(sampleRun())

	if s.TotalCases != 3 {
		t.Errorf("Expected TotalCases=3, got %d", s.TotalCases)
	}
	if s.Passed != 1 || s.BelowThreshold != 1 || s.QueryFailed != 1 {
		t.Errorf("Unexpected status counts %+v", s)
	}
	if s.FailureCount != 1 {
		t.Errorf("Expected FailureCount=1, got %d", s.FailureCount)
	}

	if math.Abs(s.SuccessRate-200.0/3) > 1e-9 {
		t.Errorf("Expected success rate 66.67, got %f", s.SuccessRate)
	}
	if math.Abs(s.PassRate-100.0/3) > 1e-9 {
		t.Errorf("Expected pass rate 33.33, got %f", s.PassRate)
	}

	if s.Accuracy.Average != 65 || s.Accuracy.Min != 40 || s.Accuracy.Max != 90 {
		t.Errorf("Unexpected accuracy stats %+v", s.Accuracy)
	}
	if s.Accuracy.Median != 65 {
		t.Errorf("Expected median of two scores to be their mean, got %f", s.Accuracy.Median)
	}

	if s.AverageResponseTime != 3*time.Second {
		t.Errorf("Expected average response time 3s, got %s", s.AverageResponseTime)
	}
	if s.ImageReferenceRate != 50 {
		t.Errorf("Expected image reference rate 50, got %f", s.ImageReferenceRate)
	}

	if math.Abs(s.TotalCost-0.07) > 1e-9 {
		t.Errorf("Expected total cost 0.07, got %f", s.TotalCost)
	}

	if len(s.Categories) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(s.Categories))
	}
	conn := s.Categories[0]
	if conn.Name != "connectors" || conn.Total != 2 || conn.Passed != 1 || conn.Failed != 0 {
		t.Errorf("Unexpected connectors stats %+v", conn)
	}
	if math.Abs(conn.Cost-0.06) > 1e-9 {
		t.Errorf("Expected connectors cost 0.06, got %f", conn.Cost)
	}
	wiring := s.Categories[1]
	if wiring.Failed != 1 || wiring.AverageScore != 0 {
		t.Errorf("Unexpected wiring stats %+v", wiring)
	}
}

func TestAggregateEmptyRun(t *testing.T) {
	s := Aggregate(&models.Run{})
	if s.TotalCases != 0 || s.SuccessRate != 0 || s.CostPerCase != 0 {
		t.Errorf("Expected zero summary, got %+v", s)
	}
	if len(s.Categories) != 0 {
		t.Errorf("Expected no categories, got %d", len(s.Categories))
	}
}

func TestFieldStatsOddMedian(t *testing.T) {
	f := FieldStats{Scores: []float64{80, 10, 50}}
	f.calculate()
	if f.Median != 50 {
		t.Errorf("Expected median 50, got %f", f.Median)
	}
}

func TestPrintSummary(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer
	Aggregate(run).PrintSummary(&buf, run)

	out := buf.String()
	for _, want := range []string{"RAG TEST SUMMARY", "run-1", "connectors", "Total Cost:         $0.070000", "evaluation"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q\n%s", want, out)
		}
	}
}

func TestSaveToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := Aggregate(sampleRun()).SaveToJSON(path); err != nil {
		t.Fatalf("SaveToJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if decoded["total_cases"] != float64(3) {
		t.Errorf("Expected total_cases=3, got %v", decoded["total_cases"])
	}

	var ioErr *models.IOError
	if err := Aggregate(sampleRun()).SaveToJSON(filepath.Join(t.TempDir(), "missing", "summary.json")); !errors.As(err, &ioErr) {
		t.Errorf("Expected IOError for missing directory, got %v", err)
	}
}
