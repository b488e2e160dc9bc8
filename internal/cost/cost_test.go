package cost

import (
	"math"
	"testing"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

var testRates = []Rate{
	{Provider: "anthropic", Match: "claude-3-7-sonnet", Input: 0.000012, Output: 0.00006},
	{Provider: "openai", Match: "gpt-4o", Input: 0.0000025, Output: 0.00001},
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestTrackerTotalEqualsSumOfCalls(t *testing.T) {
	tracker := NewTracker(testRates)

	calls := []Usage{
		{InputTokens: 1200, OutputTokens: 85},
		{InputTokens: 900, OutputTokens: 140},
		{InputTokens: 15, OutputTokens: 0},
		{InputTokens: 0, OutputTokens: 600},
	}

	var expected float64
	for _, u := range calls {
		tracker.Add(models.StepQuestion, "anthropic", "claude-3-7-sonnet-20250219", u)
		expected += float64(u.InputTokens)*0.000012 + float64(u.OutputTokens)*0.00006
	}

	if got := tracker.Total(); !almostEqual(got, expected) {
		t.Errorf("Expected total %f, got %f", expected, got)
	}
	if n := len(tracker.Records()); n != len(calls) {
		t.Errorf("Expected %d records, got %d", len(calls), n)
	}
}

func TestLookup(t *testing.T) {
	tracker := NewTracker(testRates)

	tests := []struct {
		model    string
		wantOK   bool
		wantRate float64
	}{
		{"claude-3-7-sonnet-20250219", true, 0.000012},
		{"us.anthropic.claude-3-7-sonnet-20250219-v1:0", true, 0.000012},
		{"gpt-4o-mini", true, 0.0000025},
		{"GPT-4o", true, 0.0000025},
		{"mistral-small3.2:24b", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			rate, ok := tracker.Lookup(tt.model)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if rate.Input != tt.wantRate {
				t.Errorf("Expected input rate %f, got %f", tt.wantRate, rate.Input)
			}
		})
	}
}

func TestUnknownModelIsFree(t *testing.T) {
	tracker := NewTracker(testRates)
	rec := tracker.Add(models.StepEvaluation, "ollama", "llava", Usage{InputTokens: 5000, OutputTokens: 500})
	if rec.USD != 0 {
		t.Errorf("Expected zero cost for unknown model, got %f", rec.USD)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"ascii uses len/3 floor", "abcdefghijkl", 4},
		{"cjk counts one each", "圖片問題", 4},
		{"mixed", "圖片 is a picture", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestAddEstimated(t *testing.T) {
	tracker := NewTracker(testRates)
	rec := tracker.AddEstimated(models.StepRAG, "rag", "gpt-4o", "abcdefghijkl", "abcdef")
	if !rec.Estimated {
		t.Error("Expected record to be marked estimated")
	}
	if rec.InputTokens != 4 || rec.OutputTokens != 2 {
		t.Errorf("Expected 4/2 tokens, got %d/%d", rec.InputTokens, rec.OutputTokens)
	}
}

func TestBreakdown(t *testing.T) {
	records := []models.CostRecord{
		{Step: models.StepQuestion, Provider: "anthropic", Model: "m", InputTokens: 10, USD: 0.1},
		{Step: models.StepEvaluation, Provider: "anthropic", Model: "m", InputTokens: 20, USD: 0.2},
		{Step: models.StepQuestion, Provider: "anthropic", Model: "m", InputTokens: 30, USD: 0.3},
	}

	lines := Breakdown(records, ByStep)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].Key != models.StepEvaluation || lines[1].Key != models.StepQuestion {
		t.Errorf("Expected sorted keys, got %s, %s", lines[0].Key, lines[1].Key)
	}
	if lines[1].Calls != 2 || lines[1].InputTokens != 40 || !almostEqual(lines[1].USD, 0.4) {
		t.Errorf("Unexpected question line: %+v", lines[1])
	}

	byModel := Breakdown(records, ByModel)
	if len(byModel) != 1 || byModel[0].Key != "anthropic/m" {
		t.Errorf("Expected single anthropic/m line, got %+v", byModel)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(0.0123456789); got != "$0.012346" {
		t.Errorf("Expected $0.012346, got %s", got)
	}
}
