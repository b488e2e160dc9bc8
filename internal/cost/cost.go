// Package cost tracks token usage and USD spend across a test run.
package cost

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

// Rate is the USD price per token for models whose ID contains Match.
type Rate struct {
	Provider string
	Match    string
	Input    float64
	Output   float64
}

// Usage is the token count reported (or estimated) for one call
type Usage struct {
	InputTokens  int
	OutputTokens int
	Estimated    bool
}

// Tracker accumulates CostRecords for a session.
type Tracker struct {
	rates   []Rate
	mu      sync.Mutex
	records []models.CostRecord
}

// NewTracker creates a tracker priced with the given rate table
func NewTracker(rates []Rate) *Tracker {
	return &Tracker{rates: rates}
}

// Lookup returns the first rate whose Match is a substring of model.
// Unknown models are free; ollama and other local runners land here.
func (t *Tracker) Lookup(model string) (Rate, bool) {
	m := strings.ToLower(model)
	for _, r := range t.rates {
		if r.Match != "" && strings.Contains(m, strings.ToLower(r.Match)) {
			return r, true
		}
	}
	return Rate{}, false
}

// Price converts a usage into a record without adding it to the session
func (t *Tracker) Price(step, provider, model string, u Usage) models.CostRecord {
	rate, ok := t.Lookup(model)
	if !ok {
		slog.Debug("No cost rate for model, recording zero cost", "model", model, "provider", provider)
	}
	return models.CostRecord{
		Step:         step,
		Provider:     provider,
		Model:        model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		USD:          float64(u.InputTokens)*rate.Input + float64(u.OutputTokens)*rate.Output,
		Estimated:    u.Estimated,
	}
}

// Add prices the usage, appends it to the session and returns the record.
func (t *Tracker) Add(step, provider, model string, u Usage) models.CostRecord {
	rec := t.Price(step, provider, model, u)
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()
	return rec
}

// AddEstimated records a call whose provider returned no usage, estimating
// tokens from the request and response text.
func (t *Tracker) AddEstimated(step, provider, model, input, output string) models.CostRecord {
	return t.Add(step, provider, model, Usage{
		InputTokens:  EstimateTokens(input),
		OutputTokens: EstimateTokens(output),
		Estimated:    true,
	})
}

// Records returns a copy of every record added so far
func (t *Tracker) Records() []models.CostRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.CostRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Total is the sum of all recorded costs
func (t *Tracker) Total() float64 {
	return Sum(t.Records())
}

// Sum adds up the USD cost of the records
func Sum(records []models.CostRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.USD
	}
	return total
}

// Line is one row of a cost breakdown
type Line struct {
	Key          string
	Calls        int
	InputTokens  int
	OutputTokens int
	USD          float64
}

// Breakdown groups records by the key function, sorted by key
func Breakdown(records []models.CostRecord, key func(models.CostRecord) string) []Line {
	idx := make(map[string]*Line)
	for _, r := range records {
		k := key(r)
		l, ok := idx[k]
		if !ok {
			l = &Line{Key: k}
			idx[k] = l
		}
		l.Calls++
		l.InputTokens += r.InputTokens
		l.OutputTokens += r.OutputTokens
		l.USD += r.USD
	}

	lines := make([]Line, 0, len(idx))
	for _, l := range idx {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Key < lines[j].Key })
	return lines
}

// ByStep keys records by pipeline step
func ByStep(r models.CostRecord) string { return r.Step }

// ByModel keys records by provider and model
func ByModel(r models.CostRecord) string { return r.Provider + "/" + r.Model }

// Format renders a USD amount with fixed six-decimal precision
func Format(usd float64) string {
	return fmt.Sprintf("$%.6f", usd)
}

// EstimateTokens approximates a token count: CJK ideographs count one token
// each, other characters four per token, with a floor of len/3.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var cjk, other int
	for _, r := range text {
		if r >= '\u4e00' && r <= '\u9fff' {
			cjk++
		} else {
			other++
		}
	}

	estimated := cjk + other/4
	if floor := (cjk + other) / 3; floor > estimated {
		return floor
	}
	return estimated
}
