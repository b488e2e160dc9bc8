package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

// Rubric weights. They sum to 1 so the weighted total stays on the 0-100 scale.
const (
	WeightAccuracy       = 0.4
	WeightCompleteness   = 0.3
	WeightClarity        = 0.2
	WeightImageReference = 0.1
)

// SubScores are the four rubric dimensions; nil means the judge did not supply one
type SubScores struct {
	Accuracy       *float64
	Completeness   *float64
	Clarity        *float64
	ImageReference *float64
}

// WeightedTotal combines the sub-scores. It reports false when any is missing.
func WeightedTotal(s SubScores) (float64, bool) {
	if s.Accuracy == nil || s.Completeness == nil || s.Clarity == nil || s.ImageReference == nil {
		return 0, false
	}
	return weighted(*s.Accuracy, *s.Completeness, *s.Clarity, *s.ImageReference), true
}

// NewScore builds an EvaluationScore with its weighted total filled in
func NewScore(accuracy, completeness, clarity, imageReference float64) models.EvaluationScore {
	return models.EvaluationScore{
		Accuracy:       accuracy,
		Completeness:   completeness,
		Clarity:        clarity,
		ImageReference: imageReference,
		WeightedTotal:  weighted(accuracy, completeness, clarity, imageReference),
	}
}

func weighted(a, c, cl, ir float64) float64 {
	return WeightAccuracy*a + WeightCompleteness*c + WeightClarity*cl + WeightImageReference*ir
}

const promptTemplate = `You are grading an answer produced by a retrieval-augmented question answering system over technical documentation.

Question:
%s

Answer:
%s
%s
Score the answer on each dimension from 0 to 100:
- technical_accuracy: the answer is technically correct and consistent with the cited passages%s
- completeness: the answer covers every part of the question
- clarity: the answer is clear, well organized and easy to follow
- image_reference: the answer points the reader to the relevant figure, diagram or image where one would help

Reply with a single JSON object and nothing else, for example:
{"technical_accuracy": 85, "completeness": 70, "clarity": 90, "image_reference": 40, "rationale": "one or two sentences"}`

// Options controls the judge request
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Retry       retry.Policy
	// AttachImage sends the source image along with the rubric
	AttachImage bool
}

// Evaluator scores RAG answers with an LLM judge
type Evaluator struct {
	provider providers.Provider
	tracker  *cost.Tracker
	opts     Options
}

// Input is one answer to grade
type Input struct {
	Question string
	Answer   string
	Passages []models.Passage
	Image    *images.Image
	// Reference is an optional expected answer from a question sheet
	Reference string
}

// Result is the judge's verdict. Score is nil when the reply could not be parsed.
type Result struct {
	Score     *models.EvaluationScore
	Rationale string
	Cost      models.CostRecord
	Raw       string
}

// New creates an evaluator
func New(p providers.Provider, tracker *cost.Tracker, opts Options) *Evaluator {
	return &Evaluator{provider: p, tracker: tracker, opts: opts}
}

// Prompt renders the rubric for an input
func (e *Evaluator) Prompt(in Input) string {
	var sources strings.Builder
	if in.Reference != "" {
		fmt.Fprintf(&sources, "\nReference answer:\n%s\n", in.Reference)
	}
	if len(in.Passages) > 0 {
		sources.WriteString("\nCited passages:\n")
		for i, p := range in.Passages {
			fmt.Fprintf(&sources, "[%d]", i+1)
			if p.Source != "" {
				fmt.Fprintf(&sources, " (%s", p.Source)
				if p.Page != "" {
					fmt.Fprintf(&sources, ", page %s", p.Page)
				}
				sources.WriteString(")")
			}
			fmt.Fprintf(&sources, " %s\n", truncate(p.Content, 800))
		}
	}

	imageNote := ""
	if in.Image != nil && e.opts.AttachImage {
		imageNote = " and the attached image the question was written from"
	}
	return fmt.Sprintf(promptTemplate, in.Question, in.Answer, sources.String(), imageNote)
}

// Evaluate asks the judge to grade one answer. A reply that cannot be parsed
// yields a Result with a nil Score, the billed cost, and a
// *models.EvaluationParseError.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*Result, error) {
	req := providers.Request{
		Model:       e.opts.Model,
		Prompt:      e.Prompt(in),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	}
	if in.Image != nil && e.opts.AttachImage {
		req.Images = []images.Image{*in.Image}
	}

	resp, err := providers.Complete(ctx, e.provider, e.opts.Retry, models.StepEvaluation, req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Raw:  resp.Text,
		Cost: providers.Record(e.tracker, models.StepEvaluation, e.provider, req, resp),
	}

	score, rationale, err := ParseScores(resp.Text)
	if err != nil {
		slog.Warn("Unable to parse evaluation", "err", err)
		return result, err
	}
	result.Score = &score
	result.Rationale = rationale
	return result, nil
}

var aliases = map[string][]string{
	"accuracy":        {"technical_accuracy", "accuracy", "技術準確性"},
	"completeness":    {"completeness", "完整性"},
	"clarity":         {"clarity", "清晰度"},
	"image_reference": {"image_reference", "image_relevance", "圖片引用"},
}

// ParseScores reads the judge's JSON verdict. The object may be wrapped in
// prose or a code fence; the first balanced object is used.
func ParseScores(text string) (models.EvaluationScore, string, error) {
	raw := extractObject(text)
	if raw == "" {
		return models.EvaluationScore{}, "", &models.EvaluationParseError{Reason: "no JSON object in reply", Raw: text}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return models.EvaluationScore{}, "", &models.EvaluationParseError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: text}
	}

	values := make(map[string]float64, len(aliases))
	for _, dim := range []string{"accuracy", "completeness", "clarity", "image_reference"} {
		v, ok := firstKey(payload, aliases[dim])
		if !ok {
			return models.EvaluationScore{}, "", &models.EvaluationParseError{Reason: "missing " + dim, Raw: text}
		}
		f, ok := number(v)
		if !ok {
			return models.EvaluationScore{}, "", &models.EvaluationParseError{Reason: fmt.Sprintf("%s is not a number: %v", dim, v), Raw: text}
		}
		if f < 0 || f > 100 {
			return models.EvaluationScore{}, "", &models.EvaluationParseError{Reason: fmt.Sprintf("%s out of range: %v", dim, f), Raw: text}
		}
		values[dim] = f
	}

	rationale := ""
	if v, ok := firstKey(payload, []string{"rationale", "reasoning", "explanation", "comment"}); ok {
		if s, ok := v.(string); ok {
			rationale = strings.TrimSpace(s)
		}
	}

	return NewScore(values["accuracy"], values["completeness"], values["clarity"], values["image_reference"]), rationale, nil
}

func firstKey(payload map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := payload[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// extractObject returns the first balanced {...} in text, skipping braces
// inside JSON strings.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
