// Package questions asks a vision model to write test questions about an image.
package questions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
)

const promptTemplate = `You are preparing test questions for a retrieval-augmented question answering system built over technical documentation.

The attached image comes from the documentation section "%s".

Write %d question(s) that an engineer looking at this image would ask the documentation system. Each question must:
- be answerable from the written documentation, not only from the image
- name the concrete process, component or specification involved
- not mention "the image" or "the picture"
- be in the same language as any text visible in the image (use English if there is none)

Reply with a numbered list, one question per line, like:
1. <question>
2. <question>

Do not add any other text.`

// Options controls the generation request
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Count       int
	Retry       retry.Policy
}

// Generator produces questions for images through an LLM provider
type Generator struct {
	provider providers.Provider
	tracker  *cost.Tracker
	opts     Options
}

// Result is the outcome of one generation call
type Result struct {
	Questions []string
	Cost      models.CostRecord
	Raw       string
}

// New creates a question generator
func New(p providers.Provider, tracker *cost.Tracker, opts Options) *Generator {
	if opts.Count < 1 {
		opts.Count = 1
	}
	return &Generator{provider: p, tracker: tracker, opts: opts}
}

// Prompt returns the instruction sent with the image
func (g *Generator) Prompt(category string) string {
	return fmt.Sprintf(promptTemplate, category, g.opts.Count)
}

// Generate sends the image and category label to the model. The first
// question in the result is the one a test case should use.
func (g *Generator) Generate(ctx context.Context, img images.Image, category string) (*Result, error) {
	req := providers.Request{
		Model:       g.opts.Model,
		Prompt:      g.Prompt(category),
		Images:      []images.Image{img},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}

	resp, err := providers.Complete(ctx, g.provider, g.opts.Retry, models.StepQuestion, req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Raw:  resp.Text,
		Cost: providers.Record(g.tracker, models.StepQuestion, g.provider, req, resp),
	}

	result.Questions = Parse(resp.Text, g.opts.Count)
	if len(result.Questions) == 0 {
		return result, fmt.Errorf("no questions found in model reply for %s", img.Path)
	}

	slog.Debug("Generated questions", "image", img.Path, "category", category, "count", len(result.Questions))
	return result, nil
}

var numbered = regexp.MustCompile(`^\s*(?:\d+|[一二三四五六七八九十]+)\s*[.)、．:：]\s*(.+)$`)

// Parse extracts up to limit questions from a model reply. Numbered lines
// win; otherwise any line ending in a question mark is taken. A reply with
// neither falls back to its first non-empty line.
func Parse(text string, limit int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	var out []string
	for _, line := range lines {
		if m := numbered.FindStringSubmatch(line); m != nil {
			out = append(out, clean(m[1]))
		}
	}

	if len(out) == 0 {
		for _, line := range lines {
			if strings.HasSuffix(line, "?") || strings.HasSuffix(line, "？") {
				out = append(out, clean(line))
			}
		}
	}

	if len(out) == 0 && len(lines) > 0 {
		out = append(out, clean(lines[0]))
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clean(q string) string {
	q = strings.TrimSpace(q)
	q = strings.TrimLeft(q, "-*• ")
	q = strings.Trim(q, "\"“”")
	return strings.TrimSpace(q)
}
