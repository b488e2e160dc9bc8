// Package ragcmd holds the cobra commands that drive the harness.
package ragcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/ragtest/internal/bedrock"
	"github.com/lehigh-university-libraries/ragtest/internal/claude"
	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/evaluation"
	"github.com/lehigh-university-libraries/ragtest/internal/gemini"
	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/ollama"
	"github.com/lehigh-university-libraries/ragtest/internal/openai"
	"github.com/lehigh-university-libraries/ragtest/internal/providers"
	"github.com/lehigh-university-libraries/ragtest/internal/questions"
	"github.com/lehigh-university-libraries/ragtest/internal/rag"
	"github.com/lehigh-university-libraries/ragtest/internal/report"
	"github.com/lehigh-university-libraries/ragtest/internal/results"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
	"github.com/lehigh-university-libraries/ragtest/internal/runner"
)

// App carries what every command needs. Tests swap the streams, the
// settings loader and the provider factory.
type App struct {
	In  io.Reader
	Out io.Writer

	LoadSettings func() (*config.Settings, error)
	NewProvider  func(ctx context.Context, s *config.Settings) (providers.Provider, error)

	// Configure adjusts each runner before it starts, e.g. to hook progress
	Configure func(r *runner.Runner)
}

// NewApp wires the process streams and real providers
func NewApp() *App {
	return &App{
		In:           os.Stdin,
		Out:          os.Stdout,
		LoadSettings: config.Load,
		NewProvider:  NewProvider,
	}
}

// NewProvider builds the configured LLM provider
func NewProvider(ctx context.Context, s *config.Settings) (providers.Provider, error) {
	switch s.LLM.Provider {
	case config.ProviderClaude:
		return claude.New(s.LLM.APIKey), nil
	case config.ProviderBedrock:
		b, err := bedrock.New(ctx, bedrock.Config{
			Region:          s.LLM.Region,
			AccessKeyID:     s.LLM.AccessKeyID,
			SecretAccessKey: s.LLM.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.ProviderOpenAI:
		return openai.New(s.LLM.APIKey, s.LLM.BaseURL), nil
	case config.ProviderGemini:
		return gemini.New(s.LLM.APIKey), nil
	case config.ProviderOllama:
		return ollama.New(s.LLM.BaseURL, nil), nil
	default:
		return nil, &models.ConfigurationError{Key: "RAG_TEST_LLM_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", s.LLM.Provider)}
	}
}

// RetryPolicy converts the retry settings into a policy
func RetryPolicy(s *config.Settings) retry.Policy {
	return retry.Policy{
		MaxAttempts: s.Retry.Count,
		Delay:       s.Retry.Delay,
		Backoff:     s.Retry.Backoff,
		MaxDelay:    s.Retry.MaxDelay,
	}
}

// Outcome is what a finished run leaves behind
type Outcome struct {
	Run         *models.Run
	Summary     *metrics.Summary
	ResultsPath string
	ReportPath  string
}

// Execute runs items end to end: validate, query, evaluate, persist and
// report. Settings are validated before any outbound call.
func (a *App) Execute(ctx context.Context, s *config.Settings, mode, source string, items []runner.Item) (*Outcome, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("nothing to test in %s", source)
	}

	provider, err := a.NewProvider(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", s.LLM.Provider, err)
	}

	policy := RetryPolicy(s)
	tracker := cost.NewTracker(s.Rates)

	ragClient := rag.NewClient(rag.Options{
		URL:               s.RAG.URL,
		Timeout:           s.RAG.Timeout,
		AnswerFields:      s.RAG.AnswerFields,
		SourcesFields:     s.RAG.SourcesFields,
		PersistentSession: s.RAG.PersistentSession,
		Retry:             policy,
	})
	generator := questions.New(provider, tracker, questions.Options{
		Model:       s.LLM.Model,
		MaxTokens:   s.LLM.MaxTokens,
		Temperature: s.LLM.Temperature,
		Count:       s.QuestionsPerImage,
		Retry:       policy,
	})
	judge := evaluation.New(provider, tracker, evaluation.Options{
		Model:       s.LLM.Model,
		MaxTokens:   s.LLM.MaxTokens,
		Temperature: s.LLM.Temperature,
		Retry:       policy,
		AttachImage: true,
	})

	r := runner.New(s, ragClient, generator, judge, tracker)
	r.OnCase = a.progress
	if a.Configure != nil {
		a.Configure(r)
	}

	run := r.Run(ctx, mode, source, items)
	out := &Outcome{Run: run, Summary: metrics.Aggregate(run)}

	// a partial run is still written when the context was cancelled
	out.ResultsPath, err = results.SaveToYAML(s.ResultsDir, run)
	if err != nil {
		return out, fmt.Errorf("failed to save results: %w", err)
	}

	gen, err := report.New(report.Options{HTML: s.HTML})
	if err != nil {
		return out, err
	}
	out.ReportPath = results.ReportPath(s.ResultsDir, run)
	if err := gen.WriteFile(out.ReportPath, run); err != nil {
		return out, fmt.Errorf("failed to write report: %w", err)
	}

	out.Summary.PrintSummary(a.Out, run)
	fmt.Fprintln(a.Out, successStyle.Render("Results saved to: "+out.ResultsPath))
	fmt.Fprintln(a.Out, successStyle.Render("HTML report:      "+out.ReportPath))

	if ctx.Err() != nil {
		slog.Warn("Run was interrupted; results are partial", "completed", len(run.Cases), "total", len(items))
	}
	return out, nil
}

func (a *App) progress(done, total int, tc *models.TestCase) {
	fmt.Fprintf(a.Out, "[%d/%d] %s %s\n", done, total, statusBadge(tc.Status), caseLine(tc))
}

func caseLine(tc *models.TestCase) string {
	if tc.Evaluation != nil {
		return fmt.Sprintf("%-20s score %5.1f  %s", tc.Category, tc.Evaluation.WeightedTotal, truncate(tc.Question, 60))
	}
	if tc.Error != "" {
		return fmt.Sprintf("%-20s %s", tc.Category, truncate(tc.Error, 80))
	}
	return fmt.Sprintf("%-20s %s", tc.Category, truncate(tc.Question, 60))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
