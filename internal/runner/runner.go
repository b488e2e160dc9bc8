// Package runner drives test cases through question generation, the RAG
// query and evaluation, one case at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/dataset"
	"github.com/lehigh-university-libraries/ragtest/internal/evaluation"
	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/questions"
	"github.com/lehigh-university-libraries/ragtest/internal/rag"
	"github.com/lehigh-university-libraries/ragtest/internal/retry"
	"github.com/lehigh-university-libraries/ragtest/internal/scanner"
)

// RAGProvider is the system under test
type RAGProvider interface {
	Query(ctx context.Context, question, sessionID string) (*rag.Answer, error)
}

// QuestionWriter writes questions for an image
type QuestionWriter interface {
	Generate(ctx context.Context, img images.Image, category string) (*questions.Result, error)
}

// Judge grades an answer
type Judge interface {
	Evaluate(ctx context.Context, in evaluation.Input) (*evaluation.Result, error)
}

// Item is one unit of work. Items with a Question skip generation.
type Item struct {
	ImagePath string
	Category  string
	Question  string
	Expected  string
}

// FolderItems turns scanned categories into items, preserving scan order
func FolderItems(categories []scanner.Category) []Item {
	var items []Item
	for _, c := range categories {
		for _, img := range c.Images {
			items = append(items, Item{ImagePath: img, Category: c.Name})
		}
	}
	return items
}

// SheetItems turns question sheet rows into items
func SheetItems(rows []dataset.Row) []Item {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{
			ImagePath: r.ImagePath,
			Category:  r.Category,
			Question:  r.Question,
			Expected:  r.Expected,
		})
	}
	return items
}

// Runner executes test runs
type Runner struct {
	settings  *config.Settings
	rag       RAGProvider
	generator QuestionWriter
	judge     Judge
	tracker   *cost.Tracker

	// Sleep waits between cases
	Sleep func(ctx context.Context, d time.Duration) error
	// NewID creates run and session IDs
	NewID func() string
	Now   func() time.Time
	// OnCase is called after each case completes
	OnCase func(done, total int, tc *models.TestCase)
	// Fetch downloads sheet images given as URLs and returns a local path
	Fetch func(ctx context.Context, url string) (string, error)
}

// New creates a runner. The tracker should be fresh for each run so the
// run's cost records match its cases.
func New(settings *config.Settings, ragClient RAGProvider, generator QuestionWriter, judge Judge, tracker *cost.Tracker) *Runner {
	return &Runner{
		settings:  settings,
		rag:       ragClient,
		generator: generator,
		judge:     judge,
		tracker:   tracker,
		Sleep:     retry.SleepWithContext,
		NewID:     uuid.NewString,
		Now:       time.Now,
		Fetch:     images.NewFetcher(filepath.Join(settings.ResultsDir, "images")).Fetch,
	}
}

// Run processes items in order. Cancelling ctx stops the loop between cases;
// the partial run is still returned.
func (r *Runner) Run(ctx context.Context, mode, source string, items []Item) *models.Run {
	run := &models.Run{
		ID:        r.NewID(),
		Mode:      mode,
		Source:    source,
		Provider:  r.settings.LLM.Provider,
		Model:     r.settings.LLM.Model,
		RAGURL:    r.settings.RAG.URL,
		StartedAt: r.Now(),
		Threshold: r.settings.PassThreshold,
		Cases:     make([]models.TestCase, 0, len(items)),
	}

	slog.Info("Starting test run", "run_id", run.ID, "mode", mode, "source", source, "cases", len(items))

	sessions := make(map[string]string)
	for i, item := range items {
		if ctx.Err() != nil {
			slog.Warn("Run interrupted, keeping partial results", "completed", i, "total", len(items))
			break
		}
		if i > 0 && r.settings.DelayBetweenTests > 0 {
			if err := r.Sleep(ctx, r.settings.DelayBetweenTests); err != nil {
				slog.Warn("Run interrupted, keeping partial results", "completed", i, "total", len(items))
				break
			}
		}

		slog.Info("Processing item", "category", item.Category, "image", item.ImagePath, "progress", fmt.Sprintf("%d/%d", i+1, len(items)))

		tc := r.runCase(ctx, i+1, item, r.sessionFor(sessions, item.Category))
		run.Cases = append(run.Cases, tc)

		if r.OnCase != nil {
			r.OnCase(i+1, len(items), &run.Cases[len(run.Cases)-1])
		}
	}

	run.Costs = r.tracker.Records()
	run.FinishedAt = r.Now()

	slog.Info("Test run finished", "run_id", run.ID, "cases", len(run.Cases), "total_cost", cost.Format(run.TotalCost()))
	return run
}

func (r *Runner) sessionFor(sessions map[string]string, category string) string {
	key := ""
	if r.settings.RAG.SessionScope == config.SessionScopeCategory {
		key = category
	}
	id, ok := sessions[key]
	if !ok {
		id = r.NewID()
		sessions[key] = id
	}
	return id
}

func (r *Runner) runCase(ctx context.Context, index int, item Item, sessionID string) models.TestCase {
	tc := models.TestCase{
		Index:     index,
		ImagePath: item.ImagePath,
		Category:  item.Category,
		Question:  item.Question,
		SessionID: sessionID,
	}

	var img *images.Image
	if item.ImagePath != "" {
		loaded, err := r.loadImage(ctx, &tc)
		switch {
		case err == nil:
			img = &loaded
		case item.Question == "":
			return fail(tc, models.StatusIOFailed, err)
		default:
			slog.Warn("Unable to load image for sheet row, continuing without it", "image", item.ImagePath, "err", err)
		}
	}

	if tc.Question == "" {
		if img == nil {
			return fail(tc, models.StatusIOFailed, fmt.Errorf("no question and no image to generate one from"))
		}
		res, err := r.generator.Generate(ctx, *img, item.Category)
		if res != nil {
			tc.Costs = append(tc.Costs, res.Cost)
		}
		if err != nil {
			return fail(tc, models.StatusQueryFailed, err)
		}
		tc.Question = res.Questions[0]
		tc.CandidateQuestions = res.Questions
	}

	answer, err := r.rag.Query(ctx, tc.Question, sessionID)
	if err != nil {
		return fail(tc, models.StatusQueryFailed, err)
	}
	tc.Answer = answer.Text
	tc.Passages = answer.Passages
	tc.ResponseTime = answer.Duration
	tc.HasImageReference = rag.HasImageReference(answer.Text)

	if r.settings.RAG.TrackCost {
		tc.Costs = append(tc.Costs, r.tracker.AddEstimated(models.StepRAG, "rag", r.settings.RAG.CostModel, tc.Question, tc.Answer))
	}

	res, err := r.judge.Evaluate(ctx, evaluation.Input{
		Question:  tc.Question,
		Answer:    tc.Answer,
		Passages:  tc.Passages,
		Image:     img,
		Reference: item.Expected,
	})
	if res != nil {
		tc.Costs = append(tc.Costs, res.Cost)
		tc.Rationale = res.Rationale
	}
	if err != nil {
		return fail(tc, models.StatusEvaluationFailed, err)
	}

	tc.Evaluation = res.Score
	if res.Score.WeightedTotal >= r.settings.PassThreshold {
		tc.Status = models.StatusPassed
	} else {
		tc.Status = models.StatusBelowThreshold
	}

	slog.Info("Case complete",
		"index", index,
		"status", tc.Status,
		"score", fmt.Sprintf("%.1f", res.Score.WeightedTotal),
		"response_time", tc.ResponseTime,
		"cost", cost.Format(tc.Cost()))
	return tc
}

// loadImage reads the case's image, downloading it first when the sheet
// gave a URL. The case then records the local copy.
func (r *Runner) loadImage(ctx context.Context, tc *models.TestCase) (images.Image, error) {
	if images.IsURL(tc.ImagePath) {
		if r.Fetch == nil {
			return images.Image{}, fmt.Errorf("image URLs are not supported: %s", tc.ImagePath)
		}
		local, err := r.Fetch(ctx, tc.ImagePath)
		if err != nil {
			return images.Image{}, err
		}
		tc.ImagePath = local
	}
	return images.Load(tc.ImagePath)
}

func fail(tc models.TestCase, status string, err error) models.TestCase {
	tc.Status = status
	tc.Error = err.Error()

	var qErr *models.QueryError
	if errors.As(err, &qErr) {
		slog.Error("Case failed", "index", tc.Index, "status", status, "step", qErr.Step, "attempts", qErr.Attempts, "err", qErr.Err)
	} else {
		slog.Error("Case failed", "index", tc.Index, "status", status, "err", err)
	}
	return tc
}
