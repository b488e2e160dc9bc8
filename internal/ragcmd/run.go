package ragcmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/dataset"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/results"
	"github.com/lehigh-university-libraries/ragtest/internal/runner"
	"github.com/lehigh-university-libraries/ragtest/internal/scanner"
)

// overrides are the flags shared by run and interactive
type overrides struct {
	provider  string
	model     string
	threshold float64
	delay     float64
	resultsTo string
}

func (o *overrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.provider, "provider", "", "LLM provider (claude, bedrock, openai, gemini, ollama)")
	cmd.Flags().StringVar(&o.model, "model", "", "Model name (defaults to the provider's configured model)")
	cmd.Flags().Float64Var(&o.threshold, "threshold", 0, "Weighted score (0-100) a case needs to pass")
	cmd.Flags().Float64Var(&o.delay, "delay", 0, "Seconds to wait between cases")
	cmd.Flags().StringVar(&o.resultsTo, "results-dir", "", "Directory for results and reports")
}

func (o *overrides) apply(cmd *cobra.Command, s *config.Settings) {
	if o.provider != "" {
		s.UseProvider(o.provider)
	}
	if o.model != "" {
		s.LLM.Model = o.model
	}
	if cmd.Flags().Changed("threshold") {
		s.PassThreshold = o.threshold
	}
	if cmd.Flags().Changed("delay") {
		s.DelayBetweenTests = secondsToDuration(o.delay)
	}
	if o.resultsTo != "" {
		s.ResultsDir = o.resultsTo
	}
}

// NewRunCmd creates the direct (non-interactive) run command
func NewRunCmd(app *App) *cobra.Command {
	var categories []string
	var maxPerCategory int
	var limit int
	var saveJSON bool
	var o overrides

	cmd := &cobra.Command{
		Use:   "run [folder|sheet]",
		Short: "Test the RAG service with an image folder or a question sheet",
		Long: `Run every selected case through the RAG service and grade the answers.

A folder is scanned for category subdirectories of images; a question is
generated for each image with the configured vision model. A spreadsheet
(.xlsx, .csv, .parquet, .jsonl) supplies its own questions and skips
generation. Without an argument RAG_TEST_IMAGE_DIR is used.

Results are written to RAG_TEST_RESULTS_DIR as YAML plus an HTML report.`,
		Example: `  # Test up to 5 images from every category
  ragtest run ./test_images

  # Two categories, 3 images each, graded by GPT-4o
  ragtest run ./test_images --category connectors,wiring --max 3 --provider openai

  # Pre-written questions from a workbook
  ragtest run ./questions.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			o.apply(cmd, s)
			if err := s.ValidateServices(); err != nil {
				return err
			}

			target := s.ImageDir
			if len(args) == 1 {
				target = args[0]
			}
			if !cmd.Flags().Changed("max") {
				maxPerCategory = s.MaxImagesPerCategory
			}

			mode, items, err := Plan(cmd.Context(), s, target, categories, maxPerCategory, limit)
			if err != nil {
				return err
			}

			out, err := app.Execute(cmd.Context(), s, mode, target, items)
			if err != nil {
				return err
			}
			if saveJSON {
				path, err := results.SaveToJSON(s.ResultsDir, out.Run)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, successStyle.Render("JSON results:     "+path))

				summaryPath := results.SummaryPath(s.ResultsDir, out.Run)
				if err := out.Summary.SaveToJSON(summaryPath); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, successStyle.Render("JSON summary:     "+summaryPath))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "Only test these categories (folder mode)")
	cmd.Flags().IntVar(&maxPerCategory, "max", 0, "Images per category, 0 for all (default RAG_TEST_MAX_IMAGES_PER_CATEGORY)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Rows to read from a sheet, 0 for all")
	cmd.Flags().BoolVar(&saveJSON, "json", false, "Also write the results and summary as JSON")
	o.register(cmd)

	return cmd
}

// Plan resolves target into a run mode and its items. A sheet URL is
// downloaded first. For sheets the image dir setting falls back to the
// sheet's directory so validation passes.
func Plan(ctx context.Context, s *config.Settings, target string, categories []string, maxPerCategory, limit int) (string, []runner.Item, error) {
	if target == "" {
		return "", nil, &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: "is required when no folder or sheet is given"}
	}

	target, err := fetchSheet(ctx, s, target)
	if err != nil {
		return "", nil, err
	}

	info, err := statTarget(target)
	if err != nil {
		return "", nil, err
	}

	if info.IsDir() {
		s.ImageDir = target
		scanned, err := scanner.Scan(target)
		if err != nil {
			return "", nil, err
		}
		selected := scanner.Select(scanned, categories, maxPerCategory)
		slog.Info("Scanned image folder", "dir", target, "categories", len(selected), "images", scanner.Count(selected))
		return models.ModeFolder, runner.FolderItems(selected), nil
	}

	if !dataset.IsSheet(target) {
		return "", nil, fmt.Errorf("%s is neither a folder nor a supported sheet (%v)", target, dataset.SupportedExtensions)
	}
	if s.ImageDir == "" {
		s.ImageDir = filepath.Dir(target)
	}

	loader := dataset.NewLoader(target)
	var rows []dataset.Row
	if limit > 0 {
		rows, err = loader.LoadSample(limit)
	} else {
		rows, err = loader.Load()
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load questions: %w", err)
	}
	slog.Info("Loaded question sheet", "path", target, "rows", len(rows))
	return models.ModeSheet, runner.SheetItems(rows), nil
}

// statTarget reports a missing folder or sheet as a configuration error
func statTarget(target string) (os.FileInfo, error) {
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: fmt.Sprintf("%s does not exist", target)}
	}
	if err != nil {
		return nil, &models.IOError{Path: target, Op: "open", Err: err}
	}
	return info, nil
}

// fetchSheet returns a local path for target, downloading remote sheets
// into the sheet cache
func fetchSheet(ctx context.Context, s *config.Settings, target string) (string, error) {
	if !dataset.IsRemote(target) {
		return target, nil
	}
	return dataset.NewDownloader(dataset.DownloadConfig{
		CacheDir: s.Sheets.CacheDir,
		Token:    s.Sheets.Token,
	}).Download(ctx, target)
}
