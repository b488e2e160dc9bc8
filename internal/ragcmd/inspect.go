package ragcmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ragtest/internal/dataset"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/scanner"
)

// NewScanCmd creates the scan command
func NewScanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "scan [dir]",
		Short:   "List image categories and counts",
		Example: `  ragtest scan ./test_images`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			dir := s.ImageDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return &models.ConfigurationError{Key: "RAG_TEST_IMAGE_DIR", Reason: "is required when no directory is given"}
			}

			categories, err := scanner.Scan(dir)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Fprintln(app.Out, warnStyle.Render("No images found under "+dir))
				return nil
			}
			printCategories(app.Out, categories)
			fmt.Fprintf(app.Out, "%d categories, %d images\n", len(categories), scanner.Count(categories))
			return nil
		},
	}
}

func printCategories(w io.Writer, categories []scanner.Category) {
	t := newTable("#", "Category", "Images")
	for i, c := range categories {
		t.Row(strconv.Itoa(i+1), c.Name, strconv.Itoa(len(c.Images)))
	}
	fmt.Fprintln(w, t)
}

// NewConfigCmd creates the config command
func NewConfigCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}

			t := newTable("Setting", "Value")
			for _, e := range s.Entries() {
				t.Row(e[0], e[1])
			}
			fmt.Fprintln(app.Out, t)

			if err := s.Validate(); err != nil {
				fmt.Fprintln(app.Out, errorStyle.Render(err.Error()))
				return nil
			}
			fmt.Fprintln(app.Out, successStyle.Render("Configuration is valid"))
			return nil
		},
	}
}

// NewQuestionsCmd groups the question sheet helpers
func NewQuestionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Question sheet helpers",
	}
	cmd.AddCommand(newTemplateCmd(app), newInspectCmd(app), newClearCacheCmd(app))
	return cmd
}

func newTemplateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "template <file.xlsx>",
		Short:   "Write a sample question workbook",
		Example: `  ragtest questions template ./questions.xlsx`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dataset.WriteTemplate(args[0], nil); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, successStyle.Render("Template written to "+args[0]))
			return nil
		},
	}
}

func newInspectCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect <sheet|url>",
		Short: "Show the questions a sheet would run",
		Long: `Load a question sheet the same way "ragtest run" does and print the
detected rows, so column naming problems show up before any call is made.
A URL is downloaded into RAG_TEST_SHEET_CACHE_DIR first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			loader, err := dataset.LoadOrDownload(cmd.Context(), args[0], dataset.DownloadConfig{
				CacheDir: s.Sheets.CacheDir,
				Token:    s.Sheets.Token,
			})
			if err != nil {
				return err
			}

			var rows []dataset.Row
			if limit > 0 {
				rows, err = loader.LoadSample(limit)
			} else {
				rows, err = loader.Load()
			}
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}

			fmt.Fprintf(app.Out, "Loaded %d questions from %s\n", len(rows), args[0])
			fmt.Fprintln(app.Out, strings.Repeat("=", 80))

			for _, r := range rows {
				if cmd.Context().Err() != nil {
					fmt.Fprintln(app.Out, "\nInspection interrupted.")
					return nil
				}
				fmt.Fprintf(app.Out, "ROW %d  [%s]\n", r.Number, r.Category)
				fmt.Fprintf(app.Out, "Question: %s\n", r.Question)
				if r.ImagePath != "" {
					fmt.Fprintf(app.Out, "Image:    %s\n", r.ImagePath)
				}
				if r.Expected != "" {
					fmt.Fprintf(app.Out, "Expected: %s\n", truncate(r.Expected, 200))
				}
				fmt.Fprintln(app.Out, strings.Repeat("-", 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of rows to show (0 for all)")

	return cmd
}

func newClearCacheCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove downloaded question sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			if err := dataset.NewDownloader(dataset.DownloadConfig{CacheDir: s.Sheets.CacheDir}).ClearCache(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(app.Out, successStyle.Render("Cleared "+s.Sheets.CacheDir))
			return nil
		},
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
