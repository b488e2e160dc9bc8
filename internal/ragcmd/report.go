package ragcmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/report"
	"github.com/lehigh-university-libraries/ragtest/internal/results"
)

// NewReportCmd creates the report command
func NewReportCmd(app *App) *cobra.Command {
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "report <results.yaml>",
		Short: "Re-render the report for a saved run",
		Long: `Load a results file written by "ragtest run" and render it again.

The html format writes rag_test_report_<timestamp>_<run id>.html next to the results
file unless --output is given. The text and json formats print the run
summary to stdout.`,
		Example: `  ragtest report ./results/rag_test_results_20261019_143005_9f2c41d7.yaml
  ragtest report ./results/rag_test_results_20261019_143005_9f2c41d7.yaml --format text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSettings()
			if err != nil {
				return err
			}
			return executeReport(app.Out, s, args[0], output, format)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "HTML output path (html format only)")
	cmd.Flags().StringVar(&format, "format", "html", "Output format: html, text or json")

	return cmd
}

func executeReport(w io.Writer, s *config.Settings, path, output, format string) error {
	run, err := results.LoadYAML(path)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	switch format {
	case "html":
		if output == "" {
			output = results.ReportPathFor(path)
		}
		gen, err := report.New(report.Options{HTML: s.HTML})
		if err != nil {
			return err
		}
		if err := gen.WriteFile(output, run); err != nil {
			return err
		}
		fmt.Fprintln(w, successStyle.Render("HTML report: "+output))
		return nil
	case "text":
		printTextReport(w, run)
		return nil
	case "json":
		return printJSONReport(w, run)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(w io.Writer, run *models.Run) {
	metrics.Aggregate(run).PrintSummary(w, run)

	fmt.Fprintln(w, "\nDetailed Results:")
	for _, tc := range run.Cases {
		fmt.Fprintf(w, "\n[%d] %s  %s\n", tc.Index, statusBadge(tc.Status), tc.Category)
		fmt.Fprintf(w, "  Question: %s\n", tc.Question)
		if tc.Error != "" {
			fmt.Fprintf(w, "  Error:    %s\n", tc.Error)
			continue
		}
		if tc.Evaluation != nil {
			e := tc.Evaluation
			fmt.Fprintf(w, "  Score:    %.1f (accuracy %.0f, completeness %.0f, clarity %.0f, image %.0f)\n",
				e.WeightedTotal, e.Accuracy, e.Completeness, e.Clarity, e.ImageReference)
		}
		fmt.Fprintf(w, "  Answer:   %s\n", truncate(tc.Answer, 200))
	}
}

func printJSONReport(w io.Writer, run *models.Run) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Run     *models.Run      `json:"run"`
		Summary *metrics.Summary `json:"summary"`
	}{run, metrics.Aggregate(run)})
}
