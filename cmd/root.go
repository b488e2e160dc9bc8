package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/ragtest/internal/ragcmd"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ragtest",
		Short: "Image-driven test harness for a RAG question answering service",
		Long: `ragtest exercises a retrieval-augmented generation service with questions
about technical images.

A vision-capable LLM writes a question for each image, the RAG service
answers it, and the same LLM grades the answer for accuracy, completeness,
clarity and use of the image. Every run is saved as YAML and rendered to a
standalone HTML report with scores and token costs.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	app := ragcmd.NewApp()

	// Add subcommands
	cmd.AddCommand(ragcmd.NewRunCmd(app))
	cmd.AddCommand(ragcmd.NewInteractiveCmd(app))
	cmd.AddCommand(ragcmd.NewScanCmd(app))
	cmd.AddCommand(ragcmd.NewConfigCmd(app))
	cmd.AddCommand(ragcmd.NewReportCmd(app))
	cmd.AddCommand(ragcmd.NewQuestionsCmd(app))
	cmd.AddCommand(newServeCmd())

	return cmd
}
