package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/handlers"
	"github.com/lehigh-university-libraries/ragtest/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var resultsDir string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse saved runs and reports over HTTP",
		Long: `Starts a small web server over the results directory.

The index page lists every saved run with its pass rate and cost and links
to the HTML report. /api/runs returns the same list as JSON and /metrics
exports run summaries for Prometheus. New results files are picked up as
they are written unless --watch=false; POST /api/runs reloads by hand.`,
		Example: `  # Serve ./results on default port 8888
  ragtest serve

  # Serve another results directory on a custom port
  ragtest serve --results-dir /data/rag-results --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resultsDir == "" {
				s, err := config.Load()
				if err != nil {
					return err
				}
				resultsDir = s.ResultsDir
			}

			store := storage.New()
			n, err := store.Load(resultsDir)
			if err != nil {
				return err
			}
			slog.Info("Loaded saved runs", "dir", resultsDir, "runs", n)

			if watch {
				if err := store.Watch(cmd.Context(), resultsDir, 500*time.Millisecond, nil); err != nil {
					return fmt.Errorf("failed to watch %s: %w", resultsDir, err)
				}
			}

			handler := handlers.New(store, resultsDir)

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/runs", handler.HandleRuns)
			mux.HandleFunc("/api/runs/", handler.HandleRunDetail)
			mux.HandleFunc("/reports/", handler.HandleReports)
			mux.Handle("/metrics", handler.MetricsHandler())
			mux.HandleFunc("/", handler.HandleIndex)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Report browser available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory (default RAG_TEST_RESULTS_DIR)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload runs when results files change")

	return cmd
}
