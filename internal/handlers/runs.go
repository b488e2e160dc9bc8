package handlers

import (
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/storage"
)

// RunListing is one row of GET /api/runs
type RunListing struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	StartedAt  time.Time `json:"started_at"`
	TotalCases int       `json:"total_cases"`
	PassRate   float64   `json:"pass_rate"`
	TotalCost  float64   `json:"total_cost"`
	ReportURL  string    `json:"report_url"`
}

// RunDetail is the body of GET /api/runs/{id}
type RunDetail struct {
	Run       *models.Run      `json:"run"`
	Summary   *metrics.Summary `json:"summary"`
	ReportURL string           `json:"report_url"`
}

func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.listings())
	case "POST":
		// rescan the results directory for runs written since startup
		if _, err := h.runStore.Load(h.resultsDir); err != nil {
			h.writeError(w, "Failed to reload runs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, h.listings())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")

	entry, ok := h.getRunOrError(w, id)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, RunDetail{
			Run:       entry.Run,
			Summary:   metrics.Aggregate(entry.Run),
			ReportURL: reportURL(entry),
		})
	case "DELETE":
		// forgets the run; files on disk are left alone
		h.runStore.Delete(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listings() []RunListing {
	entries := h.runStore.GetAll()
	list := make([]RunListing, 0, len(entries))
	for _, e := range entries {
		summary := metrics.Aggregate(e.Run)
		list = append(list, RunListing{
			ID:         e.ID,
			Mode:       e.Run.Mode,
			Source:     e.Run.Source,
			Provider:   e.Run.Provider,
			Model:      e.Run.Model,
			StartedAt:  e.Run.StartedAt,
			TotalCases: summary.TotalCases,
			PassRate:   summary.PassRate,
			TotalCost:  summary.TotalCost,
			ReportURL:  reportURL(e),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedAt.After(list[j].StartedAt)
	})
	return list
}

func reportURL(e *storage.Entry) string {
	return "/reports/" + filepath.Base(e.ReportPath)
}
