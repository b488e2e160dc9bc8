// Package handlers serves saved runs and their HTML reports.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/ragtest/internal/storage"
)

type Handler struct {
	runStore   *storage.RunStore
	resultsDir string
}

func New(store *storage.RunStore, resultsDir string) *Handler {
	return &Handler{
		runStore:   store,
		resultsDir: resultsDir,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

func (h *Handler) getRunOrError(w http.ResponseWriter, id string) (*storage.Entry, bool) {
	entry, exists := h.runStore.Get(id)
	if !exists {
		h.writeError(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}
