package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="zh-TW">
<head><meta charset="UTF-8"><title>RAG test runs</title>
<style>body{font-family:sans-serif;margin:2em}td,th{padding:4px 12px;text-align:left}</style>
</head>
<body>
<h1>RAG test runs</h1>
{{if not .}}<p>No results found.</p>{{else}}
<table>
<tr><th>Started</th><th>Mode</th><th>Source</th><th>Model</th><th>Cases</th><th>Pass rate</th><th>Cost</th></tr>
{{range .}}<tr>
<td><a href="{{.ReportURL}}">{{.StartedAt.Format "2006-01-02 15:04:05"}}</a></td>
<td>{{.Mode}}</td><td>{{.Source}}</td><td>{{.Provider}} / {{.Model}}</td>
<td>{{.TotalCases}}</td><td>{{printf "%.1f%%" .PassRate}}</td><td>{{printf "$%.4f" .TotalCost}}</td>
</tr>{{end}}
</table>{{end}}
</body>
</html>
`))

func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, h.listings()); err != nil {
		slog.Error("Unable to render index", "err", err)
	}
}

// HandleReports serves report and results files from the results directory
func (h *Handler) HandleReports(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/reports/")

	// Prevent directory traversal attacks
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	switch filepath.Ext(name) {
	case ".html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case ".yaml":
		w.Header().Set("Content-Type", "application/yaml")
	case ".json":
		w.Header().Set("Content-Type", "application/json")
	default:
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.resultsDir, name)
	if _, err := os.Stat(fullPath); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, fullPath)
}
