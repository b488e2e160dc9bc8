// Package report renders a test run as a self-contained HTML page.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/ragtest/internal/config"
	"github.com/lehigh-university-libraries/ragtest/internal/cost"
	"github.com/lehigh-university-libraries/ragtest/internal/images"
	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
)

//go:embed report.html.tmpl
var pageTemplate string

// Thumbnails are bounded to this box before being inlined
const (
	ThumbnailWidth  = 600
	ThumbnailHeight = 400
)

const passagePreview = 300

var imageURL = regexp.MustCompile(`https?://[^\s<>"']+\.(?:png|jpe?g|gif|bmp|webp)`)

// Options configures a Generator
type Options struct {
	HTML config.HTMLSettings

	// Thumbnail returns a data URL for the image at path. Defaults to
	// images.Thumbnail.
	Thumbnail func(path string, maxW, maxH int) (string, error)
	Now       func() time.Time
}

// Generator renders reports
type Generator struct {
	opts Options
	tmpl *template.Template
}

type style struct {
	Primary         template.CSS
	Success         template.CSS
	Warning         template.CSS
	Error           template.CSS
	MaxImageWidth   template.CSS
	MaxImageHeight  template.CSS
	AnswerMaxHeight template.CSS
}

type page struct {
	Title       string
	GeneratedAt string
	Run         *models.Run
	Summary     *metrics.Summary
	Style       style
	ByStep      []cost.Line
	ByModel     []cost.Line
	Sections    []section
}

type section struct {
	Stats  metrics.CategoryStats
	Anchor string
	Class  string
	Cases  []caseView
}

type caseView struct {
	models.TestCase
	Thumbnail  template.URL
	ImageName  string
	AnswerHTML template.HTML
	ScoreClass string
	CostUSD    float64
	Passages   []models.Passage
}

// New parses the page template
func New(opts Options) (*Generator, error) {
	if opts.Thumbnail == nil {
		opts.Thumbnail = images.Thumbnail
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"usd":     cost.Format,
		"score":   func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"pct":     func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"seconds": func(d time.Duration) string { return fmt.Sprintf("%.2fs", d.Seconds()) },
		"inc":     func(i int) int { return i + 1 },
	}).Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}

	return &Generator{opts: opts, tmpl: tmpl}, nil
}

// Render writes the report for run to w
func (g *Generator) Render(w io.Writer, run *models.Run) error {
	summary := metrics.Aggregate(run)
	p := page{
		Title:       fmt.Sprintf("RAG 系統測試報告 - %s", run.StartedAt.Format("2006-01-02 15:04:05")),
		GeneratedAt: g.opts.Now().Format("2006-01-02 15:04:05"),
		Run:         run,
		Summary:     summary,
		Style:       g.style(),
		ByStep:      cost.Breakdown(run.Costs, cost.ByStep),
		ByModel:     cost.Breakdown(run.Costs, cost.ByModel),
	}

	byCategory := make(map[string][]caseView)
	for _, tc := range run.Cases {
		byCategory[tc.Category] = append(byCategory[tc.Category], g.caseView(tc))
	}
	for i, stats := range summary.Categories {
		p.Sections = append(p.Sections, section{
			Stats:  stats,
			Anchor: fmt.Sprintf("category-%d", i+1),
			Class:  scoreClass(stats.AverageScore),
			Cases:  byCategory[stats.Name],
		})
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// WriteFile renders the report into path, creating parent directories
func (g *Generator) WriteFile(path string, run *models.Run) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &models.IOError{Path: filepath.Dir(path), Op: "create report directory", Err: err}
	}

	var buf bytes.Buffer
	if err := g.Render(&buf, run); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return &models.IOError{Path: path, Op: "write", Err: err}
	}

	slog.Info("HTML report saved", "path", path)
	return nil
}

func (g *Generator) style() style {
	h := g.opts.HTML
	return style{
		Primary:         cssValue(h.PrimaryColor, "#3498db"),
		Success:         cssValue(h.SuccessColor, "#27ae60"),
		Warning:         cssValue(h.WarningColor, "#f39c12"),
		Error:           cssValue(h.ErrorColor, "#e74c3c"),
		MaxImageWidth:   cssValue(h.MaxImageWidth, "350px"),
		MaxImageHeight:  cssValue(h.MaxImageHeight, "300px"),
		AnswerMaxHeight: cssValue(h.AnswerMaxHeight, "200px"),
	}
}

// cssValue accepts a single color or length token and falls back to def
// for anything that could break out of the declaration.
func cssValue(v, def string) template.CSS {
	v = strings.TrimSpace(v)
	if v == "" || strings.ContainsAny(v, ";{}<>\"'\\/()") {
		return template.CSS(def)
	}
	return template.CSS(v)
}

func (g *Generator) caseView(tc models.TestCase) caseView {
	v := caseView{
		TestCase:   tc,
		AnswerHTML: FormatAnswer(tc.Answer),
		CostUSD:    tc.Cost(),
	}
	if tc.Evaluation != nil {
		v.ScoreClass = scoreClass(tc.Evaluation.WeightedTotal)
	}

	if tc.ImagePath != "" {
		v.ImageName = filepath.Base(tc.ImagePath)
		thumb, err := g.opts.Thumbnail(tc.ImagePath, ThumbnailWidth, ThumbnailHeight)
		if err != nil {
			slog.Warn("Unable to embed image in report", "image", tc.ImagePath, "err", err)
		} else if strings.HasPrefix(thumb, "data:image/") {
			v.Thumbnail = template.URL(thumb)
		}
	}

	for _, p := range tc.Passages {
		p.Content = truncate(p.Content, passagePreview)
		v.Passages = append(v.Passages, p)
	}
	return v
}

// FormatAnswer escapes the answer and turns image URLs in it into inline
// images.
func FormatAnswer(answer string) template.HTML {
	escaped := template.HTMLEscapeString(answer)
	escaped = imageURL.ReplaceAllString(escaped, `<br><img class="answer-image" src="$0" alt="related image" loading="lazy" onclick="openModal(this)">`)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(escaped)
}

func scoreClass(score float64) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 60:
		return "medium"
	default:
		return "low"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
