package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lehigh-university-libraries/ragtest/internal/metrics"
	"github.com/lehigh-university-libraries/ragtest/internal/models"
	"github.com/lehigh-university-libraries/ragtest/internal/storage"
)

// RunCollector exports the summary of every stored run at scrape time
type RunCollector struct {
	store *storage.RunStore

	runs     *prometheus.Desc
	cases    *prometheus.Desc
	passRate *prometheus.Desc
	score    *prometheus.Desc
	cost     *prometheus.Desc
	latency  *prometheus.Desc
}

func NewRunCollector(store *storage.RunStore) *RunCollector {
	labels := []string{"run_id", "model"}
	return &RunCollector{
		store:    store,
		runs:     prometheus.NewDesc("ragtest_runs", "Number of saved runs", nil, nil),
		cases:    prometheus.NewDesc("ragtest_run_cases", "Cases per run by status", append(labels, "status"), nil),
		passRate: prometheus.NewDesc("ragtest_run_pass_rate", "Percentage of cases at or above the pass threshold", labels, nil),
		score:    prometheus.NewDesc("ragtest_run_score_average", "Average weighted score (0-100)", labels, nil),
		cost:     prometheus.NewDesc("ragtest_run_cost_usd", "Total API cost of the run in USD", labels, nil),
		latency:  prometheus.NewDesc("ragtest_run_response_seconds_average", "Average RAG response time", labels, nil),
	}
}

func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.cases
	ch <- c.passRate
	ch <- c.score
	ch <- c.cost
	ch <- c.latency
}

func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	entries := c.store.GetAll()
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(len(entries)))

	for _, e := range entries {
		s := metrics.Aggregate(e.Run)
		id, model := e.ID, e.Run.Model

		for status, n := range map[string]int{
			models.StatusPassed:           s.Passed,
			models.StatusBelowThreshold:   s.BelowThreshold,
			models.StatusQueryFailed:      s.QueryFailed,
			models.StatusEvaluationFailed: s.EvaluationFailed,
			models.StatusIOFailed:         s.IOFailed,
		} {
			ch <- prometheus.MustNewConstMetric(c.cases, prometheus.GaugeValue, float64(n), id, model, status)
		}
		ch <- prometheus.MustNewConstMetric(c.passRate, prometheus.GaugeValue, s.PassRate, id, model)
		ch <- prometheus.MustNewConstMetric(c.score, prometheus.GaugeValue, s.Overall.Average, id, model)
		ch <- prometheus.MustNewConstMetric(c.cost, prometheus.GaugeValue, s.TotalCost, id, model)
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.AverageResponseTime.Seconds(), id, model)
	}
}

// MetricsHandler serves the run metrics in the Prometheus text format
func (h *Handler) MetricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewRunCollector(h.runStore))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
