package forecast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobPredict      = "predict"
	JobBacktest     = "backtest"
	JobMergeHistory = "merge_history"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics holds the forecaster's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	Snapshots      prometheus.Gauge
	TopProbability *prometheus.GaugeVec

	BacktestAccuracy *prometheus.GaugeVec
	BacktestBrier    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subnet_rankings_runs_total",
				Help: "Total number of job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subnet_rankings_run_duration_seconds",
				Help:    "Duration of job runs in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),

		Snapshots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "subnet_rankings_history_snapshots",
				Help: "Number of snapshots in the history used by the last prediction run",
			},
		),

		TopProbability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subnet_rankings_top_probability",
				Help: "Rank 1 probability of the top predicted subnet, by target horizon in days",
			},
			[]string{"days_ahead"},
		),

		BacktestAccuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subnet_rankings_backtest_accuracy",
				Help: "Share of backtest points whose top pick held rank 1, by window",
			},
			[]string{"window"},
		),

		BacktestBrier: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subnet_rankings_backtest_brier_score",
				Help: "Brier score of the top pick, by window",
			},
			[]string{"window"},
		),
	}

	m.Registry.MustRegister(
		m.Runs,
		m.RunDuration,
		m.Snapshots,
		m.TopProbability,
		m.BacktestAccuracy,
		m.BacktestBrier,
	)
	return m
}

func (m *Metrics) observeRun(job string, started time.Time, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	m.Runs.WithLabelValues(job, outcome).Inc()
	m.RunDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}
