package backtest

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/subnet-rankings/internal/history"
)

// SweepConfig controls where test points are placed for each prediction window.
type SweepConfig struct {
	BacktestDays      int
	Windows           []int
	MaxTests          int
	LookbackFloorDays int
	GeneratedAt       time.Time
	Options           []Option
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		BacktestDays:      14,
		Windows:           []int{7, 14, 30},
		MaxTests:          10,
		LookbackFloorDays: 28,
	}
}

// Sweep slides a test date from oldest+LookbackFloorDays to newest-window in BacktestDays steps
// for every window, and aggregates the successful points. Windows with no room for a test point
// or without a successful point are left out of the report.
func Sweep(h history.History, cfg SweepConfig) Report {
	sorted := h.Sorted()
	generatedAt := cfg.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	report := Report{
		GeneratedAt:       history.FormatTimestamp(generatedAt),
		BacktestDays:      cfg.BacktestDays,
		PredictionWindows: cfg.Windows,
		Results:           make(map[string]WindowResult),
	}
	if len(sorted) == 0 || cfg.BacktestDays <= 0 {
		log.Warn().Int("snapshots", len(sorted)).Int("backtest_days", cfg.BacktestDays).Msg("nothing to backtest")
		return report
	}

	r := newRunner(cfg.Options...)
	testStart := sorted.Oldest().AddDate(0, 0, cfg.LookbackFloorDays)

	for _, window := range cfg.Windows {
		testEnd := sorted.Newest().AddDate(0, 0, -window)
		if !testStart.Before(testEnd) {
			log.Warn().
				Int("window_days", window).
				Time("test_start", testStart).
				Time("test_end", testEnd).
				Msg("history too short for window, skipping")
			continue
		}

		var results []Result
		for testDate, n := testStart, 0; !testDate.After(testEnd) && n < cfg.MaxTests; testDate, n = testDate.AddDate(0, 0, cfg.BacktestDays), n+1 {
			results = append(results, r.run(sorted, testDate, window))
		}

		wr, ok := Aggregate(window, results)
		if !ok {
			log.Warn().Int("window_days", window).Int("tests", len(results)).Msg("no successful backtests for window")
			continue
		}
		log.Info().
			Int("window_days", window).
			Int("total_tests", wr.TotalTests).
			Float64("accuracy", wr.Accuracy).
			Float64("brier_score", float64(wr.BrierScore)).
			Msg("backtest window complete")
		report.Results[WindowLabel(window)] = wr
	}
	return report
}

// Aggregate summarizes the successful results of one window. ok is false if there are none.
func Aggregate(windowDays int, results []Result) (WindowResult, bool) {
	var ok []Result
	for _, res := range results {
		if res.Status == StatusSuccess {
			ok = append(ok, res)
		}
	}
	if len(ok) == 0 {
		return WindowResult{}, false
	}

	correct := 0
	rank1Probs := make([]float64, len(ok))
	for i, res := range ok {
		if res.PredictionCorrect {
			correct++
		}
		rank1Probs[i] = res.PredictedRank1Probability
	}

	return WindowResult{
		WindowDays:          windowDays,
		TotalTests:          len(ok),
		CorrectPredictions:  correct,
		Accuracy:            float64(correct) / float64(len(ok)),
		BrierScore:          Metric(BrierScore(ok)),
		AvgRank1Probability: stat.Mean(rank1Probs, nil),
		Tests:               ok,
	}, true
}

// BrierScore is the mean squared error between the probability of each top pick and whether it
// turned out correct, over successful results only. It is +Inf when there are none.
func BrierScore(results []Result) float64 {
	var sq []float64
	for _, res := range results {
		if res.Status != StatusSuccess {
			continue
		}
		outcome := 0.0
		if res.PredictionCorrect {
			outcome = 1
		}
		d := res.PredictedProbability - outcome
		sq = append(sq, d*d)
	}
	if len(sq) == 0 {
		return math.Inf(1)
	}
	return stat.Mean(sq, nil)
}

// BestWindow returns the window with the highest accuracy. Ties go to the window listed first.
func (r Report) BestWindow() (string, WindowResult, bool) {
	var (
		label string
		best  WindowResult
		found bool
	)
	for _, window := range r.PredictionWindows {
		wr, ok := r.Results[WindowLabel(window)]
		if !ok {
			continue
		}
		if !found || wr.Accuracy > best.Accuracy {
			label, best, found = WindowLabel(window), wr, true
		}
	}
	return label, best, found
}

const (
	VerdictOutperforms  = "outperforms random baseline"
	VerdictSlightly     = "slightly better than random"
	VerdictNotBetter    = "not better than random"
	VerdictInconclusive = "no successful backtests"
)

// Verdict compares the mean accuracy across windows with a ~10% random baseline over the top 10.
func (r Report) Verdict() string {
	if len(r.Results) == 0 {
		return VerdictInconclusive
	}
	sum := 0.0
	for _, wr := range r.Results {
		sum += wr.Accuracy
	}
	avg := sum / float64(len(r.Results))
	switch {
	case avg > 0.2:
		return VerdictOutperforms
	case avg > 0.1:
		return VerdictSlightly
	default:
		return VerdictNotBetter
	}
}
