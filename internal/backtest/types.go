// Package backtest replays the forecaster against history to measure how often its top pick
// actually held rank 1 at the target date.
package backtest

import (
	"math"
	"strconv"

	"github.com/tensorplex-labs/subnet-rankings/internal/history"
	"github.com/tensorplex-labs/subnet-rankings/internal/prediction"
)

// Status is the outcome of one backtest point.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusInsufficientData Status = "insufficient_data"
	StatusNoFeatures       Status = "no_features"
)

// PredictedSubnet is one entry of a result's top predictions.
type PredictedSubnet struct {
	NetUID      prediction.NetUID `json:"netuid"`
	Probability float64           `json:"probability"`
}

// Result is a single simulated prediction made at TestDate and scored at TargetDate.
// Only Status and Error are set unless Status is StatusSuccess.
type Result struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	TestDate             history.Timestamp `json:"test_date"`
	TargetDate           history.Timestamp `json:"target_date"`
	PredictionWindowDays int               `json:"prediction_window_days"`
	TrainingSnapshots    int               `json:"training_snapshots"`

	PredictedNetUID      prediction.NetUID `json:"predicted_netuid,omitempty"`
	PredictedProbability float64           `json:"predicted_probability"`

	// ActualRank is nil when the predicted subnet is not ranked in the snapshot at TargetDate.
	ActualRank                *int               `json:"actual_rank"`
	ActualRank1NetUID         *prediction.NetUID `json:"actual_rank1_netuid"`
	PredictedRank1Probability float64            `json:"predicted_rank1_probability"`
	PredictionCorrect         bool               `json:"prediction_correct"`

	TopPredictions []PredictedSubnet `json:"top_5_predictions,omitempty"`
}

// Metric is a float that encodes +Inf and NaN as JSON null.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric(math.Inf(1))
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// WindowResult aggregates the successful tests of one prediction window.
type WindowResult struct {
	WindowDays          int      `json:"window_days"`
	TotalTests          int      `json:"total_tests"`
	CorrectPredictions  int      `json:"correct_predictions"`
	Accuracy            float64  `json:"accuracy"`
	BrierScore          Metric   `json:"brier_score"`
	AvgRank1Probability float64  `json:"avg_rank1_probability"`
	Tests               []Result `json:"tests"`
}

// Report is the document stored under the backtest key.
type Report struct {
	GeneratedAt       string                  `json:"_generated_at"`
	BacktestDays      int                     `json:"backtest_days"`
	PredictionWindows []int                   `json:"prediction_windows"`
	Results           map[string]WindowResult `json:"results"`
}

// WindowLabel is the Report.Results key for a window, e.g. "7d".
func WindowLabel(days int) string {
	return strconv.Itoa(days) + "d"
}
