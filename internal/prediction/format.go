package prediction

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tensorplex-labs/subnet-rankings/internal/features"
	"github.com/tensorplex-labs/subnet-rankings/internal/history"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	highConfidenceSnapshots   = 168
	mediumConfidenceSnapshots = 72

	topContenders = 5
)

// NetUID is a subnet id that serializes as a JSON number when it is numeric.
type NetUID string

func (n NetUID) MarshalJSON() ([]byte, error) {
	if v, err := strconv.Atoi(string(n)); err == nil {
		return []byte(strconv.Itoa(v)), nil
	}
	return sonic.Marshal(string(n))
}

func (n *NetUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		*n = NetUID(s)
		return nil
	}
	var v int
	if err := sonic.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode netuid %s: %w", data, err)
	}
	*n = NetUID(strconv.Itoa(v))
	return nil
}

type TrendIndicators struct {
	RankMomentum      string `json:"rank_momentum"`
	EmissionTrend     string `json:"emission_trend"`
	PositionAdvantage string `json:"position_advantage"`
}

type KeyMetrics struct {
	RankVelocity7d      float64 `json:"rank_velocity_7d"`
	EmissionChange7dPct float64 `json:"emission_change_7d_pct"`
	RankStability       float64 `json:"rank_stability"`
}

// SubnetPrediction is one row of a DatePrediction, sorted by probability.
type SubnetPrediction struct {
	NetUID               NetUID          `json:"netuid"`
	SubnetName           string          `json:"subnet_name"`
	Probability          float64         `json:"probability"`
	ProbabilityPct       string          `json:"probability_pct"`
	CurrentRank          int             `json:"current_rank"`
	CurrentEmissionDaily float64         `json:"current_emission_daily"`
	EmissionSharePct     float64         `json:"emission_share_pct"`
	TrendIndicators      TrendIndicators `json:"trend_indicators"`
	KeyMetrics           KeyMetrics      `json:"key_metrics"`
}

type Contender struct {
	NetUID      NetUID  `json:"netuid"`
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

type MarketInsights struct {
	MostStable    *NetUID `json:"most_stable,omitempty"`
	FastestRising *NetUID `json:"fastest_rising,omitempty"`
}

type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type DataQuality struct {
	SnapshotsAnalyzed int       `json:"snapshots_analyzed"`
	LookbackDays      int       `json:"lookback_days"`
	DateRange         DateRange `json:"date_range"`
}

// DatePrediction is the presentation of one CalculateProbabilities result.
type DatePrediction struct {
	TargetDate     string             `json:"target_date"`
	DaysAhead      int                `json:"days_ahead"`
	Confidence     string             `json:"confidence"`
	DataQuality    DataQuality        `json:"data_quality"`
	Predictions    []SubnetPrediction `json:"predictions"`
	TopContenders  []Contender        `json:"top_5_contenders"`
	MarketInsights MarketInsights     `json:"market_insights"`
}

// HistoryMeta describes the history a prediction was computed from.
type HistoryMeta struct {
	Snapshots    int
	LookbackDays int
	Oldest       time.Time
	Newest       time.Time
}

func MetaOf(h history.History, lookbackDays int) HistoryMeta {
	meta := HistoryMeta{Snapshots: len(h), LookbackDays: lookbackDays}
	if len(h) > 0 {
		meta.Oldest = h.Oldest()
		meta.Newest = h.Newest()
	}
	return meta
}

func RankMomentum(rankDelta7d int) string {
	switch {
	case rankDelta7d > 1:
		return "strong_positive"
	case rankDelta7d > 0:
		return "positive"
	case rankDelta7d < -1:
		return "strong_negative"
	case rankDelta7d < 0:
		return "negative"
	default:
		return "stable"
	}
}

func EmissionTrend(pctChange7d float64) string {
	switch {
	case pctChange7d > 5:
		return "growing_strong"
	case pctChange7d > 0:
		return "growing_moderate"
	case pctChange7d < -5:
		return "declining_strong"
	case pctChange7d < 0:
		return "declining_moderate"
	default:
		return "stable"
	}
}

func PositionAdvantage(currentRank int) string {
	switch {
	case currentRank == 1:
		return "leader"
	case currentRank <= 3:
		return "contender"
	case currentRank <= 5:
		return "challenger"
	default:
		return "underdog"
	}
}

func Confidence(snapshots int) string {
	switch {
	case snapshots >= highConfidenceSnapshots:
		return ConfidenceHigh
	case snapshots >= mediumConfidenceSnapshots:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Ranked returns subnet ids ordered by probability, highest first. Ties break on id.
func Ranked(probs map[string]float64) []string {
	ids := make([]string, 0, len(probs))
	for id := range probs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if probs[ids[i]] != probs[ids[j]] {
			return probs[ids[i]] > probs[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// FormatDatePrediction sorts probs descending and attaches labels and metrics from the feature vectors.
// Subnets without a feature vector are left out.
func FormatDatePrediction(
	probs map[string]float64,
	featuresBySubnet map[string]*features.FeatureVector,
	target time.Time,
	now time.Time,
	meta HistoryMeta,
) DatePrediction {
	out := DatePrediction{
		TargetDate: history.FormatTimestamp(target),
		DaysAhead:  int(math.Floor(target.Sub(now).Hours() / 24)),
		Confidence: Confidence(meta.Snapshots),
		DataQuality: DataQuality{
			SnapshotsAnalyzed: meta.Snapshots,
			LookbackDays:      meta.LookbackDays,
		},
		Predictions:   []SubnetPrediction{},
		TopContenders: []Contender{},
	}
	if !meta.Oldest.IsZero() {
		out.DataQuality.DateRange = DateRange{
			From: history.FormatTimestamp(meta.Oldest),
			To:   history.FormatTimestamp(meta.Newest),
		}
	}

	for _, id := range Ranked(probs) {
		fv := featuresBySubnet[id]
		if fv == nil {
			continue
		}
		p := probs[id]
		name := fv.SubnetName
		if name == "" {
			name = "SN" + id
		}
		out.Predictions = append(out.Predictions, SubnetPrediction{
			NetUID:               NetUID(id),
			SubnetName:           name,
			Probability:          round(p, 4),
			ProbabilityPct:       fmt.Sprintf("%.2f%%", p*100),
			CurrentRank:          fv.CurrentRank,
			CurrentEmissionDaily: round(fv.CurrentEmission, 2),
			EmissionSharePct:     round(fv.EmissionShareCurrent, 2),
			TrendIndicators: TrendIndicators{
				RankMomentum:      RankMomentum(fv.RankDelta7d),
				EmissionTrend:     EmissionTrend(fv.EmissionPctChange7d),
				PositionAdvantage: PositionAdvantage(fv.CurrentRank),
			},
			KeyMetrics: KeyMetrics{
				RankVelocity7d:      float64(fv.RankDelta7d),
				EmissionChange7dPct: round(fv.EmissionPctChange7d, 2),
				RankStability:       round(fv.RankStability, 2),
			},
		})
	}

	for _, p := range out.Predictions[:min(topContenders, len(out.Predictions))] {
		out.TopContenders = append(out.TopContenders, Contender{NetUID: p.NetUID, Name: p.SubnetName, Probability: p.Probability})
	}

	if len(out.Predictions) > 0 {
		stable, rising := 0, 0
		for i, p := range out.Predictions {
			v := p.KeyMetrics.RankVelocity7d
			if v*v < math.Pow(out.Predictions[stable].KeyMetrics.RankVelocity7d, 2) {
				stable = i
			}
			if v > out.Predictions[rising].KeyMetrics.RankVelocity7d {
				rising = i
			}
		}
		out.MarketInsights.MostStable = &out.Predictions[stable].NetUID
		out.MarketInsights.FastestRising = &out.Predictions[rising].NetUID
	}
	return out
}

// Configuration echoes the settings a Record was produced with.
type Configuration struct {
	LookbackDays      int               `json:"lookback_days"`
	MinDataPoints     int               `json:"min_data_points"`
	FeatureWeights    Weights           `json:"feature_weights"`
	PositionPenalties PositionPenalties `json:"position_penalties"`
}

// Record is the document stored under the predictions key.
type Record struct {
	GeneratedAt       string           `json:"_generated_at"`
	ModelVersion      string           `json:"model_version"`
	PredictionsByDate []DatePrediction `json:"predictions_by_date"`
	Configuration     Configuration    `json:"configuration"`
}

func NewRecord(generatedAt time.Time, byDate []DatePrediction, cfg Config, lookbackDays, minDataPoints int) Record {
	if byDate == nil {
		byDate = []DatePrediction{}
	}
	return Record{
		GeneratedAt:       history.FormatTimestamp(generatedAt),
		ModelVersion:      ModelVersion,
		PredictionsByDate: byDate,
		Configuration: Configuration{
			LookbackDays:      lookbackDays,
			MinDataPoints:     minDataPoints,
			FeatureWeights:    cfg.Weights,
			PositionPenalties: cfg.PositionPenalties,
		},
	}
}

// ProbabilitySum adds up the rounded probabilities of one date, the way a consumer of the record sees them.
func (d DatePrediction) ProbabilitySum() float64 {
	sum := 0.0
	for _, p := range d.Predictions {
		sum += p.Probability
	}
	return sum
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
