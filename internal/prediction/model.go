// Package prediction turns subnet feature vectors into rank 1 probabilities for a target date.
package prediction

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"github.com/tensorplex-labs/subnet-rankings/internal/features"
)

// ModelVersion is written into every prediction record.
const ModelVersion = "1.0-statistical"

// Model is a weighted composite score followed by a position penalty and L1 normalization.
type Model struct {
	cfg Config
	now func() time.Time
}

type ModelOption func(*Model)

// WithNow fixes the instant days_until is measured from.
func WithNow(now time.Time) ModelOption {
	return func(m *Model) {
		m.now = func() time.Time { return now }
	}
}

func WithClock(clock func() time.Time) ModelOption {
	return func(m *Model) {
		m.now = clock
	}
}

// NewModel copies cfg so later changes by the caller do not leak into the model.
func NewModel(cfg Config, opts ...ModelOption) *Model {
	penalties := make(PositionPenalties, len(cfg.PositionPenalties))
	for rank, p := range cfg.PositionPenalties {
		penalties[rank] = p
	}
	cfg.PositionPenalties = penalties

	m := &Model{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Config() Config {
	return m.cfg
}

// Components are the per-subnet score inputs, each already mapped onto [0, 1].
type Components struct {
	CurrentRankInverse    float64 `json:"current_rank_inverse"`
	Rank1Frequency        float64 `json:"rank1_frequency"`
	RankVelocityWeighted  float64 `json:"rank_velocity_weighted"`
	Top3Tenure            float64 `json:"top3_tenure"`
	EmissionShareCurrent  float64 `json:"emission_share_current"`
	EmissionGapNormalized float64 `json:"emission_gap_normalized"`
	EmissionTrend7d       float64 `json:"emission_trend_7d"`
	EmissionMomentum      float64 `json:"emission_momentum"`
	GapClosingFeasibility float64 `json:"gap_closing_feasibility"`
	ShareStability        float64 `json:"share_stability"`
	RankStability         float64 `json:"rank_stability"`
}

// Vector returns the components in ComponentNames order.
func (c Components) Vector() []float64 {
	return []float64{
		c.CurrentRankInverse,
		c.Rank1Frequency,
		c.RankVelocityWeighted,
		c.Top3Tenure,
		c.EmissionShareCurrent,
		c.EmissionGapNormalized,
		c.EmissionTrend7d,
		c.EmissionMomentum,
		c.GapClosingFeasibility,
		c.ShareStability,
		c.RankStability,
	}
}

func ComponentsOf(fv *features.FeatureVector) Components {
	velocity := float64(fv.RankDelta7d+fv.RankDeltaRecent) / 2
	return Components{
		CurrentRankInverse:    1 / float64(max(1, fv.CurrentRank)),
		Rank1Frequency:        fv.Rank1Frequency,
		RankVelocityWeighted:  sigmoid(velocity / 5),
		Top3Tenure:            fv.Top3Tenure,
		EmissionShareCurrent:  fv.EmissionShareCurrent / 100,
		EmissionGapNormalized: fv.EmissionGapNormalized,
		EmissionTrend7d:       sigmoid(fv.EmissionPctChange7d / 10),
		EmissionMomentum:      sigmoid(fv.EmissionMomentum / 5),
		GapClosingFeasibility: fv.GapClosingFeasibility,
		ShareStability:        fv.ShareStability,
		RankStability:         fv.RankStability,
	}
}

// Score is the weighted composite clamped to [0, 1].
func (m *Model) Score(fv *features.FeatureVector) float64 {
	raw := floats.Dot(ComponentsOf(fv).Vector(), m.cfg.Weights.Vector())
	if math.IsNaN(raw) {
		return 0
	}
	return math.Max(0, math.Min(1, raw))
}

// PositionPenalty relaxes the base multiplier for rank the further out the target is.
// Ranks outside 1..10 are clamped.
func (m *Model) PositionPenalty(rank, daysUntil int) float64 {
	rank = min(MaxPenalizedRank, max(1, rank))
	base, ok := m.cfg.PositionPenalties[rank]
	if !ok {
		base = m.cfg.PositionPenalties[MaxPenalizedRank]
	}
	horizon := math.Min(1, float64(daysUntil)/m.cfg.PenaltyHorizonDays)
	return base + (1-base)*horizon*m.cfg.PenaltyRelaxation
}

// DaysUntil is the number of whole days from the model clock to target, at least 1.
func (m *Model) DaysUntil(target time.Time) int {
	return DaysBetween(m.now(), target)
}

func DaysBetween(from, to time.Time) int {
	return max(1, int(to.Sub(from)/(24*time.Hour)))
}

// CalculateProbabilities scores every non-nil vector, applies the position penalty for target and
// normalizes so the result sums to 1. If every adjusted score is 0 the distribution is uniform.
func (m *Model) CalculateProbabilities(featuresBySubnet map[string]*features.FeatureVector, target time.Time) map[string]float64 {
	ids := make([]string, 0, len(featuresBySubnet))
	for id, fv := range featuresBySubnet {
		if fv == nil || fv.HasNaN() {
			continue
		}
		ids = append(ids, id)
	}
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out
	}
	// map iteration order is random; fixed order keeps the float sums reproducible
	sort.Strings(ids)

	daysUntil := m.DaysUntil(target)
	adjusted := make([]float64, len(ids))
	for i, id := range ids {
		fv := featuresBySubnet[id]
		adjusted[i] = m.Score(fv) * m.PositionPenalty(fv.CurrentRank, daysUntil)
	}

	probs := L1Normalize(adjusted)
	if floats.Sum(adjusted) == 0 {
		log.Warn().Int("subnets", len(ids)).Msg("all adjusted scores are zero, using uniform distribution")
		for i := range probs {
			probs[i] = 1 / float64(len(ids))
		}
	}

	for i, id := range ids {
		out[id] = probs[i]
	}
	return out
}

// L1Normalize scales a copy of arr so it sums to 1. A zero-sum input is returned unchanged.
func L1Normalize(arr []float64) []float64 {
	result := make([]float64, len(arr))
	copy(result, arr)

	sum := floats.Sum(result)
	if sum > 0 {
		floats.Scale(1.0/sum, result)
	}

	return result
}

// sigmoid is the logistic function, returning 0.5 when exp overflows.
func sigmoid(x float64) float64 {
	e := math.Exp(-x)
	if math.IsInf(e, 0) || math.IsNaN(e) {
		return 0.5
	}
	return 1 / (1 + e)
}
