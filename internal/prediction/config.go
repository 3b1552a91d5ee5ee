package prediction

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/bytedance/sonic"
)

const (
	ComponentCurrentRankInverse    = "current_rank_inverse"
	ComponentRank1Frequency        = "rank1_frequency"
	ComponentRankVelocityWeighted  = "rank_velocity_weighted"
	ComponentTop3Tenure            = "top3_tenure"
	ComponentEmissionShareCurrent  = "emission_share_current"
	ComponentEmissionGapNormalized = "emission_gap_normalized"
	ComponentEmissionTrend7d       = "emission_trend_7d"
	ComponentEmissionMomentum      = "emission_momentum"
	ComponentGapClosingFeasibility = "gap_closing_feasibility"
	ComponentShareStability        = "share_stability"
	ComponentRankStability         = "rank_stability"
)

// ComponentNames lists the score components in the order used by Weights.Vector and Components.Vector.
var ComponentNames = []string{
	ComponentCurrentRankInverse,
	ComponentRank1Frequency,
	ComponentRankVelocityWeighted,
	ComponentTop3Tenure,
	ComponentEmissionShareCurrent,
	ComponentEmissionGapNormalized,
	ComponentEmissionTrend7d,
	ComponentEmissionMomentum,
	ComponentGapClosingFeasibility,
	ComponentShareStability,
	ComponentRankStability,
}

// Weights holds one weight per score component.
type Weights struct {
	CurrentRankInverse    float64 `yaml:"current_rank_inverse" json:"current_rank_inverse"`
	Rank1Frequency        float64 `yaml:"rank1_frequency" json:"rank1_frequency"`
	RankVelocityWeighted  float64 `yaml:"rank_velocity_weighted" json:"rank_velocity_weighted"`
	Top3Tenure            float64 `yaml:"top3_tenure" json:"top3_tenure"`
	EmissionShareCurrent  float64 `yaml:"emission_share_current" json:"emission_share_current"`
	EmissionGapNormalized float64 `yaml:"emission_gap_normalized" json:"emission_gap_normalized"`
	EmissionTrend7d       float64 `yaml:"emission_trend_7d" json:"emission_trend_7d"`
	EmissionMomentum      float64 `yaml:"emission_momentum" json:"emission_momentum"`
	GapClosingFeasibility float64 `yaml:"gap_closing_feasibility" json:"gap_closing_feasibility"`
	ShareStability        float64 `yaml:"share_stability" json:"share_stability"`
	RankStability         float64 `yaml:"rank_stability" json:"rank_stability"`
}

// Vector returns the weights in ComponentNames order.
func (w Weights) Vector() []float64 {
	return []float64{
		w.CurrentRankInverse,
		w.Rank1Frequency,
		w.RankVelocityWeighted,
		w.Top3Tenure,
		w.EmissionShareCurrent,
		w.EmissionGapNormalized,
		w.EmissionTrend7d,
		w.EmissionMomentum,
		w.GapClosingFeasibility,
		w.ShareStability,
		w.RankStability,
	}
}

// PositionPenalties maps a rank (1..10) to its base score multiplier.
type PositionPenalties map[int]float64

// MarshalJSON writes the ranks in ascending numeric order ("1" through "10").
func (p PositionPenalties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	ranks := make([]int, 0, len(p))
	for rank := range p {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rank := range ranks {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := sonic.Marshal(p[rank])
		if err != nil {
			return nil, fmt.Errorf("encode penalty for rank %d: %w", rank, err)
		}
		fmt.Fprintf(&buf, `"%d":%s`, rank, v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MaxPenalizedRank is the rank every lower position is clamped to.
const MaxPenalizedRank = 10

// Config is the model's tunable data: component weights and position penalties.
type Config struct {
	Weights           Weights           `yaml:"feature_weights" json:"feature_weights"`
	PositionPenalties PositionPenalties `yaml:"position_penalties" json:"position_penalties"`

	// PenaltyHorizonDays is the horizon over which the penalty relaxation ramps up.
	PenaltyHorizonDays float64 `yaml:"penalty_horizon_days" json:"-"`

	// PenaltyRelaxation is the share of the remaining penalty lifted at the full horizon.
	PenaltyRelaxation float64 `yaml:"penalty_relaxation" json:"-"`
}

// DefaultWeights are the production weights (v2.1).
func DefaultWeights() Weights {
	return Weights{
		CurrentRankInverse:    0.10,
		Rank1Frequency:        0.10,
		RankVelocityWeighted:  0.05,
		Top3Tenure:            0.10,
		EmissionShareCurrent:  0.15,
		EmissionGapNormalized: 0.20,
		EmissionTrend7d:       0.08,
		EmissionMomentum:      0.04,
		GapClosingFeasibility: 0.03,
		ShareStability:        0.08,
		RankStability:         0.07,
	}
}

func DefaultPositionPenalties() PositionPenalties {
	return PositionPenalties{
		1: 1.00, 2: 0.95, 3: 0.85, 4: 0.70, 5: 0.55,
		6: 0.42, 7: 0.30, 8: 0.20, 9: 0.12, 10: 0.08,
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		PositionPenalties:  DefaultPositionPenalties(),
		PenaltyHorizonDays: 30,
		PenaltyRelaxation:  0.3,
	}
}

// Validate checks that weights are non-negative and sum to 1 and that every rank 1..10 has a
// penalty in (0, 1] that does not increase with rank.
func (c Config) Validate() error {
	sum := 0.0
	for i, w := range c.Weights.Vector() {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("weight %s must be non-negative, got %v", ComponentNames[i], w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}

	prev := math.Inf(1)
	for rank := 1; rank <= MaxPenalizedRank; rank++ {
		p, ok := c.PositionPenalties[rank]
		if !ok {
			return fmt.Errorf("missing position penalty for rank %d", rank)
		}
		if p <= 0 || p > 1 {
			return fmt.Errorf("position penalty for rank %d must be in (0, 1], got %v", rank, p)
		}
		if p > prev {
			return fmt.Errorf("position penalty for rank %d (%v) exceeds rank %d (%v)", rank, p, rank-1, prev)
		}
		prev = p
	}

	if c.PenaltyHorizonDays <= 0 {
		return fmt.Errorf("penalty horizon must be positive, got %v", c.PenaltyHorizonDays)
	}
	if c.PenaltyRelaxation < 0 || c.PenaltyRelaxation > 1 {
		return fmt.Errorf("penalty relaxation must be in [0, 1], got %v", c.PenaltyRelaxation)
	}
	return nil
}
