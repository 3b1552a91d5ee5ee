package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tensorplex-labs/subnet-rankings/internal/prediction"
)

var ErrInvalidModelConfig = errors.New("invalid model config")

// modelOverrides mirrors prediction.Config with every field optional.
type modelOverrides struct {
	FeatureWeights     map[string]float64 `yaml:"feature_weights"`
	PositionPenalties  map[int]float64    `yaml:"position_penalties"`
	PenaltyHorizonDays *float64           `yaml:"penalty_horizon_days"`
	PenaltyRelaxation  *float64           `yaml:"penalty_relaxation"`
}

// LoadModelConfig returns the default model config with the overrides from the YAML file at
// path applied. An empty path returns the defaults. The result is validated.
func LoadModelConfig(path string) (prediction.Config, error) {
	cfg := prediction.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return prediction.Config{}, fmt.Errorf("read model config %s: %w", path, err)
	}
	return ParseModelConfig(raw)
}

func ParseModelConfig(raw []byte) (prediction.Config, error) {
	cfg := prediction.DefaultConfig()

	var o modelOverrides
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return prediction.Config{}, fmt.Errorf("%w: %v", ErrInvalidModelConfig, err)
	}

	for name, w := range o.FeatureWeights {
		if !setWeight(&cfg.Weights, name, w) {
			return prediction.Config{}, fmt.Errorf("%w: unknown feature weight %q", ErrInvalidModelConfig, name)
		}
	}
	for rank, p := range o.PositionPenalties {
		if rank < 1 || rank > prediction.MaxPenalizedRank {
			return prediction.Config{}, fmt.Errorf("%w: position penalty rank %d outside 1..%d",
				ErrInvalidModelConfig, rank, prediction.MaxPenalizedRank)
		}
		cfg.PositionPenalties[rank] = p
	}
	if o.PenaltyHorizonDays != nil {
		cfg.PenaltyHorizonDays = *o.PenaltyHorizonDays
	}
	if o.PenaltyRelaxation != nil {
		cfg.PenaltyRelaxation = *o.PenaltyRelaxation
	}

	if err := cfg.Validate(); err != nil {
		return prediction.Config{}, fmt.Errorf("%w: %v", ErrInvalidModelConfig, err)
	}
	return cfg, nil
}

func setWeight(w *prediction.Weights, name string, v float64) bool {
	switch name {
	case prediction.ComponentCurrentRankInverse:
		w.CurrentRankInverse = v
	case prediction.ComponentRank1Frequency:
		w.Rank1Frequency = v
	case prediction.ComponentRankVelocityWeighted:
		w.RankVelocityWeighted = v
	case prediction.ComponentTop3Tenure:
		w.Top3Tenure = v
	case prediction.ComponentEmissionShareCurrent:
		w.EmissionShareCurrent = v
	case prediction.ComponentEmissionGapNormalized:
		w.EmissionGapNormalized = v
	case prediction.ComponentEmissionTrend7d:
		w.EmissionTrend7d = v
	case prediction.ComponentEmissionMomentum:
		w.EmissionMomentum = v
	case prediction.ComponentGapClosingFeasibility:
		w.GapClosingFeasibility = v
	case prediction.ComponentShareStability:
		w.ShareStability = v
	case prediction.ComponentRankStability:
		w.RankStability = v
	default:
		return false
	}
	return true
}
