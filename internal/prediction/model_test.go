package prediction

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/subnet-rankings/internal/features"
	"github.com/tensorplex-labs/subnet-rankings/internal/history"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func vector(id string, rank int) *features.FeatureVector {
	return &features.FeatureVector{
		SubnetID:              id,
		SubnetName:            "SN" + id,
		CurrentRank:           rank,
		CurrentEmission:       200,
		Observations:          100,
		Rank1Frequency:        0.2,
		RankStability:         0.5,
		AvgRank:               float64(rank),
		EmissionShareCurrent:  2.5,
		EmissionPctChange7d:   3,
		ShareStability:        0.8,
		EmissionGapNormalized: 0.4,
		GapClosingFeasibility: 0.3,
		Top3Tenure:            0.5,
	}
}

func TestCalculateProbabilities_SumsToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	model := NewModel(DefaultConfig(), WithNow(now))

	for trial := 0; trial < 20; trial++ {
		fvs := make(map[string]*features.FeatureVector)
		n := 1 + rng.IntN(30)
		for i := 0; i < n; i++ {
			fv := vector(fmt.Sprint(i), 1+rng.IntN(15))
			fv.Rank1Frequency = rng.Float64()
			fv.EmissionShareCurrent = rng.Float64() * 10
			fv.EmissionPctChange7d = rng.NormFloat64() * 20
			fv.RankDelta7d = rng.IntN(7) - 3
			fvs[fv.SubnetID] = fv
		}
		// nil vectors are skipped
		fvs["missing"] = nil

		probs := model.CalculateProbabilities(fvs, now.AddDate(0, 0, 1+rng.IntN(60)))
		require.Len(t, probs, n)

		sum := 0.0
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 0.01)
	}
}

func TestCalculateProbabilities_Empty(t *testing.T) {
	model := NewModel(DefaultConfig(), WithNow(now))
	assert.Empty(t, model.CalculateProbabilities(nil, now))
	assert.Empty(t, model.CalculateProbabilities(map[string]*features.FeatureVector{"a": nil}, now))
}

func TestCalculateProbabilities_UniformFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Rank1Frequency: 1}
	model := NewModel(cfg, WithNow(now))

	fvs := make(map[string]*features.FeatureVector)
	for i, rank := range []int{1, 2, 5, 12} {
		fv := vector(fmt.Sprint(i), rank)
		fv.Rank1Frequency = 0
		fvs[fv.SubnetID] = fv
	}

	probs := model.CalculateProbabilities(fvs, now.AddDate(0, 0, 30))
	require.Len(t, probs, 4)
	for id, p := range probs {
		assert.InDelta(t, 0.25, p, 1e-12, "subnet %s", id)
	}
}

func TestCalculateProbabilities_RankOneBeatsRankFive(t *testing.T) {
	model := NewModel(DefaultConfig(), WithNow(now))
	for _, days := range []int{1, 7, 30, 90, 365} {
		fvs := map[string]*features.FeatureVector{
			"one":  vector("one", 1),
			"five": vector("five", 5),
		}
		probs := model.CalculateProbabilities(fvs, now.AddDate(0, 0, days))
		assert.Greater(t, probs["one"], probs["five"], "days_until=%d", days)
	}
}

func TestPositionPenalty(t *testing.T) {
	model := NewModel(DefaultConfig())

	assert.InDelta(t, 1.0, model.PositionPenalty(1, 1), 1e-12)
	// rank 5 at the full horizon: 0.55 + 0.45 * 1 * 0.3
	assert.InDelta(t, 0.685, model.PositionPenalty(5, 30), 1e-12)
	assert.InDelta(t, 0.685, model.PositionPenalty(5, 400), 1e-12)
	// half the horizon relaxes half as much
	assert.InDelta(t, 0.55+0.45*0.5*0.3, model.PositionPenalty(5, 15), 1e-12)

	assert.Equal(t, model.PositionPenalty(1, 10), model.PositionPenalty(0, 10))
	assert.Equal(t, model.PositionPenalty(10, 10), model.PositionPenalty(250, 10))

	for days := 1; days <= 60; days++ {
		for rank := 1; rank < MaxPenalizedRank; rank++ {
			assert.Greater(t, model.PositionPenalty(rank, days), model.PositionPenalty(rank+1, days))
		}
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 1, DaysBetween(now, now))
	assert.Equal(t, 1, DaysBetween(now, now.Add(-72*time.Hour)))
	assert.Equal(t, 1, DaysBetween(now, now.Add(36*time.Hour)))
	assert.Equal(t, 3, DaysBetween(now, now.Add(72*time.Hour+time.Minute)))
	assert.Equal(t, 30, NewModel(DefaultConfig(), WithNow(now)).DaysUntil(now.AddDate(0, 0, 30)))
}

func TestScore_ClampedAndComponents(t *testing.T) {
	model := NewModel(DefaultConfig())

	fv := vector("x", 1)
	fv.EmissionShareCurrent = 500 // more than the whole network is clamped by the final score
	fv.Rank1Frequency = 1
	fv.Top3Tenure = 1
	fv.EmissionGapNormalized = 1
	fv.GapClosingFeasibility = 1
	fv.ShareStability = 1
	fv.RankStability = 1
	fv.EmissionPctChange7d = 1000
	fv.EmissionMomentum = 1000
	fv.RankDelta7d = 100
	assert.Equal(t, 1.0, model.Score(fv))

	c := ComponentsOf(vector("y", 4))
	assert.InDelta(t, 0.25, c.CurrentRankInverse, 1e-12)
	assert.InDelta(t, 0.5, c.RankVelocityWeighted, 1e-12)
	assert.InDelta(t, 0.025, c.EmissionShareCurrent, 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-0.3)), c.EmissionTrend7d, 1e-12)
	assert.InDelta(t, 0.5, c.EmissionMomentum, 1e-12)

	assert.Equal(t, 1.0, ComponentsOf(vector("z", 0)).CurrentRankInverse)
}

func TestSigmoid_Overflow(t *testing.T) {
	assert.Equal(t, 0.5, sigmoid(-1000))
	assert.InDelta(t, 1.0, sigmoid(1000), 1e-12)
	assert.Equal(t, 0.5, sigmoid(0))
}

func TestNewModel_CopiesPenalties(t *testing.T) {
	cfg := DefaultConfig()
	model := NewModel(cfg)
	cfg.PositionPenalties[1] = 0.01
	assert.Equal(t, 1.0, model.PositionPenalty(1, 1))
}

// crossoverHistory is 60 days of hourly snapshots where A grows linearly from 50 to 500 while
// B stays at 200. A overtakes B on day 20.
func crossoverHistory() history.History {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	hours := 60 * 24
	h := make(history.History, 0, hours+1)
	for i := 0; i <= hours; i++ {
		a := 50 + 450*float64(i)/float64(hours)
		entries := []history.RankEntry{{ID: "A", Name: "Alpha", Value: a}, {ID: "B", Name: "Beta", Value: 200}}
		if a > 200 {
			entries[0].Rank, entries[1].Rank = 1, 2
		} else {
			entries[0], entries[1] = entries[1], entries[0]
			entries[0].Rank, entries[1].Rank = 1, 2
		}
		h = append(h, history.Snapshot{Timestamp: start.Add(time.Duration(i) * time.Hour), Entries: entries})
	}
	return h
}

func TestEndToEnd_Crossover(t *testing.T) {
	full := crossoverHistory()
	target := full.Oldest().AddDate(0, 0, 65)

	predictAt := func(asOf time.Time) map[string]float64 {
		h := full.Until(asOf)
		fvs := features.NewExtractor(h, 28).ExtractAll()
		require.Len(t, fvs, 2)
		return NewModel(DefaultConfig(), WithNow(asOf)).CalculateProbabilities(fvs, target)
	}

	before := predictAt(full.Oldest().AddDate(0, 0, 15))
	assert.Greater(t, before["B"], before["A"], "B leads before the crossover")

	after := predictAt(full.Newest())
	assert.Greater(t, after["A"], after["B"], "A leads once it holds rank 1")
	assert.InDelta(t, 1.0, after["A"]+after["B"], 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to one", func(c *Config) { c.Weights.RankStability += 0.1 }},
		{"negative weight", func(c *Config) { c.Weights.RankStability, c.Weights.ShareStability = -0.07, 0.22 }},
		{"missing rank", func(c *Config) { delete(c.PositionPenalties, 7) }},
		{"penalty increases", func(c *Config) { c.PositionPenalties[6] = 0.6 }},
		{"penalty out of range", func(c *Config) { c.PositionPenalties[10] = 0 }},
		{"zero horizon", func(c *Config) { c.PenaltyHorizonDays = 0 }},
		{"relaxation above one", func(c *Config) { c.PenaltyRelaxation = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
