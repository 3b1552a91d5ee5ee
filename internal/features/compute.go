package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const avgRankFloor = 10.0

func pctChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}

func (e *Extractor) rankFeatures(obs []observation, fv *FeatureVector) {
	current := obs[len(obs)-1].rank

	ranks := make([]float64, len(obs))
	rank1 := 0
	for i, o := range obs {
		ranks[i] = float64(o.rank)
		if o.rank == 1 {
			rank1++
		}
	}

	if len(obs) >= 2 {
		fv.RankDeltaRecent = obs[len(obs)-2].rank - current
	}

	window := e.trailingWindow(obs)
	if len(window) >= 2 {
		fv.RankDelta7d = window[0].rank - current
	} else {
		fv.RankDelta7d = fv.RankDeltaRecent
	}

	fv.Rank1Frequency = float64(rank1) / float64(len(ranks))

	if len(ranks) >= 3 {
		_, std := stat.PopMeanStdDev(ranks, nil)
		fv.RankStability = 1 / (1 + std)
	} else {
		fv.RankStability = 0.5
	}

	if len(ranks) > 0 {
		fv.AvgRank = stat.Mean(ranks, nil)
	} else {
		fv.AvgRank = avgRankFloor
	}
}

func (e *Extractor) emissionFeatures(obs []observation, fv *FeatureVector) {
	n := len(obs)
	current := obs[n-1].value

	values := make([]float64, n)
	for i, o := range obs {
		values[i] = o.value
	}

	if e.params.TotalDailyEmission > 0 {
		fv.EmissionShareCurrent = current / e.params.TotalDailyEmission * 100
	}

	if n >= 2 {
		fv.EmissionPctChangeRecent = pctChange(obs[n-2].value, current)
	}

	window := e.trailingWindow(obs)
	if len(window) >= 2 {
		fv.EmissionPctChange7d = pctChange(window[0].value, current)
	} else {
		fv.EmissionPctChange7d = fv.EmissionPctChangeRecent
	}

	if n >= 3 {
		mean, std := stat.PopMeanStdDev(values, nil)
		if mean > 0 {
			fv.EmissionVolatility = std / mean
		}
	}
	fv.ShareStability = 1 / (1 + fv.EmissionVolatility)

	if n >= 4 {
		older := pctChange(obs[n-4].value, obs[n-3].value)
		fv.EmissionMomentum = fv.EmissionPctChangeRecent - older
	}
}

func (e *Extractor) gapFeatures(obs []observation, fv *FeatureVector) {
	latest := obs[len(obs)-1]

	switch leader, found := e.leaderNear(latest.ts); {
	case latest.rank == 1:
		fv.EmissionGapToLeader = 0
		fv.EmissionGapNormalized = 1
	case !found || leader.value == 0:
		fv.EmissionGapToLeader = e.params.DefaultLeaderGap
		fv.EmissionGapNormalized = 0
	default:
		gap := math.Max(0, leader.value-latest.value)
		fv.EmissionGapToLeader = gap
		fv.EmissionGapNormalized = math.Exp(-gap / e.params.GapScale)
	}

	fv.GapClosingFeasibility = e.gapClosingFeasibility(fv.EmissionGapToLeader, latest.value, fv.EmissionPctChange7d)
}

// gapClosingFeasibility maps the days needed to close the gap at the current 7d growth rate onto
// [0, 1]: FeasibleDays or less scores 1, InfeasibleDays or more scores 0.
func (e *Extractor) gapClosingFeasibility(gap, current, trend7d float64) float64 {
	if gap == 0 {
		return 1
	}
	if current == 0 || trend7d <= 0 {
		return 0
	}

	growthPerDay := current * (trend7d / 100) / float64(e.params.TrendWindowDays)
	if growthPerDay <= 0 {
		return 0
	}
	daysToClose := gap / growthPerDay

	span := e.params.InfeasibleDays - e.params.FeasibleDays
	score := 1 - (daysToClose-e.params.FeasibleDays)/span
	return math.Max(0, math.Min(1, score))
}

func (e *Extractor) tenureFeatures(obs []observation, fv *FeatureVector) {
	days := make(map[string]struct{})
	for _, o := range obs {
		if o.rank <= 3 {
			days[o.ts.UTC().Format("2006-01-02")] = struct{}{}
		}
	}
	fv.Top3Tenure = math.Min(1, float64(len(days))/e.params.TenureDays)
}

// Values returns the numeric features in a fixed order, for logging and diagnostics.
func (fv *FeatureVector) Values() []float64 {
	return []float64{
		float64(fv.CurrentRank), float64(fv.RankDeltaRecent), float64(fv.RankDelta7d),
		fv.Rank1Frequency, fv.RankStability, fv.AvgRank,
		fv.EmissionShareCurrent, fv.EmissionPctChangeRecent, fv.EmissionPctChange7d,
		fv.EmissionVolatility, fv.ShareStability, fv.EmissionMomentum,
		fv.EmissionGapToLeader, fv.EmissionGapNormalized, fv.GapClosingFeasibility,
		fv.Top3Tenure,
	}
}

// HasNaN reports whether any feature is NaN.
func (fv *FeatureVector) HasNaN() bool {
	return floats.HasNaN(fv.Values())
}
