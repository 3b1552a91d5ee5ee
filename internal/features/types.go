// Package features turns ranking history into per-subnet feature vectors for the rank model.
package features

import "time"

// FeatureVector is computed fresh per prediction run for one subnet over one lookback window.
type FeatureVector struct {
	SubnetID        string  `json:"subnet_id"`
	SubnetName      string  `json:"subnet_name"`
	CurrentRank     int     `json:"current_rank"`
	CurrentEmission float64 `json:"current_emission"`
	Observations    int     `json:"observations"`

	// rank dynamics; positive deltas mean the subnet moved toward #1
	RankDeltaRecent int     `json:"rank_delta_recent"`
	RankDelta7d     int     `json:"rank_delta_7d"`
	Rank1Frequency  float64 `json:"rank1_frequency"`
	RankStability   float64 `json:"rank_stability"`
	AvgRank         float64 `json:"avg_rank"`

	// emission dynamics
	EmissionShareCurrent    float64 `json:"emission_share_current"`
	EmissionPctChangeRecent float64 `json:"emission_pct_change_recent"`
	EmissionPctChange7d     float64 `json:"emission_pct_change_7d"`
	EmissionVolatility      float64 `json:"emission_volatility"`
	ShareStability          float64 `json:"share_stability"`
	EmissionMomentum        float64 `json:"emission_momentum"`

	// gap to the rank 1 subnet
	EmissionGapToLeader   float64 `json:"emission_gap_to_leader"`
	EmissionGapNormalized float64 `json:"emission_gap_normalized"`
	GapClosingFeasibility float64 `json:"gap_closing_feasibility"`

	Top3Tenure float64 `json:"top3_tenure"`
}

// Params are the domain constants of feature extraction.
type Params struct {
	// TotalDailyEmission is the network-wide daily issuance used to turn a value into a share.
	TotalDailyEmission float64

	// DefaultLeaderGap is used when no leader observation is found near the subnet's latest timestamp.
	DefaultLeaderGap float64

	// GapScale is the decay scale of exp(-gap/GapScale).
	GapScale float64

	// LeaderTolerance is how far from the subnet's latest timestamp a leader observation may be.
	LeaderTolerance time.Duration

	// TrendWindowDays is the trailing window for the *_7d features.
	TrendWindowDays int

	// TenureDays is the number of distinct top-3 days that saturates top3_tenure.
	TenureDays float64

	// FeasibleDays and InfeasibleDays bound the linear days-to-close ramp.
	FeasibleDays   float64
	InfeasibleDays float64

	MinObservations int
}

func DefaultParams() Params {
	return Params{
		TotalDailyEmission: 7200,
		DefaultLeaderGap:   100,
		GapScale:           50,
		LeaderTolerance:    time.Hour,
		TrendWindowDays:    7,
		TenureDays:         14,
		FeasibleDays:       15,
		InfeasibleDays:     60,
		MinObservations:    3,
	}
}

type ExtractorOption func(*Extractor)

func WithParams(p Params) ExtractorOption {
	return func(e *Extractor) {
		e.params = p
	}
}

func WithDefaultLeaderGap(gap float64) ExtractorOption {
	return func(e *Extractor) {
		e.params.DefaultLeaderGap = gap
	}
}

func WithTotalDailyEmission(total float64) ExtractorOption {
	return func(e *Extractor) {
		e.params.TotalDailyEmission = total
	}
}
