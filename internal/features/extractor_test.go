package features

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/subnet-rankings/internal/history"
)

var t0 = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

type entry struct {
	id    string
	value float64
}

// rankedSnapshot ranks entries by value, highest first.
func rankedSnapshot(ts time.Time, entries ...entry) history.Snapshot {
	s := history.Snapshot{Timestamp: ts}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].value > entries[j].value })
	for i, e := range entries {
		s.Entries = append(s.Entries, history.RankEntry{Rank: i + 1, ID: e.id, Name: "SN" + e.id, Value: e.value})
	}
	return s
}

func TestExtractFeatures_SufficiencyGate(t *testing.T) {
	// "lead" is in every snapshot; "sparse" only in the first n
	for n := 0; n <= 3; n++ {
		var h history.History
		for i := 0; i < 5; i++ {
			entries := []entry{{"lead", 300}}
			if i < n {
				entries = append(entries, entry{"sparse", 100})
			}
			h = append(h, rankedSnapshot(t0.Add(time.Duration(i)*time.Hour), entries...))
		}

		fv := NewExtractor(h, 28).ExtractFeatures("sparse")
		if n < 3 {
			assert.Nil(t, fv, "expected nil for %d observations", n)
		} else {
			require.NotNil(t, fv, "expected features for exactly 3 observations")
			assert.Equal(t, 3, fv.Observations)
		}
	}
}

func TestExtractFeatures_LeaderGap(t *testing.T) {
	var h history.History
	for i := 0; i < 4; i++ {
		h = append(h, rankedSnapshot(t0.Add(time.Duration(i)*time.Hour), entry{"64", 236}, entry{"4", 200}))
	}
	e := NewExtractor(h, 28)

	leader := e.ExtractFeatures("64")
	require.NotNil(t, leader)
	assert.Equal(t, 1, leader.CurrentRank)
	assert.Equal(t, 0.0, leader.EmissionGapToLeader)
	assert.Equal(t, 1.0, leader.EmissionGapNormalized)
	assert.Equal(t, 1.0, leader.GapClosingFeasibility)
	assert.Equal(t, 1.0, leader.Rank1Frequency)

	second := e.ExtractFeatures("4")
	require.NotNil(t, second)
	assert.InDelta(t, 36, second.EmissionGapToLeader, 1e-9)
	assert.InDelta(t, math.Exp(-36.0/50), second.EmissionGapNormalized, 1e-9)
	// flat emission cannot close the gap
	assert.Equal(t, 0.0, second.GapClosingFeasibility)
}

func TestExtractFeatures_NoLeaderNearUsesDefaultGap(t *testing.T) {
	h := history.History{
		rankedSnapshot(t0, entry{"lead", 300}, entry{"x", 100}),
		rankedSnapshot(t0.Add(time.Hour), entry{"lead", 300}, entry{"x", 100}),
		{Timestamp: t0.Add(3 * time.Hour), Entries: []history.RankEntry{{Rank: 2, ID: "x", Value: 100}, {Rank: 1, ID: "lead", Value: 0}}},
	}
	// the only leader mark near x's latest timestamp has a zero value, which counts as no leader
	fv := NewExtractor(h, 28, WithDefaultLeaderGap(42)).ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.Equal(t, 42.0, fv.EmissionGapToLeader)
	assert.Equal(t, 0.0, fv.EmissionGapNormalized)
}

func TestExtractFeatures_LeaderToleranceIsStrict(t *testing.T) {
	h := history.History{
		rankedSnapshot(t0, entry{"lead", 300}, entry{"x", 100}),
		rankedSnapshot(t0.Add(time.Hour), entry{"lead", 300}, entry{"x", 100}),
		// x is alone exactly one hour after the last leader mark
		{Timestamp: t0.Add(2 * time.Hour), Entries: []history.RankEntry{{Rank: 2, ID: "x", Value: 100}}},
	}
	fv := NewExtractor(h, 28).ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.Equal(t, DefaultParams().DefaultLeaderGap, fv.EmissionGapToLeader)
}

func TestExtractFeatures_RankAndEmissionDynamics(t *testing.T) {
	values := []float64{100, 150, 250, 400}
	var h history.History
	for i, v := range values {
		h = append(h, rankedSnapshot(t0.Add(time.Duration(i)*time.Hour), entry{"a", 300}, entry{"b", 200}, entry{"x", v}))
	}
	fv := NewExtractor(h, 28).ExtractFeatures("x")
	require.NotNil(t, fv)

	// ranks: 3, 3, 2, 1
	assert.Equal(t, 1, fv.CurrentRank)
	assert.Equal(t, 1, fv.RankDeltaRecent)
	assert.Equal(t, 2, fv.RankDelta7d)
	assert.InDelta(t, 0.25, fv.Rank1Frequency, 1e-9)
	assert.InDelta(t, 2.25, fv.AvgRank, 1e-9)

	assert.InDelta(t, 400.0/7200*100, fv.EmissionShareCurrent, 1e-9)
	assert.InDelta(t, 60, fv.EmissionPctChangeRecent, 1e-9)
	assert.InDelta(t, 300, fv.EmissionPctChange7d, 1e-9)
	// recent change minus the change between the 4th and 3rd most recent observations
	assert.InDelta(t, 60-50, fv.EmissionMomentum, 1e-9)
	assert.Greater(t, fv.EmissionVolatility, 0.0)
	assert.InDelta(t, 1/(1+fv.EmissionVolatility), fv.ShareStability, 1e-12)
	assert.False(t, fv.HasNaN())
}

func TestExtractFeatures_MomentumNeedsFourObservations(t *testing.T) {
	var h history.History
	for i, v := range []float64{100, 150, 250} {
		h = append(h, rankedSnapshot(t0.Add(time.Duration(i)*time.Hour), entry{"a", 300}, entry{"x", v}))
	}
	fv := NewExtractor(h, 28).ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.Equal(t, 0.0, fv.EmissionMomentum)
}

func TestExtractFeatures_SevenDayFallsBackToRecent(t *testing.T) {
	h := history.History{
		rankedSnapshot(t0, entry{"a", 300}, entry{"b", 200}, entry{"x", 100}),
		rankedSnapshot(t0.Add(24*time.Hour), entry{"a", 300}, entry{"b", 200}, entry{"x", 100}),
		// ten days later: nothing else falls in the trailing 7 day window
		rankedSnapshot(t0.Add(11*24*time.Hour), entry{"a", 300}, entry{"x", 250}, entry{"b", 200}),
	}
	fv := NewExtractor(h, 28).ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.Equal(t, 1, fv.RankDeltaRecent)
	assert.Equal(t, fv.RankDeltaRecent, fv.RankDelta7d)
	assert.InDelta(t, fv.EmissionPctChangeRecent, fv.EmissionPctChange7d, 1e-12)
}

func TestExtractFeatures_Top3TenureCountsDistinctDays(t *testing.T) {
	var h history.History
	// 24 hourly snapshots per day for 3 days in the top 3, then 2 days outside it
	for d := 0; d < 5; d++ {
		for hr := 0; hr < 24; hr++ {
			ts := t0.Add(time.Duration(d*24+hr) * time.Hour)
			if d < 3 {
				h = append(h, rankedSnapshot(ts, entry{"a", 300}, entry{"x", 250}, entry{"b", 200}, entry{"c", 100}))
			} else {
				h = append(h, rankedSnapshot(ts, entry{"a", 300}, entry{"b", 200}, entry{"c", 100}, entry{"x", 50}))
			}
		}
	}
	fv := NewExtractor(h, 28).ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.InDelta(t, 3.0/14, fv.Top3Tenure, 1e-12)

	fv = NewExtractor(h, 28).ExtractFeatures("a")
	require.NotNil(t, fv)
	assert.InDelta(t, 5.0/14, fv.Top3Tenure, 1e-12)
}

func TestNewExtractor_LookbackCutoff(t *testing.T) {
	var h history.History
	for d := 0; d < 40; d++ {
		h = append(h, rankedSnapshot(t0.AddDate(0, 0, d), entry{"a", 300}, entry{"x", 100}))
	}
	// shuffle the order; the extractor sorts
	h[0], h[39] = h[39], h[0]

	e := NewExtractor(h, 28)
	assert.True(t, e.Cutoff().Equal(t0.AddDate(0, 0, 39-28)))

	fv := e.ExtractFeatures("x")
	require.NotNil(t, fv)
	assert.Equal(t, 29, fv.Observations)
	assert.Equal(t, []string{"a", "x"}, e.SubnetIDs())
	assert.Len(t, e.ExtractAll(), 2)
}

func TestGapClosingFeasibility(t *testing.T) {
	e := NewExtractor(nil, 28)
	// 7% over 7 days on 100/day is 1/day of growth
	tests := []struct {
		gap, current, trend, want float64
	}{
		{0, 100, 0, 1},
		{10, 100, 7, 1},     // 10 days to close
		{15, 100, 7, 1},     // at the feasible bound
		{37.5, 100, 7, 0.5}, // halfway along the ramp
		{60, 100, 7, 0},     // at the infeasible bound
		{90, 100, 7, 0},
		{10, 100, -3, 0},
		{10, 0, 7, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, e.gapClosingFeasibility(tt.gap, tt.current, tt.trend), 1e-9,
			"gap=%v current=%v trend=%v", tt.gap, tt.current, tt.trend)
	}
}
