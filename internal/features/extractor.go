package features

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/subnet-rankings/internal/history"
)

type observation struct {
	ts    time.Time
	rank  int
	name  string
	value float64
}

type leaderMark struct {
	ts    time.Time
	id    string
	value float64
}

// Extractor indexes a history window by subnet and computes FeatureVectors on demand.
// It never mutates the history it was built from.
type Extractor struct {
	lookbackDays int
	cutoff       time.Time
	params       Params

	bySubnet map[string][]observation
	order    []string
	// rank 1 observations across all subnets, sorted by time
	leaders []leaderMark
}

// NewExtractor builds the subnet and leader indexes for snapshots no older than
// newest snapshot - lookbackDays. The input does not need to be sorted.
func NewExtractor(h history.History, lookbackDays int, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		lookbackDays: lookbackDays,
		params:       DefaultParams(),
		bySubnet:     make(map[string][]observation),
	}
	for _, opt := range opts {
		opt(e)
	}

	sorted := h.Sorted()
	if len(sorted) == 0 {
		e.cutoff = time.Now().UTC()
		return e
	}
	e.cutoff = sorted.Newest().AddDate(0, 0, -lookbackDays)

	for _, snap := range sorted {
		if snap.Timestamp.Before(e.cutoff) {
			continue
		}
		for _, entry := range snap.Entries {
			if _, ok := e.bySubnet[entry.ID]; !ok {
				e.order = append(e.order, entry.ID)
			}
			e.bySubnet[entry.ID] = append(e.bySubnet[entry.ID], observation{
				ts:    snap.Timestamp,
				rank:  entry.Rank,
				name:  entry.Name,
				value: entry.Value,
			})
			if entry.Rank == 1 {
				e.leaders = append(e.leaders, leaderMark{ts: snap.Timestamp, id: entry.ID, value: entry.Value})
			}
		}
	}

	log.Debug().
		Int("lookback_days", lookbackDays).
		Time("cutoff", e.cutoff).
		Int("subnets", len(e.order)).
		Int("leader_marks", len(e.leaders)).
		Msg("built feature extractor index")

	return e
}

// SubnetIDs returns every subnet id observed in the lookback window, in first-seen order.
func (e *Extractor) SubnetIDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Cutoff is the oldest instant included in the window.
func (e *Extractor) Cutoff() time.Time {
	return e.cutoff
}

// ExtractFeatures returns nil when the subnet has fewer than MinObservations observations in the window.
func (e *Extractor) ExtractFeatures(subnetID string) *FeatureVector {
	obs := e.bySubnet[subnetID]
	if len(obs) < e.params.MinObservations {
		return nil
	}

	current := obs[len(obs)-1]
	fv := &FeatureVector{
		SubnetID:        subnetID,
		SubnetName:      current.name,
		CurrentRank:     current.rank,
		CurrentEmission: current.value,
		Observations:    len(obs),
	}

	// gap features read the 7d emission trend, so emission features go first
	e.rankFeatures(obs, fv)
	e.emissionFeatures(obs, fv)
	e.gapFeatures(obs, fv)
	e.tenureFeatures(obs, fv)

	return fv
}

// ExtractAll returns feature vectors for every subnet that passes the sufficiency gate.
func (e *Extractor) ExtractAll() map[string]*FeatureVector {
	out := make(map[string]*FeatureVector, len(e.order))
	for _, id := range e.order {
		if fv := e.ExtractFeatures(id); fv != nil {
			out[id] = fv
		}
	}
	return out
}

// leaderNear returns the rank 1 observation closest to t, if one lies within the tolerance.
func (e *Extractor) leaderNear(t time.Time) (leaderMark, bool) {
	i := sort.Search(len(e.leaders), func(i int) bool { return !e.leaders[i].ts.Before(t) })

	best := -1
	var bestDiff time.Duration
	for _, idx := range []int{i - 1, i} {
		if idx < 0 || idx >= len(e.leaders) {
			continue
		}
		diff := e.leaders[idx].ts.Sub(t).Abs()
		if best == -1 || diff < bestDiff {
			best, bestDiff = idx, diff
		}
	}
	if best == -1 || bestDiff >= e.params.LeaderTolerance {
		return leaderMark{}, false
	}
	return e.leaders[best], true
}

// trailingWindow returns the observations within TrendWindowDays whole days of the latest one.
func (e *Extractor) trailingWindow(obs []observation) []observation {
	latest := obs[len(obs)-1].ts
	start := len(obs)
	for i := len(obs) - 1; i >= 0; i-- {
		wholeDays := int(latest.Sub(obs[i].ts) / (24 * time.Hour))
		if wholeDays > e.params.TrendWindowDays {
			break
		}
		start = i
	}
	return obs[start:]
}
