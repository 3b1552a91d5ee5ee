// Package history holds the ranking snapshot time series consumed by the forecaster.
package history

import (
	"errors"
	"time"
)

var (
	ErrMissingTimestamp  = errors.New("snapshot missing _timestamp")
	ErrMissingEntries    = errors.New("snapshot missing entries")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// RankEntry is one subnet's standing within a snapshot.
type RankEntry struct {
	Rank  int     `json:"rank"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"` // daily emission in TAO
}

// Snapshot is a single point-in-time ranking observation. Entries are ordered by rank ascending.
type Snapshot struct {
	Timestamp time.Time   `json:"-"`
	Entries   []RankEntry `json:"entries"`
}

// Leader returns the rank 1 entry, if any.
func (s *Snapshot) Leader() (RankEntry, bool) {
	for _, e := range s.Entries {
		if e.Rank == 1 {
			return e, true
		}
	}
	return RankEntry{}, false
}

// Entry returns the entry for the given subnet id.
func (s *Snapshot) Entry(id string) (RankEntry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return RankEntry{}, false
}

// History is an ordered-by-time sequence of snapshots, oldest first once sorted.
// It is treated as read-only by every consumer.
type History []Snapshot
