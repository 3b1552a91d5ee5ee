package history

import (
	"sort"
	"time"
)

// Sorted returns a copy of h ordered oldest first. Snapshots sharing a timestamp keep their input order.
func (h History) Sorted() History {
	out := make(History, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Oldest returns the earliest snapshot timestamp. h must be sorted.
func (h History) Oldest() time.Time {
	if len(h) == 0 {
		return time.Time{}
	}
	return h[0].Timestamp
}

// Newest returns the latest snapshot timestamp. h must be sorted.
func (h History) Newest() time.Time {
	if len(h) == 0 {
		return time.Time{}
	}
	return h[len(h)-1].Timestamp
}

// Until returns the snapshots taken at or before t, preserving order.
func (h History) Until(t time.Time) History {
	out := make(History, 0, len(h))
	for _, s := range h {
		if !s.Timestamp.After(t) {
			out = append(out, s)
		}
	}
	return out
}

// SnapshotAt returns the most recent snapshot taken at or before target. Snapshots after target are
// never returned, even when one is closer in time. Works on unsorted histories.
func (h History) SnapshotAt(target time.Time) (*Snapshot, bool) {
	var closest *Snapshot
	var minDiff time.Duration
	for i := range h {
		s := &h[i]
		if s.Timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.Timestamp)
		if closest == nil || diff < minDiff {
			closest = s
			minDiff = diff
		}
	}
	return closest, closest != nil
}

// RankAt returns the rank of subnet id in the snapshot selected by SnapshotAt.
// ok is false when there is no such snapshot or the subnet is not ranked in it.
func (h History) RankAt(id string, target time.Time) (int, bool) {
	s, ok := h.SnapshotAt(target)
	if !ok {
		return 0, false
	}
	e, ok := s.Entry(id)
	if !ok {
		return 0, false
	}
	return e.Rank, true
}

// SubnetIDs returns every subnet id that appears in h, in first-seen order.
func (h History) SubnetIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range h {
		for _, e := range s.Entries {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Merge combines two histories, deduplicating by timestamp. When both contain a snapshot for the
// same instant the one from incoming wins. The result is sorted oldest first.
func Merge(existing, incoming History) History {
	byTime := make(map[int64]Snapshot, len(existing)+len(incoming))
	for _, s := range existing {
		byTime[s.Timestamp.UnixNano()] = s
	}
	for _, s := range incoming {
		byTime[s.Timestamp.UnixNano()] = s
	}

	merged := make(History, 0, len(byTime))
	for _, s := range byTime {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	return merged
}
