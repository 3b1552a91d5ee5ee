package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// timestampLayout is the format written back to storage. It matches Python's isoformat() for UTC.
const timestampLayout = "2006-01-02T15:04:05.999999-07:00"

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type rawEntry struct {
	Rank   *int            `json:"rank"`
	ID     json.RawMessage `json:"id"`
	Netuid json.RawMessage `json:"netuid"`
	Name   string          `json:"name"`
	Value  *float64        `json:"value"`
}

type rawSnapshot struct {
	Timestamp *string     `json:"_timestamp"`
	Entries   *[]rawEntry `json:"entries"`
}

// ParseTimestamp parses the ISO-8601 timestamps found in stored history. Timestamps without an
// offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// FormatTimestamp renders t the way the collectors write `_timestamp`.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Timestamp is a time that encodes with FormatTimestamp, so documents other than history carry
// the same `+00:00` form. The zero time encodes as null.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(FormatTimestamp(t.Time))), nil
}

func (t *Timestamp) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseSnapshot converts one raw JSON snapshot into a Snapshot. It is the only place that
// tolerates the shape drift of upstream collectors (numeric vs string ids, netuid alias).
func ParseSnapshot(raw []byte) (Snapshot, error) {
	var rs rawSnapshot
	if err := sonic.Unmarshal(raw, &rs); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return rs.toSnapshot()
}

func (rs rawSnapshot) toSnapshot() (Snapshot, error) {
	if rs.Timestamp == nil || *rs.Timestamp == "" {
		return Snapshot{}, ErrMissingTimestamp
	}
	if rs.Entries == nil {
		return Snapshot{}, ErrMissingEntries
	}

	ts, err := ParseTimestamp(*rs.Timestamp)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	entries := make([]RankEntry, 0, len(*rs.Entries))
	for i, re := range *rs.Entries {
		id, err := normalizeID(re.ID, re.Netuid)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
		}
		if re.Rank == nil {
			return Snapshot{}, fmt.Errorf("%w: entry %d (id %s) missing rank", ErrMalformedSnapshot, i, id)
		}
		var value float64
		if re.Value != nil {
			value = *re.Value
		}
		if value < 0 {
			return Snapshot{}, fmt.Errorf("%w: entry %d (id %s) has negative value", ErrMalformedSnapshot, i, id)
		}
		entries = append(entries, RankEntry{Rank: *re.Rank, ID: id, Name: re.Name, Value: value})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	for i, e := range entries {
		if e.Rank != i+1 {
			return Snapshot{}, fmt.Errorf("%w: ranks must be 1..%d without gaps, got %d at position %d",
				ErrMalformedSnapshot, len(entries), e.Rank, i+1)
		}
	}

	return Snapshot{Timestamp: ts, Entries: entries}, nil
}

func normalizeID(id, netuid json.RawMessage) (string, error) {
	raw := id
	if len(raw) == 0 || string(raw) == "null" {
		raw = netuid
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing id")
	}

	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty id")
		}
		return s, nil
	}

	var f float64
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("id %s is neither string nor number", string(raw))
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// ParseHistory parses a stored history document. Accepted shapes are a bare JSON array,
// {"data": [...]} and {"history": [...]}. The result is sorted oldest first.
func ParseHistory(raw []byte) (History, error) {
	var items []json.RawMessage
	if err := sonic.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Data    []json.RawMessage `json:"data"`
			History []json.RawMessage `json:"history"`
		}
		if werr := sonic.Unmarshal(raw, &wrapped); werr != nil {
			return nil, fmt.Errorf("parse history: %w", err)
		}
		switch {
		case wrapped.Data != nil:
			items = wrapped.Data
		case wrapped.History != nil:
			items = wrapped.History
		default:
			return nil, fmt.Errorf("parse history: document has no array, data or history field")
		}
	}

	h := make(History, 0, len(items))
	for i, item := range items {
		s, err := ParseSnapshot(item)
		if err != nil {
			return nil, fmt.Errorf("parse history snapshot %d: %w", i, err)
		}
		h = append(h, s)
	}
	return h.Sorted(), nil
}

// ParseSnapshots accepts either a single snapshot object or an array of snapshots.
func ParseSnapshots(raw []byte) (History, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var probe map[string]json.RawMessage
		if err := sonic.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("parse snapshots: %w", err)
		}
		if _, ok := probe["_timestamp"]; ok {
			s, err := ParseSnapshot(raw)
			if err != nil {
				return nil, err
			}
			return History{s}, nil
		}
	}
	return ParseHistory(raw)
}

type wireSnapshot struct {
	Timestamp string      `json:"_timestamp"`
	Entries   []RankEntry `json:"entries"`
}

// MarshalJSON writes the `_timestamp` + `entries` wire shape.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(wireSnapshot{Timestamp: FormatTimestamp(s.Timestamp), Entries: s.Entries})
}

// UnmarshalJSON goes through ParseSnapshot so decoding a Snapshot anywhere enforces the same contract.
func (s *Snapshot) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseSnapshot(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Marshal encodes the history as a JSON array in the stored wire format.
func Marshal(h History) ([]byte, error) {
	if h == nil {
		h = History{}
	}
	return sonic.Marshal([]Snapshot(h))
}
