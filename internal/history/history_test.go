package history

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

func snap(ts time.Time, ids ...string) Snapshot {
	s := Snapshot{Timestamp: ts}
	for i, id := range ids {
		s.Entries = append(s.Entries, RankEntry{Rank: i + 1, ID: id, Name: "SN" + id, Value: float64(100 - i*10)})
	}
	return s
}

func TestParseSnapshot(t *testing.T) {
	raw := []byte(`{"_timestamp": "2025-12-01T00:00:00+00:00", "entries": [
		{"rank": 2, "id": 4, "name": "Targon", "value": 120.5},
		{"rank": 1, "id": "64", "name": "Chutes", "value": 236.1}
	]}`)

	s, err := ParseSnapshot(raw)
	require.NoError(t, err)
	assert.True(t, s.Timestamp.Equal(t0))
	require.Len(t, s.Entries, 2)
	assert.Equal(t, RankEntry{Rank: 1, ID: "64", Name: "Chutes", Value: 236.1}, s.Entries[0])
	assert.Equal(t, "4", s.Entries[1].ID)

	leader, ok := s.Leader()
	require.True(t, ok)
	assert.Equal(t, "64", leader.ID)
}

func TestParseSnapshot_NetuidAlias(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "netuid": 12, "value": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, "12", s.Entries[0].ID)
}

func TestParseSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"missing timestamp", `{"entries": []}`, ErrMissingTimestamp},
		{"missing entries", `{"_timestamp": "2025-12-01T00:00:00Z"}`, ErrMissingEntries},
		{"bad timestamp", `{"_timestamp": "yesterday", "entries": []}`, ErrMalformedSnapshot},
		{"rank gap", `{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "id": "1"}, {"rank": 3, "id": "2"}]}`, ErrMalformedSnapshot},
		{"duplicate rank", `{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "id": "1"}, {"rank": 1, "id": "2"}]}`, ErrMalformedSnapshot},
		{"negative value", `{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "id": "1", "value": -1}]}`, ErrMalformedSnapshot},
		{"missing id", `{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1}]}`, ErrMalformedSnapshot},
		{"not json", `{`, ErrMalformedSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseTimestamp_Naive(t *testing.T) {
	ts, err := ParseTimestamp("2025-12-01T06:30:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(t0.Add(6*time.Hour+30*time.Minute)))

	ts, err = ParseTimestamp("2025-12-01T08:00:00+02:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(t0.Add(6*time.Hour)))
	assert.Equal(t, time.UTC, ts.Location())
}

func TestParseHistory_Shapes(t *testing.T) {
	items := `[{"_timestamp": "2025-12-02T00:00:00Z", "entries": [{"rank": 1, "id": "1"}]},
		{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "id": "2"}]}]`

	for name, raw := range map[string]string{
		"array":   items,
		"data":    `{"data": ` + items + `}`,
		"history": `{"history": ` + items + `}`,
	} {
		t.Run(name, func(t *testing.T) {
			h, err := ParseHistory([]byte(raw))
			require.NoError(t, err)
			require.Len(t, h, 2)
			assert.True(t, h[0].Timestamp.Before(h[1].Timestamp), "history must be sorted oldest first")
		})
	}
}

func TestParseHistory_MalformedSnapshotFailsLoudly(t *testing.T) {
	_, err := ParseHistory([]byte(`[{"_timestamp": "2025-12-01T00:00:00Z", "entries": []}, {"entries": []}]`))
	require.ErrorIs(t, err, ErrMissingTimestamp)
	assert.Contains(t, err.Error(), "snapshot 1")
}

func TestMarshalRoundTrip(t *testing.T) {
	h := History{snap(t0, "64", "4"), snap(t0.Add(time.Hour), "4", "64")}
	raw, err := Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"_timestamp":"2025-12-01T00:00:00+00:00"`)

	back, err := ParseHistory(raw)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, h[1].Entries, back[1].Entries)
	assert.True(t, back[1].Timestamp.Equal(h[1].Timestamp))
}

func TestTimestamp_JSON(t *testing.T) {
	raw, err := sonic.Marshal(struct {
		At   Timestamp `json:"at"`
		Zero Timestamp `json:"zero"`
	}{At: Timestamp{Time: t0.Add(90 * time.Minute)}})
	require.NoError(t, err)
	assert.Equal(t, `{"at":"2025-12-01T01:30:00+00:00","zero":null}`, string(raw))

	var back struct {
		At   Timestamp `json:"at"`
		Zero Timestamp `json:"zero"`
	}
	require.NoError(t, sonic.Unmarshal(raw, &back))
	assert.True(t, back.At.Equal(t0.Add(90*time.Minute)))
	assert.True(t, back.Zero.IsZero())

	var bad Timestamp
	assert.Error(t, bad.UnmarshalJSON([]byte(`"yesterday"`)))
}

func TestParseSnapshots_SingleObject(t *testing.T) {
	h, err := ParseSnapshots([]byte(`{"_timestamp": "2025-12-01T00:00:00Z", "entries": [{"rank": 1, "id": "1"}]}`))
	require.NoError(t, err)
	require.Len(t, h, 1)
}

func TestSnapshotAt_NeverReturnsLaterSnapshot(t *testing.T) {
	h := History{
		snap(t0, "a"),
		snap(t0.Add(10*time.Hour), "b"),
		// one minute after the target; closer than anything before it
		snap(t0.Add(12*time.Hour+time.Minute), "c"),
	}

	s, ok := h.SnapshotAt(t0.Add(12 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, "b", s.Entries[0].ID)

	_, ok = h.SnapshotAt(t0.Add(-time.Second))
	assert.False(t, ok)

	s, ok = h.SnapshotAt(t0)
	require.True(t, ok, "a snapshot exactly at the target counts")
	assert.Equal(t, "a", s.Entries[0].ID)
}

func TestSnapshotAt_Unsorted(t *testing.T) {
	h := History{snap(t0.Add(5*time.Hour), "late"), snap(t0, "early"), snap(t0.Add(3*time.Hour), "mid")}
	s, ok := h.SnapshotAt(t0.Add(4 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, "mid", s.Entries[0].ID)
}

func TestRankAt(t *testing.T) {
	h := History{snap(t0, "a", "b"), snap(t0.Add(time.Hour), "b", "a")}

	rank, ok := h.RankAt("a", t0.Add(90*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = h.RankAt("gone", t0.Add(time.Hour))
	assert.False(t, ok)
}

func TestUntilAndSubnetIDs(t *testing.T) {
	h := History{snap(t0, "a", "b"), snap(t0.Add(time.Hour), "c", "a"), snap(t0.Add(2*time.Hour), "d")}

	until := h.Until(t0.Add(time.Hour))
	assert.Len(t, until, 2)
	assert.Equal(t, []string{"a", "b", "c"}, until.SubnetIDs())
	assert.Len(t, h, 3, "Until must not modify the receiver")
}

func TestMerge(t *testing.T) {
	existing := History{snap(t0, "a"), snap(t0.Add(time.Hour), "a")}
	incoming := History{snap(t0.Add(time.Hour), "b"), snap(t0.Add(-time.Hour), "c")}

	merged := Merge(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, "c", merged[0].Entries[0].ID)
	assert.Equal(t, "a", merged[1].Entries[0].ID)
	assert.Equal(t, "b", merged[2].Entries[0].ID, "incoming wins on the same timestamp")
}
