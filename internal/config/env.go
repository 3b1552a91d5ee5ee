package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTargetDaysAhead = 30

var targetDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTargetDate(s string) (time.Time, error) {
	for _, layout := range targetDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid target date %q", s)
}

// ParseTargetDates parses the comma separated PREDICTION_TARGET_DATES value. Invalid entries are
// skipped with a warning; when nothing valid remains the default of now+30 days is returned.
func ParseTargetDates(raw string, now time.Time) []time.Time {
	var dates []time.Time
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := parseTargetDate(part)
		if err != nil {
			log.Warn().Str("value", part).Msg("invalid prediction target date, skipping")
			continue
		}
		dates = append(dates, t)
	}

	if len(dates) == 0 {
		return []time.Time{now.UTC().AddDate(0, 0, defaultTargetDaysAhead)}
	}
	return dates
}
