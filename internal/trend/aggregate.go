// Package trend buckets outages into per-day series for the trend chart.
package trend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// Days is the fixed width of the trailing window.
const Days = 7

// LabelLayout formats bucket labels.
const LabelLayout = "Jan 2"

// GroupBy selects the series dimension.
type GroupBy string

const (
	GroupByImpact GroupBy = "impact"
	GroupBySystem GroupBy = "system"
)

// ParseGroupBy accepts the query parameter forms of GroupBy. Empty means impact.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GroupByImpact:
		return GroupByImpact, nil
	case GroupBySystem:
		return GroupBySystem, nil
	default:
		return "", fmt.Errorf("unsupported groupBy %q", s)
	}
}

// Bucket is one calendar day.
type Bucket struct {
	Label  string         `json:"label"`
	Date   time.Time      `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Series is the aggregation result. Every bucket has a count for every key.
type Series struct {
	GroupBy GroupBy  `json:"groupBy"`
	Keys    []string `json:"keys"`
	Buckets []Bucket `json:"buckets"`
}

// Aggregate buckets outages by start day over the Days calendar days ending
// today in now's location. Outages starting outside the window are ignored.
func Aggregate(outages []models.Outage, groupBy GroupBy, now time.Time) Series {
	loc := now.Location()
	today := startOfDay(now)
	first := today.AddDate(0, 0, -(Days - 1))

	buckets := make([]Bucket, Days)
	for i := range buckets {
		day := first.AddDate(0, 0, i)
		buckets[i] = Bucket{
			Label:  day.Format(LabelLayout),
			Date:   day,
			Counts: map[string]int{},
		}
	}

	seen := map[string]bool{}
	for _, o := range outages {
		idx := dayIndex(first, o.StartTime.In(loc))
		if idx < 0 || idx >= Days {
			continue
		}
		key := groupKey(o, groupBy)
		if key == "" {
			continue
		}
		buckets[idx].Counts[key]++
		seen[key] = true
	}

	keys := seriesKeys(groupBy, seen)
	for i := range buckets {
		for _, k := range keys {
			if _, ok := buckets[i].Counts[k]; !ok {
				buckets[i].Counts[k] = 0
			}
		}
	}

	return Series{GroupBy: groupBy, Keys: keys, Buckets: buckets}
}

func groupKey(o models.Outage, groupBy GroupBy) string {
	if groupBy == GroupBySystem {
		return strings.TrimSpace(o.SystemName)
	}
	return string(o.ImpactLevel)
}

// seriesKeys returns the fixed impact vocabulary followed by any stray values,
// or the sorted system names that have at least one count.
func seriesKeys(groupBy GroupBy, seen map[string]bool) []string {
	if groupBy == GroupBySystem {
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}

	keys := make([]string, 0, len(models.ImpactLevels))
	for _, l := range models.ImpactLevels {
		keys = append(keys, string(l))
	}
	var extra []string
	for k := range seen {
		if !models.IsImpactLevel(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayIndex counts calendar days from first to t. It compares dates rather
// than durations so DST transitions do not shift buckets.
func dayIndex(first, t time.Time) int {
	if t.Before(first) {
		return -1
	}
	y, m, d := t.Date()
	fy, fm, fd := first.Date()
	a := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	b := time.Date(fy, fm, fd, 12, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}
