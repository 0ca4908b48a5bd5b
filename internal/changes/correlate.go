// Package changes filters in-flight changes and flags the ones touching a
// service offering that currently has an active outage.
package changes

import (
	"sort"
	"strings"
	"time"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// inFlightStates are matched as case-insensitive substrings of the state text.
var inFlightStates = []string{"scheduled", "implement", "review"}

const cancelledState = "cancel"

// Correlate returns the changes that are in flight today, with IsHot set on
// those whose offering matches an active outage's offering. The result is
// sorted by start time with undated changes last. The input is not modified.
func Correlate(changes []models.Change, activeOutages []models.Outage, now time.Time) []models.Change {
	hot := offeringSet(activeOutages)
	dayStart, dayEnd := dayBounds(now)

	out := make([]models.Change, 0, len(changes))
	for _, c := range changes {
		if !InFlight(c.State) || !overlapsDay(c, dayStart, dayEnd) {
			continue
		}
		c.IsHot = false
		if key := offeringKey(c.Offering); key != "" {
			_, c.IsHot = hot[key]
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Start, out[j].Start
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}

// InFlight reports whether a change state is neither cancelled nor outside
// the allow-listed states.
func InFlight(state string) bool {
	s := strings.ToLower(state)
	if strings.Contains(s, cancelledState) {
		return false
	}
	for _, allowed := range inFlightStates {
		if strings.Contains(s, allowed) {
			return true
		}
	}
	return false
}

func offeringSet(outages []models.Outage) map[string]struct{} {
	set := make(map[string]struct{}, len(outages))
	for _, o := range outages {
		if key := offeringKey(o.Offering); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func offeringKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// overlapsDay keeps changes whose window touches today. Missing bounds are
// open ended and a change with no dates at all is always kept.
func overlapsDay(c models.Change, dayStart, dayEnd time.Time) bool {
	switch {
	case c.Start != nil && c.End != nil:
		return !c.Start.After(dayEnd) && !c.End.Before(dayStart)
	case c.Start != nil:
		return !c.Start.After(dayEnd)
	case c.End != nil:
		return !c.End.Before(dayStart)
	default:
		return true
	}
}
