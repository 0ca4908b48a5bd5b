package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FallbackPolicy controls what happens when a date cannot be parsed.
type FallbackPolicy string

const (
	// FallbackNow silently substitutes the current time.
	FallbackNow FallbackPolicy = "now"
	// FallbackWarn substitutes the current time and reports the field.
	FallbackWarn FallbackPolicy = "warn"
)

// ErrEmptyDate is returned by ParseStrict for null or blank input.
var ErrEmptyDate = errors.New("empty date value")

// spaceSeparated matches "YYYY-MM-DD HH:MM[:SS]" so it can be rewritten to
// the ISO form.
var spaceSeparated = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}(:\d{2}(\.\d+)?)?)`)

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
	time.RFC1123Z,
	time.RFC1123,
}

// DateParser turns heterogeneous timestamps into instants.
type DateParser struct {
	now func() time.Time
	loc *time.Location
}

// NewDateParser returns a parser that interprets zone-less values in loc.
// A nil loc means UTC.
func NewDateParser(loc *time.Location) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{now: time.Now, loc: loc}
}

// Parse never fails: null, empty or unparseable input yields the current time.
func (p *DateParser) Parse(raw any) time.Time {
	t, err := p.ParseStrict(raw)
	if err != nil {
		return p.now()
	}
	return t
}

// ParseStrict parses raw or reports why it could not. Numbers are epoch
// milliseconds.
func (p *DateParser) ParseStrict(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, ErrEmptyDate
	case time.Time:
		return v, nil
	case float64:
		return time.UnixMilli(int64(v)), nil
	case int64:
		return time.UnixMilli(v), nil
	case int:
		return time.UnixMilli(int64(v)), nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("parse epoch %q: %w", v, err)
		}
		return time.UnixMilli(ms), nil
	case string:
		return p.parseString(v)
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", raw)
	}
}

func (p *DateParser) parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyDate
	}
	s = spaceSeparated.ReplaceAllString(s, "${1}T${2}")
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
