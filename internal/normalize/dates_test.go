package normalize

import (
	"encoding/json"
	"testing"
	"time"
)

func fixedParser(now time.Time) *DateParser {
	p := NewDateParser(time.UTC)
	p.now = func() time.Time { return now }
	return p
}

func TestDateParser_SpaceAndISOAgree(t *testing.T) {
	p := NewDateParser(time.UTC)
	a := p.Parse("2024-01-05 10:00:00")
	b := p.Parse("2024-01-05T10:00:00")
	if !a.Equal(b) {
		t.Errorf("space form %v != ISO form %v", a, b)
	}
	want := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if !a.Equal(want) {
		t.Errorf("Parse() = %v, want %v", a, want)
	}
}

func TestDateParser_Formats(t *testing.T) {
	p := NewDateParser(time.UTC)
	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"rfc3339 zulu", "2024-03-01T08:30:00Z", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-03-01T10:30:00+02:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"space with offset", "2024-03-01 10:30:00+02:00", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"space no seconds", "2024-03-01 08:30", time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"fractional", "2024-03-01 08:30:00.250", time.Date(2024, 3, 1, 8, 30, 0, 250_000_000, time.UTC)},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"servicenow us", "03/01/2024 08:30:00 PM", time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)},
		{"epoch millis", float64(1709281800000), time.UnixMilli(1709281800000)},
		{"json number", json.Number("1709281800000"), time.UnixMilli(1709281800000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseStrict(tt.raw)
			if err != nil {
				t.Fatalf("ParseStrict(%v) error = %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseStrict(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDateParser_FallbackToNow(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	p := fixedParser(now)
	for _, raw := range []any{nil, "", "   ", "not a date", "2024-13-45 99:99:99", []string{"x"}} {
		if got := p.Parse(raw); !got.Equal(now) {
			t.Errorf("Parse(%v) = %v, want now", raw, got)
		}
	}
}

func TestDateParser_NullIsApproximatelyNow(t *testing.T) {
	p := NewDateParser(nil)
	before := time.Now()
	got := p.Parse(nil)
	if got.Before(before) || got.Sub(before) > time.Second {
		t.Errorf("Parse(nil) = %v, want ~%v", got, before)
	}
}

func TestDateParser_Location(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	p := NewDateParser(loc)
	got := p.Parse("2024-01-05 10:00:00")
	want := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse() in EST = %v, want %v", got.UTC(), want)
	}
}
