package ticket

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestCorrelationID(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		wantLen int
	}{
		{
			name:    "from alert",
			in:      Input{AlertID: "a-1", Labels: map[string]string{"host": "db01"}},
			wantLen: 16,
		},
		{
			name:    "from summary",
			in:      Input{Summary: "Checkout failing", System: "Payments"},
			wantLen: 16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CorrelationID(tt.in)
			if len(got) != tt.wantLen {
				t.Errorf("CorrelationID() length = %v, want %v", len(got), tt.wantLen)
			}
		})
	}
}

func TestCorrelationID_Deterministic(t *testing.T) {
	in := Input{
		AlertID: "a-1",
		Labels:  map[string]string{"host": "db01", "env": "prod", "team": "payments"},
	}

	if CorrelationID(in) != CorrelationID(in) {
		t.Error("CorrelationID() not deterministic")
	}

	// Summary casing and padding do not matter without an alert id.
	a := CorrelationID(Input{Summary: "Checkout failing", System: "Payments"})
	b := CorrelationID(Input{Summary: " checkout FAILING ", System: "payments"})
	if a != b {
		t.Errorf("CorrelationID() = %s and %s, want equal", a, b)
	}
}

func TestCorrelationID_DifferentAlerts(t *testing.T) {
	id1 := CorrelationID(Input{AlertID: "a-1"})
	id2 := CorrelationID(Input{AlertID: "a-2"})

	if id1 == id2 {
		t.Error("CorrelationID() should produce different IDs for different alerts")
	}
}

func TestTransformer_Transform(t *testing.T) {
	transformer := NewTransformer(Defaults{
		Category:        "software",
		AssignmentGroup: "sre-oncall",
		CallerID:        "opsstatus",
		Urgency:         "2",
	})
	detected := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	incident := transformer.Transform(Input{
		Summary:     "Checkout returning 502",
		Details:     "Error rate above 20% for 10 minutes",
		System:      "Payments",
		ImpactLevel: "Outage",
		AlertID:     "a-77",
		AlertType:   "HighErrorRate",
		Severity:    "Critical",
		DetectedAt:  &detected,
		Labels:      map[string]string{"region": "eu-west-1", "env": "prod"},
	})

	if incident.ShortDescription != "[Payments] Checkout returning 502" {
		t.Errorf("ShortDescription = %q", incident.ShortDescription)
	}
	if incident.Impact != "1" {
		t.Errorf("Impact = %q, want 1", incident.Impact)
	}
	if incident.Category != "software" || incident.AssignmentGroup != "sre-oncall" || incident.CallerID != "opsstatus" || incident.Urgency != "2" {
		t.Errorf("defaults not applied: %+v", incident)
	}
	if incident.ConfigItem != "Payments" {
		t.Errorf("ConfigItem = %q", incident.ConfigItem)
	}
	if incident.CorrelationID == "" {
		t.Error("CorrelationID should not be empty")
	}

	expectedParts := []string{
		"Affected System: Payments",
		"Impact: Outage",
		"Alert: a-77 (HighErrorRate)",
		"Severity: Critical",
		"Detected At: 2026-10-16 09:30:00 UTC",
		"Error rate above 20% for 10 minutes",
		"  env: prod\n  region: eu-west-1",
	}
	for _, part := range expectedParts {
		if !strings.Contains(incident.Description, part) {
			t.Errorf("Description missing %q", part)
		}
	}
}

func TestTransformer_Transform_Minimal(t *testing.T) {
	incident := NewTransformer(Defaults{}).Transform(Input{Summary: "Something is off"})

	if incident.ShortDescription != "Something is off" {
		t.Errorf("ShortDescription = %q", incident.ShortDescription)
	}
	if incident.Impact != "2" {
		t.Errorf("Impact = %q, want the degradation default", incident.Impact)
	}
	if strings.Contains(incident.Description, "Labels:") {
		t.Error("Description should not list labels when there are none")
	}
}

func TestBuildShortDescription_Truncates(t *testing.T) {
	got := buildShortDescription("Payments", strings.Repeat("x", 300))
	if n := utf8.RuneCountInString(got); n != maxShortDescription {
		t.Errorf("length = %d, want %d", n, maxShortDescription)
	}
}
