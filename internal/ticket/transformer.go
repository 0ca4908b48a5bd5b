// Package ticket turns dashboard ticket requests into ServiceNow incident
// payloads.
package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// maxShortDescription is the ServiceNow short_description limit.
const maxShortDescription = 160

// Defaults are the static incident fields applied to every ticket.
type Defaults struct {
	Category        string `yaml:"category"`
	AssignmentGroup string `yaml:"assignmentGroup"`
	CallerID        string `yaml:"callerId"`
	Urgency         string `yaml:"urgency"`
}

// Input is a ticket request from the dashboard. It usually originates from
// a monitoring alert or an outage card.
type Input struct {
	Summary     string            `json:"summary" binding:"required"`
	Details     string            `json:"details"`
	System      string            `json:"system"`
	ImpactLevel string            `json:"impactLevel" binding:"omitempty,oneof=Outage Degradation Informational"`
	AlertID     string            `json:"alertId"`
	AlertType   string            `json:"alertType"`
	Severity    string            `json:"severity"`
	DetectedAt  *time.Time        `json:"detectedAt"`
	Labels      map[string]string `json:"labels"`
}

// impactCodes maps canonical impact levels to ServiceNow impact values.
var impactCodes = map[string]string{
	string(models.ImpactOutage):        "1",
	string(models.ImpactDegradation):   "2",
	string(models.ImpactInformational): "3",
}

// Transformer converts dashboard ticket requests to ServiceNow incidents.
type Transformer struct {
	defaults Defaults
}

// NewTransformer creates a new Transformer with the given defaults.
func NewTransformer(defaults Defaults) *Transformer {
	return &Transformer{defaults: defaults}
}

// Transform converts a ticket request to a ServiceNow incident payload.
func (t *Transformer) Transform(in Input) models.ServiceNowIncident {
	impact := impactCodes[in.ImpactLevel]
	if impact == "" {
		impact = impactCodes[string(models.ImpactDegradation)]
	}

	return models.ServiceNowIncident{
		ShortDescription: buildShortDescription(in.System, in.Summary),
		Description:      buildDescription(in),
		Impact:           impact,
		Urgency:          t.defaults.Urgency,
		Category:         t.defaults.Category,
		AssignmentGroup:  t.defaults.AssignmentGroup,
		CallerID:         t.defaults.CallerID,
		ConfigItem:       strings.TrimSpace(in.System),
		CorrelationID:    CorrelationID(in),
	}
}

// buildShortDescription creates the short_description field, truncated to
// what ServiceNow accepts.
func buildShortDescription(system, summary string) string {
	summary = strings.TrimSpace(summary)
	desc := summary
	if system = strings.TrimSpace(system); system != "" {
		desc = fmt.Sprintf("[%s] %s", system, summary)
	}
	if r := []rune(desc); len(r) > maxShortDescription {
		desc = string(r[:maxShortDescription-1]) + "…"
	}
	return desc
}

// buildDescription creates the detailed description field.
func buildDescription(in Input) string {
	var b strings.Builder

	if in.System != "" {
		b.WriteString(fmt.Sprintf("Affected System: %s\n", in.System))
	}
	if in.ImpactLevel != "" {
		b.WriteString(fmt.Sprintf("Impact: %s\n", in.ImpactLevel))
	}
	if in.AlertID != "" {
		b.WriteString(fmt.Sprintf("Alert: %s", in.AlertID))
		if in.AlertType != "" {
			b.WriteString(fmt.Sprintf(" (%s)", in.AlertType))
		}
		b.WriteString("\n")
	}
	if in.Severity != "" {
		b.WriteString(fmt.Sprintf("Severity: %s\n", in.Severity))
	}
	if in.DetectedAt != nil {
		b.WriteString(fmt.Sprintf("Detected At: %s\n", in.DetectedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	}

	if details := strings.TrimSpace(in.Details); details != "" {
		b.WriteString(fmt.Sprintf("\nDetails:\n%s\n", details))
	}

	if len(in.Labels) > 0 {
		b.WriteString("\nLabels:\n")
		keys := make([]string, 0, len(in.Labels))
		for k := range in.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  %s: %s\n", k, in.Labels[k]))
		}
	}

	b.WriteString("\nRaised from the operations status dashboard.\n")
	return b.String()
}

// CorrelationID derives a deterministic id so the same alert always maps to
// the same ticket. Requests without an alert id hash their summary and system.
func CorrelationID(in Input) string {
	var b strings.Builder
	if in.AlertID != "" {
		b.WriteString("alert:")
		b.WriteString(in.AlertID)
	} else {
		b.WriteString(strings.ToLower(strings.TrimSpace(in.System)))
		b.WriteString("|")
		b.WriteString(strings.ToLower(strings.TrimSpace(in.Summary)))
	}

	keys := make([]string, 0, len(in.Labels))
	for k := range in.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(in.Labels[k])
	}

	// SHA256 hash, truncate to 16 hex chars (8 bytes)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:8])
}
