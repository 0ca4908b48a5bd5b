// Package models holds the canonical records exposed to the dashboard and the
// configuration records that drive normalization.
package models

import "time"

// ImpactLevel is the canonical outage impact vocabulary.
type ImpactLevel string

const (
	ImpactOutage        ImpactLevel = "Outage"
	ImpactDegradation   ImpactLevel = "Degradation"
	ImpactInformational ImpactLevel = "Informational"
)

// ImpactLevels lists the canonical impact vocabulary in display order.
var ImpactLevels = []ImpactLevel{ImpactOutage, ImpactDegradation, ImpactInformational}

// IsImpactLevel reports whether s is a canonical impact value.
func IsImpactLevel(s string) bool {
	for _, l := range ImpactLevels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Severity is the canonical monitoring alert severity.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityInfo     Severity = "Info"
)

// Severities lists the canonical severity vocabulary.
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo}

// IsSeverity reports whether s is a canonical severity value.
func IsSeverity(s string) bool {
	for _, v := range Severities {
		if string(v) == s {
			return true
		}
	}
	return false
}

// Outage is a canonical, fully populated outage record.
type Outage struct {
	ID          string      `json:"id"`
	SystemName  string      `json:"systemName"`
	ImpactLevel ImpactLevel `json:"impactLevel"`
	StartTime   time.Time   `json:"startTime"`
	ETA         time.Time   `json:"eta"`
	Description string      `json:"description"`
	BridgeURL   string      `json:"bridgeUrl,omitempty"`
	// Offering is the service offering key used to correlate changes. It has
	// no placeholder: empty means "no offering" and never matches.
	Offering string `json:"offering,omitempty"`
}

// Ticket is a canonical ticket record.
type Ticket struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	Summary        string `json:"summary"`
	AffectedSystem string `json:"affectedSystem"`
	Status         string `json:"status"`
	AssignedTeam   string `json:"assignedTeam"`
	TicketURL      string `json:"ticketUrl"`
}

// MonitoringAlert is a canonical monitoring alert.
type MonitoringAlert struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	AffectedSystem string    `json:"affectedSystem"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       Severity  `json:"severity"`
	Validated      bool      `json:"validated"`
}

// Change is a canonical change record. IsHot is derived on every pass and
// never stored.
type Change struct {
	ID      string `json:"id"`
	Number  string `json:"number"`
	Summary string `json:"summary"`
	// Offering stays empty rather than a placeholder so it never correlates.
	Offering string     `json:"offering"`
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	State    string     `json:"state"`
	Type     string     `json:"type"`
	URL      string     `json:"url"`
	IsHot    bool       `json:"isHot"`
}

// Placeholders substituted for fields that resolve to nothing.
const (
	PlaceholderSystem      = "Unknown System"
	PlaceholderDescription = "No description provided"
	PlaceholderSummary     = "No summary provided"
	PlaceholderStatus      = "Unknown"
	PlaceholderTeam        = "Unassigned"
	PlaceholderType        = "Unknown"
	PlaceholderNumber      = "N/A"
)
