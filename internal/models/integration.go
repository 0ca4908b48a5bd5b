package models

import "time"

// IntegrationKind identifies a singleton integration configuration.
type IntegrationKind string

const (
	KindOutage     IntegrationKind = "outage"
	KindTicket     IntegrationKind = "ticket"
	KindChange     IntegrationKind = "change"
	KindMonitoring IntegrationKind = "monitoring"
)

// IntegrationKinds lists every supported kind.
var IntegrationKinds = []IntegrationKind{KindOutage, KindTicket, KindChange, KindMonitoring}

// Valid reports whether k is a supported kind.
func (k IntegrationKind) Valid() bool {
	for _, v := range IntegrationKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Canonical field names used as keys of a FieldMapping.
const (
	FieldID             = "id"
	FieldNumber         = "number"
	FieldSystemName     = "systemName"
	FieldImpact         = "impact"
	FieldStartTime      = "startTime"
	FieldEndTime        = "endTime"
	FieldETA            = "eta"
	FieldDescription    = "description"
	FieldBridgeURL      = "bridgeUrl"
	FieldOffering       = "offering"
	FieldActive         = "active"
	FieldSummary        = "summary"
	FieldAffectedSystem = "affectedSystem"
	FieldStatus         = "status"
	FieldAssignedTeam   = "assignedTeam"
	FieldState          = "state"
	FieldType           = "type"
	FieldTimestamp      = "timestamp"
	FieldSeverity       = "severity"
	FieldValidated      = "validated"
)

// FieldMapping associates a canonical field name with the dotted path where
// the value lives in the external payload.
type FieldMapping map[string]string

// Path returns the external path for field, or fallback when unmapped.
func (m FieldMapping) Path(field, fallback string) string {
	if p, ok := m[field]; ok && p != "" {
		return p
	}
	return fallback
}

// ImpactMapping is one row of the ordered external-to-canonical token table.
type ImpactMapping struct {
	ExternalValue  string `json:"externalValue" yaml:"externalValue" validate:"required"`
	CanonicalValue string `json:"canonicalValue" yaml:"canonicalValue" validate:"required"`
}

// CredentialRefs names the variables holding the integration credentials.
type CredentialRefs struct {
	UsernameVar string `json:"usernameVar" yaml:"usernameVar"`
	PasswordVar string `json:"passwordVar" yaml:"passwordVar"`
}

// Credentials are resolved secrets. Both fields are always set together.
type Credentials struct {
	Username string
	Password string
}

// IntegrationConfig is the singleton configuration of one integration kind.
// It is replaced wholesale on save and never patched field by field.
type IntegrationConfig struct {
	Enabled       bool            `json:"enabled"`
	BaseURL       string          `json:"baseUrl" validate:"required_if=Enabled true,omitempty,url"`
	Credentials   CredentialRefs  `json:"credentialRefs"`
	Table         string          `json:"table"`
	Query         string          `json:"query,omitempty"`
	FieldMapping  FieldMapping    `json:"fieldMapping"`
	ImpactMapping []ImpactMapping `json:"impactMapping" validate:"required,min=1,dive"`
	Version       int             `json:"version"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so callers can never mutate shared state.
func (c IntegrationConfig) Clone() IntegrationConfig {
	out := c
	if c.FieldMapping != nil {
		out.FieldMapping = make(FieldMapping, len(c.FieldMapping))
		for k, v := range c.FieldMapping {
			out.FieldMapping[k] = v
		}
	}
	if c.ImpactMapping != nil {
		out.ImpactMapping = append([]ImpactMapping(nil), c.ImpactMapping...)
	}
	return out
}
