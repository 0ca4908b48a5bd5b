package integration

import "github.com/cragr/opsstatus-agent/internal/models"

var serviceNowCredentials = models.CredentialRefs{
	UsernameVar: "SERVICENOW_USERNAME",
	PasswordVar: "SERVICENOW_PASSWORD",
}

// DefaultImpactMapping returns the built-in mapping table for kind.
func DefaultImpactMapping(kind models.IntegrationKind) []models.ImpactMapping {
	if kind == models.KindMonitoring {
		return []models.ImpactMapping{
			{ExternalValue: "critical", CanonicalValue: string(models.SeverityCritical)},
			{ExternalValue: "high", CanonicalValue: string(models.SeverityCritical)},
			{ExternalValue: "warning", CanonicalValue: string(models.SeverityWarning)},
			{ExternalValue: "medium", CanonicalValue: string(models.SeverityWarning)},
			{ExternalValue: "low", CanonicalValue: string(models.SeverityInfo)},
			{ExternalValue: "info", CanonicalValue: string(models.SeverityInfo)},
		}
	}
	return []models.ImpactMapping{
		{ExternalValue: "1 - High", CanonicalValue: string(models.ImpactOutage)},
		{ExternalValue: "1", CanonicalValue: string(models.ImpactOutage)},
		{ExternalValue: "2 - Medium", CanonicalValue: string(models.ImpactDegradation)},
		{ExternalValue: "2", CanonicalValue: string(models.ImpactDegradation)},
		{ExternalValue: "3 - Low", CanonicalValue: string(models.ImpactInformational)},
		{ExternalValue: "3", CanonicalValue: string(models.ImpactInformational)},
	}
}

// Default returns the built-in configuration for kind. Integrations start
// disabled until an operator saves a base URL.
func Default(kind models.IntegrationKind) models.IntegrationConfig {
	cfg := models.IntegrationConfig{
		Credentials:   serviceNowCredentials,
		ImpactMapping: DefaultImpactMapping(kind),
	}

	switch kind {
	case models.KindOutage:
		cfg.Table = "incident"
		cfg.FieldMapping = models.FieldMapping{
			models.FieldID:          "sys_id",
			models.FieldSystemName:  "cmdb_ci",
			models.FieldImpact:      "impact",
			models.FieldStartTime:   "opened_at",
			models.FieldEndTime:     "resolved_at",
			models.FieldETA:         "u_eta",
			models.FieldDescription: "short_description",
			models.FieldBridgeURL:   "u_bridge_url",
			models.FieldOffering:    "service_offering",
			models.FieldActive:      "active",
		}
	case models.KindTicket:
		cfg.Table = "incident"
		cfg.FieldMapping = models.FieldMapping{
			models.FieldID:             "sys_id",
			models.FieldNumber:         "number",
			models.FieldSummary:        "short_description",
			models.FieldAffectedSystem: "cmdb_ci",
			models.FieldStatus:         "state",
			models.FieldAssignedTeam:   "assignment_group",
			models.FieldEndTime:        "resolved_at",
			models.FieldActive:         "active",
		}
	case models.KindChange:
		cfg.Table = "change_request"
		cfg.FieldMapping = models.FieldMapping{
			models.FieldID:        "sys_id",
			models.FieldNumber:    "number",
			models.FieldSummary:   "short_description",
			models.FieldOffering:  "service_offering",
			models.FieldStartTime: "start_date",
			models.FieldEndTime:   "end_date",
			models.FieldState:     "state",
			models.FieldType:      "type",
			models.FieldActive:    "active",
		}
	case models.KindMonitoring:
		cfg.Credentials = models.CredentialRefs{
			UsernameVar: "MONITORING_USERNAME",
			PasswordVar: "MONITORING_PASSWORD",
		}
		cfg.Query = "alerts | where status == 'open' | sort by timestamp desc"
		cfg.FieldMapping = models.FieldMapping{
			models.FieldID:             "id",
			models.FieldType:           "alert_type",
			models.FieldAffectedSystem: "host",
			models.FieldTimestamp:      "timestamp",
			models.FieldSeverity:       "severity",
			models.FieldValidated:      "validated",
		}
	}
	return cfg
}
