package models

// ServiceNowIncident represents the payload structure for creating incidents
// in ServiceNow via the Table API.
type ServiceNowIncident struct {
	ShortDescription string `json:"short_description" validate:"required,max=160"`
	Description      string `json:"description"`
	Impact           string `json:"impact,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	Category         string `json:"category,omitempty"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
	ConfigItem       string `json:"cmdb_ci,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

// ServiceNowResponse represents the response from ServiceNow Table API.
type ServiceNowResponse struct {
	Result ServiceNowResult `json:"result"`
}

// ServiceNowListResponse represents a Table API list response. Records are kept
// loosely typed because their shape is driven by the integration field mapping.
type ServiceNowListResponse struct {
	Result []map[string]any `json:"result"`
}

// ServiceNowResult represents a single created record returned by ServiceNow.
type ServiceNowResult struct {
	SysID  string `json:"sys_id"`
	Number string `json:"number"`
	State  string `json:"state"`
}
