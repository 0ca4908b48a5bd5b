package models

// VendorStatus is the verdict of a single vendor probe.
type VendorStatus string

const (
	VendorOperational VendorStatus = "Operational"
	VendorDegraded    VendorStatus = "Degraded"
	VendorOutage      VendorStatus = "Outage"
)

// ProbeType selects how a vendor is checked.
type ProbeType string

const (
	ProbeManual ProbeType = "manual"
	ProbeHTTP   ProbeType = "http"
)

// VendorProbeSpec configures one vendor health check.
type VendorProbeSpec struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name" validate:"required"`
	Type          ProbeType `json:"type" yaml:"type" validate:"omitempty,oneof=manual http"`
	URL           string    `json:"url" yaml:"url" validate:"required_if=Type http,omitempty,url"`
	JSONPath      string    `json:"jsonPath" yaml:"jsonPath"`
	ExpectedValue string    `json:"expectedValue" yaml:"expectedValue"`
}

// IsManual reports whether the probe has nothing to call.
func (s VendorProbeSpec) IsManual() bool {
	return s.Type == ProbeManual || s.URL == "" || s.JSONPath == ""
}

// VendorProbeResult is the ephemeral outcome of a probe.
type VendorProbeResult struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	URL    string       `json:"url"`
	Status VendorStatus `json:"status"`
}
