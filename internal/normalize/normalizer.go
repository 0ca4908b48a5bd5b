// Package normalize turns raw external records into canonical records using
// the field and impact mappings of an integration config.
package normalize

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cragr/opsstatus-agent/internal/fieldpath"
	"github.com/cragr/opsstatus-agent/internal/models"
)

// Default external paths, used when a field has no mapping entry.
const (
	defaultIDPath = "sys_id"
)

// Normalizer builds canonical records. It is safe for concurrent use.
type Normalizer struct {
	dates      *DateParser
	policy     FallbackPolicy
	logger     *slog.Logger
	newID      func() string
	onFallback func(kind models.IntegrationKind, field string)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDateParser replaces the default UTC date parser.
func WithDateParser(p *DateParser) Option {
	return func(n *Normalizer) { n.dates = p }
}

// WithFallbackPolicy selects the unparseable date policy.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithFallbackHook registers a callback invoked whenever the warn policy
// substitutes the current time for a malformed date.
func WithFallbackHook(fn func(kind models.IntegrationKind, field string)) Option {
	return func(n *Normalizer) { n.onFallback = fn }
}

// WithIDGenerator replaces the generator used for records without an id.
func WithIDGenerator(fn func() string) Option {
	return func(n *Normalizer) { n.newID = fn }
}

// New creates a Normalizer.
func New(logger *slog.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		dates:  NewDateParser(time.UTC),
		policy: FallbackNow,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Outage normalizes one outage record. Impact defaults to Degradation.
func (n *Normalizer) Outage(raw map[string]any, cfg models.IntegrationConfig) models.Outage {
	f := n.fields(raw, cfg, models.KindOutage)
	impact := TranslateImpact(f.text(models.FieldImpact, "impact"), cfg.ImpactMapping, string(models.ImpactDegradation))

	return models.Outage{
		ID:          f.id(),
		SystemName:  f.textOr(models.FieldSystemName, "cmdb_ci", models.PlaceholderSystem),
		ImpactLevel: models.ImpactLevel(impact),
		StartTime:   f.date(models.FieldStartTime, "opened_at"),
		ETA:         f.date(models.FieldETA, "u_eta"),
		Description: f.textOr(models.FieldDescription, "short_description", models.PlaceholderDescription),
		BridgeURL:   f.text(models.FieldBridgeURL, "u_bridge_url"),
		Offering:    f.text(models.FieldOffering, "service_offering"), // empty never correlates
	}
}

// Ticket normalizes one ticket record.
func (n *Normalizer) Ticket(raw map[string]any, cfg models.IntegrationConfig) models.Ticket {
	f := n.fields(raw, cfg, models.KindTicket)
	id := f.id()

	return models.Ticket{
		ID:             id,
		Number:         f.textOr(models.FieldNumber, "number", models.PlaceholderNumber),
		Summary:        f.textOr(models.FieldSummary, "short_description", models.PlaceholderSummary),
		AffectedSystem: f.textOr(models.FieldAffectedSystem, "cmdb_ci", models.PlaceholderSystem),
		Status:         f.textOr(models.FieldStatus, "state", models.PlaceholderStatus),
		AssignedTeam:   f.textOr(models.FieldAssignedTeam, "assignment_group", models.PlaceholderTeam),
		TicketURL:      RecordURL(cfg.BaseURL, tableOr(cfg.Table, "incident"), id),
	}
}

// Change normalizes one change record. Missing start or end stay nil; IsHot
// is left false for the correlator to decide.
func (n *Normalizer) Change(raw map[string]any, cfg models.IntegrationConfig) models.Change {
	f := n.fields(raw, cfg, models.KindChange)
	id := f.id()

	return models.Change{
		ID:       id,
		Number:   f.textOr(models.FieldNumber, "number", models.PlaceholderNumber),
		Summary:  f.textOr(models.FieldSummary, "short_description", models.PlaceholderSummary),
		Offering: f.text(models.FieldOffering, "service_offering"), // empty never correlates
		Start:    f.optionalDate(models.FieldStartTime, "start_date"),
		End:      f.optionalDate(models.FieldEndTime, "end_date"),
		State:    f.textOr(models.FieldState, "state", models.PlaceholderStatus),
		Type:     f.textOr(models.FieldType, "type", models.PlaceholderType),
		URL:      RecordURL(cfg.BaseURL, tableOr(cfg.Table, "change_request"), id),
	}
}

// Alert normalizes one monitoring search result. Severity defaults to Info.
func (n *Normalizer) Alert(raw map[string]any, cfg models.IntegrationConfig) models.MonitoringAlert {
	f := n.fields(raw, cfg, models.KindMonitoring)
	severity := TranslateImpact(f.text(models.FieldSeverity, "severity"), cfg.ImpactMapping, string(models.SeverityInfo))

	return models.MonitoringAlert{
		ID:             f.idAt("id"),
		Type:           f.textOr(models.FieldType, "alert_type", models.PlaceholderType),
		AffectedSystem: f.textOr(models.FieldAffectedSystem, "host", models.PlaceholderSystem),
		Timestamp:      f.date(models.FieldTimestamp, "timestamp"),
		Severity:       models.Severity(severity),
		Validated:      truthy(f.text(models.FieldValidated, "validated")),
	}
}

// Outages normalizes a batch.
func (n *Normalizer) Outages(raws []map[string]any, cfg models.IntegrationConfig) []models.Outage {
	out := make([]models.Outage, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Outage(raw, cfg))
	}
	return out
}

// Tickets normalizes a batch.
func (n *Normalizer) Tickets(raws []map[string]any, cfg models.IntegrationConfig) []models.Ticket {
	out := make([]models.Ticket, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Ticket(raw, cfg))
	}
	return out
}

// Changes normalizes a batch.
func (n *Normalizer) Changes(raws []map[string]any, cfg models.IntegrationConfig) []models.Change {
	out := make([]models.Change, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Change(raw, cfg))
	}
	return out
}

// Alerts normalizes a batch.
func (n *Normalizer) Alerts(raws []map[string]any, cfg models.IntegrationConfig) []models.MonitoringAlert {
	out := make([]models.MonitoringAlert, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Alert(raw, cfg))
	}
	return out
}

// RecordURL builds a ServiceNow form link for a record.
func RecordURL(baseURL, table, id string) string {
	if baseURL == "" || id == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/nav_to.do?uri=" + url.QueryEscape(table+".do?sys_id="+id)
}

// recordFields binds one raw record to its config for field lookups.
type recordFields struct {
	n    *Normalizer
	raw  map[string]any
	cfg  models.IntegrationConfig
	kind models.IntegrationKind
}

func (n *Normalizer) fields(raw map[string]any, cfg models.IntegrationConfig, kind models.IntegrationKind) recordFields {
	return recordFields{n: n, raw: raw, cfg: cfg, kind: kind}
}

func (f recordFields) resolve(field, fallback string) fieldpath.Value {
	return fieldpath.Resolve(f.raw, f.cfg.FieldMapping.Path(field, fallback))
}

func (f recordFields) text(field, fallback string) string {
	return strings.TrimSpace(f.resolve(field, fallback).String())
}

func (f recordFields) textOr(field, fallback, placeholder string) string {
	if s := f.text(field, fallback); s != "" {
		return s
	}
	return placeholder
}

func (f recordFields) id() string {
	return f.idAt(defaultIDPath)
}

func (f recordFields) idAt(fallback string) string {
	if s := f.text(models.FieldID, fallback); s != "" {
		return s
	}
	return f.n.newID()
}

func (f recordFields) dateInput(field, fallback string) any {
	v := f.resolve(field, fallback)
	switch v.Kind() {
	case fieldpath.KindNull:
		return nil
	case fieldpath.KindScalar:
		if _, isString := v.Raw().(string); !isString {
			return v.Raw()
		}
	}
	return v.String()
}

func (f recordFields) date(field, fallback string) time.Time {
	raw := f.dateInput(field, fallback)
	t, err := f.n.dates.ParseStrict(raw)
	if err == nil {
		return t
	}
	f.reportFallback(field, raw, err)
	return f.n.dates.now()
}

// optionalDate keeps absent values absent; present but malformed values
// follow the fallback policy like any other date.
func (f recordFields) optionalDate(field, fallback string) *time.Time {
	raw := f.dateInput(field, fallback)
	t, err := f.n.dates.ParseStrict(raw)
	if errors.Is(err, ErrEmptyDate) {
		return nil
	}
	if err != nil {
		f.reportFallback(field, raw, err)
		t = f.n.dates.now()
	}
	return &t
}

func (f recordFields) reportFallback(field string, raw any, err error) {
	if errors.Is(err, ErrEmptyDate) || f.n.policy != FallbackWarn {
		return
	}
	f.n.logger.Warn("unparseable date replaced with current time",
		"kind", f.kind,
		"field", field,
		"value", raw,
		"error", err,
	)
	if f.n.onFallback != nil {
		f.n.onFallback(f.kind, field)
	}
}

func tableOr(table, fallback string) string {
	if table == "" {
		return fallback
	}
	return table
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "validated":
		return true
	}
	return false
}
