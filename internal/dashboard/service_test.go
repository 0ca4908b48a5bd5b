package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/credentials"
	"github.com/cragr/opsstatus-agent/internal/logging"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/normalize"
	"github.com/cragr/opsstatus-agent/internal/servicenow"
	"github.com/cragr/opsstatus-agent/internal/trend"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// mockConfigStore implements ConfigStore for testing.
type mockConfigStore struct {
	configs map[models.IntegrationKind]models.IntegrationConfig
	getFn   func(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error)
}

func (m *mockConfigStore) Get(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error) {
	if m.getFn != nil {
		return m.getFn(ctx, kind)
	}
	return m.configs[kind], nil
}

// mockTableClient implements TableClient for testing. Responses are keyed by
// table name.
type mockTableClient struct {
	mu       sync.Mutex
	rows     map[string][]map[string]any
	errs     map[string]error
	queries  []string
	createFn func(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, incident models.ServiceNowIncident) (*servicenow.CreateIncidentResult, error)
}

func (m *mockTableClient) QueryTable(_ context.Context, cfg models.IntegrationConfig, _ models.Credentials, query string) ([]map[string]any, error) {
	m.mu.Lock()
	m.queries = append(m.queries, cfg.Table+"?"+query)
	m.mu.Unlock()
	if err := m.errs[cfg.Table]; err != nil {
		return nil, err
	}
	return m.rows[cfg.Table], nil
}

func (m *mockTableClient) CreateIncident(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, incident models.ServiceNowIncident) (*servicenow.CreateIncidentResult, error) {
	if m.createFn != nil {
		return m.createFn(ctx, cfg, creds, incident)
	}
	return &servicenow.CreateIncidentResult{SysID: "mock-sys-id", Number: "INC0000001"}, nil
}

// mockAlertSearcher implements AlertSearcher for testing.
type mockAlertSearcher struct {
	searchFn func(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error)
}

func (m *mockAlertSearcher) Search(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, cfg, creds, query)
	}
	return nil, nil
}

// mockVendorPoller implements VendorPoller for testing.
type mockVendorPoller struct{}

func (mockVendorPoller) PollAll(_ context.Context, vendors []models.VendorProbeSpec) []models.VendorProbeResult {
	out := make([]models.VendorProbeResult, len(vendors))
	for i, v := range vendors {
		out[i] = models.VendorProbeResult{ID: v.ID, Name: v.Name, Status: models.VendorOperational}
	}
	return out
}

func enabled(table string, mapping models.FieldMapping) models.IntegrationConfig {
	return models.IntegrationConfig{
		Enabled:      true,
		BaseURL:      "https://example.service-now.com",
		Credentials:  models.CredentialRefs{UsernameVar: "SN_USER", PasswordVar: "SN_PASS"},
		Table:        table,
		FieldMapping: mapping,
		ImpactMapping: []models.ImpactMapping{
			{ExternalValue: "1", CanonicalValue: "Outage"},
			{ExternalValue: "2", CanonicalValue: "Degradation"},
			{ExternalValue: "critical", CanonicalValue: "Critical"},
		},
	}
}

type fixture struct {
	store  *mockConfigStore
	tables *mockTableClient
	alerts *mockAlertSearcher
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &mockConfigStore{configs: map[models.IntegrationKind]models.IntegrationConfig{
			models.KindOutage: enabled("outages_tbl", models.FieldMapping{
				models.FieldOffering: "service_offering",
			}),
			models.KindTicket: enabled("tickets_tbl", nil),
			models.KindChange: enabled("changes_tbl", nil),
			models.KindMonitoring: func() models.IntegrationConfig {
				cfg := enabled("", nil)
				cfg.BaseURL = "https://monitoring.example.com"
				cfg.Query = "alerts | open"
				return cfg
			}(),
		}},
		tables: &mockTableClient{
			rows: map[string][]map[string]any{
				"outages_tbl": {
					{
						"sys_id":           "o1",
						"cmdb_ci":          map[string]any{"display_value": "Payments"},
						"impact":           "1",
						"opened_at":        testNow.Add(-2 * time.Hour).Format("2006-01-02 15:04:05"),
						"service_offering": map[string]any{"display_value": "Payments"},
					},
				},
				"tickets_tbl": {
					{"sys_id": "t1", "number": "INC001", "short_description": "Checkout failing"},
				},
				"changes_tbl": {
					{
						"sys_id":           "c1",
						"number":           "CHG001",
						"state":            "Scheduled",
						"service_offering": "payments",
						"start_date":       testNow.Format("2006-01-02 15:04:05"),
					},
					{"sys_id": "c2", "number": "CHG002", "state": "Canceled", "service_offering": "Payments"},
				},
			},
		},
		alerts: &mockAlertSearcher{},
	}
	f.svc = NewService(Deps{
		Configs:     f.store,
		Tables:      f.tables,
		Alerts:      f.alerts,
		Vendors:     mockVendorPoller{},
		Credentials: credentials.Map{"SN_USER": "user", "SN_PASS": "pass"},
		Normalizer:  normalize.New(logging.Discard()),
		VendorSpecs: []models.VendorProbeSpec{{ID: "v1", Name: "GitHub"}},
	}, logging.Discard())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestService_ActiveOutages(t *testing.T) {
	f := newFixture(t)

	outages, err := f.svc.ActiveOutages(context.Background())
	if err != nil {
		t.Fatalf("ActiveOutages() error = %v", err)
	}
	if len(outages) != 1 {
		t.Fatalf("len = %d, want 1", len(outages))
	}
	if outages[0].SystemName != "Payments" || outages[0].ImpactLevel != models.ImpactOutage {
		t.Errorf("outage = %+v", outages[0])
	}
	if !strings.Contains(f.tables.queries[0], "sysparm_query=active%3Dtrue") {
		t.Errorf("query = %q", f.tables.queries[0])
	}
}

func TestService_SoftFailuresAreEmpty(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
	}{
		{"disabled", func(f *fixture) {
			cfg := f.store.configs[models.KindTicket]
			cfg.Enabled = false
			f.store.configs[models.KindTicket] = cfg
		}},
		{"no base url", func(f *fixture) {
			cfg := f.store.configs[models.KindTicket]
			cfg.BaseURL = ""
			f.store.configs[models.KindTicket] = cfg
		}},
		{"credentials missing", func(f *fixture) {
			cfg := f.store.configs[models.KindTicket]
			cfg.Credentials.PasswordVar = "NOT_SET"
			f.store.configs[models.KindTicket] = cfg
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f)

			tickets, err := f.svc.Tickets(context.Background())
			if err != nil {
				t.Fatalf("Tickets() error = %v", err)
			}
			if tickets == nil || len(tickets) != 0 {
				t.Errorf("tickets = %#v, want empty non-nil", tickets)
			}
			if len(f.tables.queries) != 0 {
				t.Errorf("unexpected upstream calls: %v", f.tables.queries)
			}
		})
	}
}

func TestService_UpstreamFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.tables.errs = map[string]error{"tickets_tbl": fmt.Errorf("%w: status 500", apperrors.ErrUpstreamRejected)}

	_, err := f.svc.Tickets(context.Background())
	if !errors.Is(err, apperrors.ErrUpstreamRejected) {
		t.Fatalf("error = %v, want ErrUpstreamRejected", err)
	}
	if got := apperrors.Message(err); got != "failed to fetch tickets" {
		t.Errorf("Message = %q", got)
	}
}

func TestService_Alerts(t *testing.T) {
	f := newFixture(t)
	var gotQuery string
	f.alerts.searchFn = func(_ context.Context, _ models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error) {
		gotQuery = query
		if creds.Username != "user" {
			t.Errorf("creds = %+v", creds)
		}
		return []map[string]any{{"id": "a1", "severity": "CRITICAL", "validated": "yes"}}, nil
	}

	alerts, err := f.svc.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if gotQuery != "alerts | open" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(alerts) != 1 || alerts[0].Severity != models.SeverityCritical || !alerts[0].Validated {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestService_ChangesAreCorrelated(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.Changes(context.Background())
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1 (cancelled excluded): %+v", len(list), list)
	}
	if list[0].Number != "CHG001" || !list[0].IsHot {
		t.Errorf("change = %+v, want CHG001 hot", list[0])
	}
}

func TestService_ChangesSurviveOutageFailure(t *testing.T) {
	f := newFixture(t)
	f.tables.errs = map[string]error{"outages_tbl": apperrors.ErrUpstreamUnreachable}

	list, err := f.svc.Changes(context.Background())
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(list) != 1 || list[0].IsHot {
		t.Errorf("changes = %+v, want one cold change", list)
	}
}

func TestService_Trends(t *testing.T) {
	f := newFixture(t)

	series, err := f.svc.Trends(context.Background(), trend.GroupBySystem)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}
	if len(series.Buckets) != trend.Days {
		t.Errorf("len(Buckets) = %d", len(series.Buckets))
	}
	if len(series.Keys) != 1 || series.Keys[0] != "Payments" {
		t.Errorf("Keys = %v", series.Keys)
	}
}

func TestService_Snapshot_IsolatesFeedErrors(t *testing.T) {
	f := newFixture(t)
	f.tables.errs = map[string]error{"tickets_tbl": apperrors.ErrUpstreamUnreachable}

	snap := f.svc.Snapshot(context.Background())

	if snap.Errors[FeedTickets] != "failed to fetch tickets" {
		t.Errorf("Errors = %v", snap.Errors)
	}
	if len(snap.Errors) != 1 {
		t.Errorf("expected only the tickets feed to fail, got %v", snap.Errors)
	}
	if snap.Tickets == nil || len(snap.Tickets) != 0 {
		t.Errorf("Tickets = %#v, want empty", snap.Tickets)
	}
	if len(snap.Outages) != 1 || len(snap.Changes) != 1 || len(snap.Vendors) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.Changes[0].IsHot {
		t.Error("expected the scheduled payments change to be hot")
	}
	if len(snap.TrendsByImpact.Buckets) != trend.Days || len(snap.TrendsBySystem.Buckets) != trend.Days {
		t.Error("expected both trend series")
	}
}

func TestService_CreateTicket(t *testing.T) {
	f := newFixture(t)
	var got models.ServiceNowIncident
	f.tables.createFn = func(_ context.Context, cfg models.IntegrationConfig, _ models.Credentials, incident models.ServiceNowIncident) (*servicenow.CreateIncidentResult, error) {
		if cfg.Table != "tickets_tbl" {
			t.Errorf("table = %q", cfg.Table)
		}
		got = incident
		return &servicenow.CreateIncidentResult{SysID: "abc", Number: "INC042"}, nil
	}

	created, err := f.svc.CreateTicket(context.Background(), TicketRequest{ShortDescription: "Checkout is down"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if got.ShortDescription != "Checkout is down" {
		t.Errorf("incident = %+v", got)
	}
	if created.Number != "INC042" || !strings.Contains(created.TicketURL, "sys_id%3Dabc") {
		t.Errorf("created = %+v", created)
	}
}

func TestService_CreateTicket_Errors(t *testing.T) {
	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateTicket(context.Background(), TicketRequest{})
		if !errors.Is(err, ErrInvalidTicket) {
			t.Errorf("error = %v, want ErrInvalidTicket", err)
		}
	})

	t.Run("credentials missing is a hard error", func(t *testing.T) {
		f := newFixture(t)
		f.svc.deps.Credentials = credentials.Map{}
		_, err := f.svc.CreateTicket(context.Background(), TicketRequest{ShortDescription: "x"})
		if !errors.Is(err, apperrors.ErrCredentialsMissing) {
			t.Errorf("error = %v, want ErrCredentialsMissing", err)
		}
	})

	t.Run("not configured is a hard error", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.store.configs[models.KindTicket]
		cfg.Enabled = false
		f.store.configs[models.KindTicket] = cfg
		_, err := f.svc.CreateTicket(context.Background(), TicketRequest{ShortDescription: "x"})
		if !errors.Is(err, apperrors.ErrConfigurationMissing) {
			t.Errorf("error = %v, want ErrConfigurationMissing", err)
		}
	})
}

func TestService_Snapshot_ErrorsKeyedByFeed(t *testing.T) {
	f := newFixture(t)
	f.tables.errs = map[string]error{
		"changes_tbl": apperrors.ErrUpstreamUnreachable,
		"outages_tbl": fmt.Errorf("%w: status 502", apperrors.ErrUpstreamRejected),
	}

	snap := f.svc.Snapshot(context.Background())

	want := map[string]string{
		FeedChanges: "failed to fetch changes",
		FeedOutages: "failed to fetch outages",
		FeedTrends:  "failed to fetch trends",
	}
	if len(snap.Errors) != len(want) {
		t.Fatalf("Errors = %v, want %v", snap.Errors, want)
	}
	for feed, msg := range want {
		if snap.Errors[feed] != msg {
			t.Errorf("Errors[%s] = %q, want %q", feed, snap.Errors[feed], msg)
		}
	}
	if len(snap.Tickets) != 1 {
		t.Errorf("Tickets = %+v, want the healthy feed", snap.Tickets)
	}
}
