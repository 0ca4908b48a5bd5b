// Package dashboard assembles the canonical feeds served to the operations
// dashboard: it reads integration configs, resolves credentials, fetches
// and normalizes upstream records, and derives trends and hot changes.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/changes"
	"github.com/cragr/opsstatus-agent/internal/credentials"
	"github.com/cragr/opsstatus-agent/internal/metrics"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/normalize"
	"github.com/cragr/opsstatus-agent/internal/query"
	"github.com/cragr/opsstatus-agent/internal/servicenow"
	"github.com/cragr/opsstatus-agent/internal/trend"
)

// Feed names, used in logs, metrics and "failed to fetch" messages.
const (
	FeedOutages = "outages"
	FeedTickets = "tickets"
	FeedAlerts  = "alerts"
	FeedChanges = "changes"
	FeedTrends  = "trends"
	FeedVendors = "vendors"
)

// ErrInvalidTicket is returned when a ticket request fails validation.
var ErrInvalidTicket = errors.New("invalid ticket request")

// ConfigStore reads integration configs.
type ConfigStore interface {
	Get(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error)
}

// TableClient queries and writes ServiceNow tables.
type TableClient interface {
	QueryTable(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error)
	CreateIncident(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, incident models.ServiceNowIncident) (*servicenow.CreateIncidentResult, error)
}

// AlertSearcher runs monitoring searches.
type AlertSearcher interface {
	Search(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error)
}

// VendorPoller probes vendor status pages.
type VendorPoller interface {
	PollAll(ctx context.Context, vendors []models.VendorProbeSpec) []models.VendorProbeResult
}

// Deps are the collaborators of a Service.
type Deps struct {
	Configs     ConfigStore
	Tables      TableClient
	Alerts      AlertSearcher
	Vendors     VendorPoller
	Credentials credentials.Resolver
	Normalizer  *normalize.Normalizer
	Queries     *query.Builder
	VendorSpecs []models.VendorProbeSpec
	// Location sets the calendar used for trend buckets and "today".
	Location *time.Location
}

// Service serves the dashboard feeds. Every call fetches fresh data.
type Service struct {
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Queries == nil {
		deps.Queries = query.NewBuilder()
	}
	return &Service{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		logger:   logger,
	}
}

// ActiveOutages returns the outages that are open and have no end time.
func (s *Service) ActiveOutages(ctx context.Context) ([]models.Outage, error) {
	rows, cfg, err := s.fetchTable(ctx, FeedOutages, models.KindOutage, query.Active())
	if err != nil {
		return nil, err
	}
	return s.deps.Normalizer.Outages(rows, cfg), nil
}

// Tickets returns the open tickets.
func (s *Service) Tickets(ctx context.Context) ([]models.Ticket, error) {
	rows, cfg, err := s.fetchTable(ctx, FeedTickets, models.KindTicket, query.Active())
	if err != nil {
		return nil, err
	}
	return s.deps.Normalizer.Tickets(rows, cfg), nil
}

// Alerts returns the monitoring alerts matched by the configured search.
func (s *Service) Alerts(ctx context.Context) ([]models.MonitoringAlert, error) {
	start := time.Now()
	cfg, creds, err := s.prepare(ctx, models.KindMonitoring)
	var rows []map[string]any
	if err == nil {
		rows, err = s.deps.Alerts.Search(ctx, cfg, creds, cfg.Query)
	}
	if err := s.settle(FeedAlerts, models.KindMonitoring, start, err); err != nil {
		return nil, err
	}
	return s.deps.Normalizer.Alerts(rows, cfg), nil
}

// Changes returns today's in-flight changes with IsHot set against the
// active outages, fetching both feeds concurrently.
func (s *Service) Changes(ctx context.Context) ([]models.Change, error) {
	var (
		list    []models.Change
		outages []models.Outage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.rawChanges(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		outages, err = s.ActiveOutages(gctx)
		if err != nil {
			// Changes stay visible without the hot flag.
			s.logger.Warn("correlating changes without active outages", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return changes.Correlate(list, outages, s.now().In(s.deps.Location)), nil
}

// Trends buckets the outages of the trailing week.
func (s *Service) Trends(ctx context.Context, groupBy trend.GroupBy) (trend.Series, error) {
	recent, err := s.recentOutages(ctx)
	if err != nil {
		return trend.Series{}, err
	}
	return trend.Aggregate(recent, groupBy, s.now().In(s.deps.Location)), nil
}

// VendorStatus probes every configured vendor. It never fails.
func (s *Service) VendorStatus(ctx context.Context) []models.VendorProbeResult {
	start := time.Now()
	results := s.deps.Vendors.PollAll(ctx, s.deps.VendorSpecs)
	metrics.ObserveFeedFetch(FeedVendors, time.Since(start), metrics.OutcomeSuccess)
	return results
}

// Snapshot is a consistent view of every feed from one fetch cycle.
type Snapshot struct {
	CycleID        string                     `json:"cycleId"`
	GeneratedAt    time.Time                  `json:"generatedAt"`
	Outages        []models.Outage            `json:"outages"`
	Tickets        []models.Ticket            `json:"tickets"`
	Alerts         []models.MonitoringAlert   `json:"alerts"`
	Changes        []models.Change            `json:"changes"`
	TrendsByImpact trend.Series               `json:"trendsByImpact"`
	TrendsBySystem trend.Series               `json:"trendsBySystem"`
	Vendors        []models.VendorProbeResult `json:"vendors"`
	// Errors maps a feed name to its "failed to fetch" message.
	Errors map[string]string `json:"errors,omitempty"`
}

// Snapshot fetches every feed concurrently. A failing feed is reported in
// Errors and leaves its list empty; the other feeds are unaffected.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Outages: []models.Outage{},
		Tickets: []models.Ticket{},
		Alerts:  []models.MonitoringAlert{},
		Changes: []models.Change{},
		Vendors: []models.VendorProbeResult{},
	}
	var (
		rawChanges []models.Change
		recent     []models.Outage
		mu         sync.Mutex
	)
	fail := func(feed string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if snap.Errors == nil {
			snap.Errors = map[string]string{}
		}
		snap.Errors[feed] = apperrors.Message(err)
	}

	// Every task records its own error so one feed never cancels another.
	var g errgroup.Group
	g.Go(func() error {
		list, err := s.ActiveOutages(ctx)
		snap.Outages = orEmpty(list)
		fail(FeedOutages, err)
		return nil
	})
	g.Go(func() error {
		list, err := s.Tickets(ctx)
		snap.Tickets = orEmpty(list)
		fail(FeedTickets, err)
		return nil
	})
	g.Go(func() error {
		list, err := s.Alerts(ctx)
		snap.Alerts = orEmpty(list)
		fail(FeedAlerts, err)
		return nil
	})
	g.Go(func() error {
		var err error
		rawChanges, err = s.rawChanges(ctx)
		fail(FeedChanges, err)
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = s.recentOutages(ctx)
		fail(FeedTrends, err)
		return nil
	})
	g.Go(func() error {
		snap.Vendors = orEmpty(s.VendorStatus(ctx))
		return nil
	})
	_ = g.Wait()

	now := s.now().In(s.deps.Location)
	snap.GeneratedAt = now
	snap.Changes = orEmpty(changes.Correlate(rawChanges, snap.Outages, now))
	snap.TrendsByImpact = trend.Aggregate(recent, trend.GroupByImpact, now)
	snap.TrendsBySystem = trend.Aggregate(recent, trend.GroupBySystem, now)
	return snap
}

// TicketRequest is the input of CreateTicket.
type TicketRequest = models.ServiceNowIncident

// CreatedTicket identifies a ticket raised from the dashboard.
type CreatedTicket struct {
	SysID     string `json:"sysId"`
	Number    string `json:"number"`
	TicketURL string `json:"ticketUrl"`
}

// CreateTicket raises a ticket in the ticket integration. Unlike the read
// paths, a missing configuration or missing credentials is an error.
func (s *Service) CreateTicket(ctx context.Context, req TicketRequest) (*CreatedTicket, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	cfg, creds, err := s.prepare(ctx, models.KindTicket)
	if err != nil {
		return nil, apperrors.New("dashboard.CreateTicket", "ticket integration unavailable", err)
	}

	res, err := s.deps.Tables.CreateIncident(ctx, cfg, creds, req)
	if err != nil {
		s.logger.Error("failed to create ticket", "error", err)
		return nil, apperrors.New("dashboard.CreateTicket", "failed to create ticket", err)
	}

	s.logger.Info("ticket created", "number", res.Number, "sys_id", res.SysID)
	return &CreatedTicket{
		SysID:     res.SysID,
		Number:    res.Number,
		TicketURL: normalize.RecordURL(cfg.BaseURL, cfg.Table, res.SysID),
	}, nil
}

func (s *Service) rawChanges(ctx context.Context) ([]models.Change, error) {
	rows, cfg, err := s.fetchTable(ctx, FeedChanges, models.KindChange, query.Open())
	if err != nil {
		return nil, err
	}
	return s.deps.Normalizer.Changes(rows, cfg), nil
}

func (s *Service) recentOutages(ctx context.Context) ([]models.Outage, error) {
	rows, cfg, err := s.fetchTable(ctx, FeedTrends, models.KindOutage, query.TrailingDays(trend.Days))
	if err != nil {
		return nil, err
	}
	return s.deps.Normalizer.Outages(rows, cfg), nil
}

// fetchTable runs the config, credentials and query steps for a table feed.
// Soft failures come back as an empty result with a nil error.
func (s *Service) fetchTable(ctx context.Context, feed string, kind models.IntegrationKind, window query.Window) ([]map[string]any, models.IntegrationConfig, error) {
	start := time.Now()
	cfg, creds, err := s.prepare(ctx, kind)
	var rows []map[string]any
	if err == nil {
		var q string
		q, err = s.deps.Queries.Build(cfg, window)
		if err == nil {
			rows, err = s.deps.Tables.QueryTable(ctx, cfg, creds, q)
		}
	}
	if err := s.settle(feed, kind, start, err); err != nil {
		return nil, cfg, err
	}
	return rows, cfg, nil
}

// prepare loads the config for kind and resolves its credentials.
func (s *Service) prepare(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, models.Credentials, error) {
	cfg, err := s.deps.Configs.Get(ctx, kind)
	if err != nil {
		return cfg, models.Credentials{}, err
	}
	if !cfg.Enabled || cfg.BaseURL == "" {
		return cfg, models.Credentials{}, apperrors.ErrConfigurationMissing
	}
	creds, ok := credentials.Resolve(s.deps.Credentials, cfg.Credentials)
	if !ok {
		return cfg, models.Credentials{}, fmt.Errorf("%w: %s/%s", apperrors.ErrCredentialsMissing,
			cfg.Credentials.UsernameVar, cfg.Credentials.PasswordVar)
	}
	return cfg, creds, nil
}

// settle records metrics for a feed fetch and turns its error into the
// caller-facing form: nil for soft failures, a "failed to fetch" AppError
// otherwise.
func (s *Service) settle(feed string, kind models.IntegrationKind, start time.Time, err error) error {
	switch {
	case err == nil:
		metrics.ObserveFeedFetch(feed, time.Since(start), metrics.OutcomeSuccess)
		return nil
	case apperrors.IsSoft(err):
		metrics.ObserveFeedFetch(feed, time.Since(start), metrics.OutcomeSkipped)
		s.logger.Debug("feed skipped", "feed", feed, "kind", kind, "reason", err)
		return nil
	default:
		metrics.ObserveFeedFetch(feed, time.Since(start), metrics.OutcomeError)
		s.logger.Error("feed fetch failed", "feed", feed, "kind", kind, "error", err)
		return apperrors.New("dashboard."+feed, "failed to fetch "+feed, err)
	}
}

func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
