// Package query builds ServiceNow encoded queries for the table API.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/normalize"
)

// WindowKind names a time filtering policy.
type WindowKind string

const (
	WindowActive   WindowKind = "active"
	WindowOpen     WindowKind = "open"
	WindowTrailing WindowKind = "trailing"
)

// Window is a named time filtering policy.
type Window struct {
	Kind WindowKind
	Days int
}

// Active selects records that are open and have no end time.
func Active() Window { return Window{Kind: WindowActive} }

// Open selects every record still flagged active, whatever its end time.
// Scheduled changes carry a planned end date, so the change feed uses this.
func Open() Window { return Window{Kind: WindowOpen} }

// TrailingDays selects records that ended within the last n days.
func TrailingDays(n int) Window { return Window{Kind: WindowTrailing, Days: n} }

func (w Window) String() string {
	if w.Kind == WindowTrailing {
		return "trailing " + strconv.Itoa(w.Days) + " days"
	}
	return string(w.Kind)
}

// Fallback external paths for the fields the filters depend on.
const (
	defaultIDPath     = "sys_id"
	defaultActivePath = "active"
	defaultEndPath    = "resolved_at"
	defaultImpactPath = "impact"
)

// CutoffLayout is the date format ServiceNow expects in encoded queries.
const CutoffLayout = "2006-01-02 15:04:05"

// Builder constructs query strings. The zero value is not usable; use NewBuilder.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build returns the URL query (filter, field projection and display value
// flag) for cfg and window.
func (b *Builder) Build(cfg models.IntegrationConfig, window Window) (string, error) {
	filter, err := b.Filter(cfg, window)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("sysparm_query", filter)
	params.Set("sysparm_fields", strings.Join(Fields(cfg), ","))
	params.Set("sysparm_display_value", "true")
	params.Set("sysparm_exclude_reference_link", "true")
	return params.Encode(), nil
}

// Filter returns the unencoded ServiceNow filter expression.
func (b *Builder) Filter(cfg models.IntegrationConfig, window Window) (string, error) {
	endField := cfg.FieldMapping.Path(models.FieldEndTime, defaultEndPath)

	switch window.Kind {
	case WindowActive:
		activeField := cfg.FieldMapping.Path(models.FieldActive, defaultActivePath)
		return activeField + "=true^" + endField + "ISEMPTY", nil
	case WindowOpen:
		return cfg.FieldMapping.Path(models.FieldActive, defaultActivePath) + "=true", nil
	case WindowTrailing:
		if window.Days <= 0 {
			return "", fmt.Errorf("trailing window needs a positive day count, got %d", window.Days)
		}
		cutoff := b.now().UTC().AddDate(0, 0, -window.Days).Format(CutoffLayout)
		impactField := cfg.FieldMapping.Path(models.FieldImpact, defaultImpactPath)
		tokens := normalize.ExternalTokens(cfg.ImpactMapping, trendCategories()...)
		filter := endField + ">=" + cutoff
		if len(tokens) > 0 {
			filter += "^" + impactField + "IN" + strings.Join(tokens, ",")
		}
		return filter, nil
	default:
		return "", fmt.Errorf("unsupported window %q", window.Kind)
	}
}

// Fields returns the projection: the identifier path first, then every mapped
// path sorted and without duplicates.
func Fields(cfg models.IntegrationConfig) []string {
	idPath := cfg.FieldMapping.Path(models.FieldID, defaultIDPath)
	seen := map[string]struct{}{idPath: {}}
	rest := make([]string, 0, len(cfg.FieldMapping))
	for _, p := range cfg.FieldMapping {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		rest = append(rest, p)
	}
	sort.Strings(rest)
	return append([]string{idPath}, rest...)
}

func trendCategories() []string {
	out := make([]string, 0, len(models.ImpactLevels))
	for _, l := range models.ImpactLevels {
		out = append(out, string(l))
	}
	return out
}
