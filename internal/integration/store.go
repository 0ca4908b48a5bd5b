// Package integration keeps the singleton configuration record of every
// integration kind. A record is created from built-in defaults on first read,
// replaced wholesale on save and never patched field by field.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cragr/opsstatus-agent/internal/models"
)

// ErrNotFound is returned by a Backend when no record exists for a kind.
var ErrNotFound = errors.New("integration config not found")

// ErrUnknownKind is returned for kinds outside models.IntegrationKinds.
var ErrUnknownKind = errors.New("unknown integration kind")

// Backend persists encoded records. Save must replace the whole value
// atomically; Create stores data only when no record exists and reports
// whether it did.
type Backend interface {
	Load(ctx context.Context, kind models.IntegrationKind) ([]byte, error)
	Save(ctx context.Context, kind models.IntegrationKind, data []byte) error
	Create(ctx context.Context, kind models.IntegrationKind, data []byte) (bool, error)
	Close() error
}

// Store reads and writes IntegrationConfig records through a Backend.
type Store struct {
	// mu serialises Put and default creation so versions are bumped without
	// gaps or repeats and defaults never overwrite a saved record.
	mu       sync.Mutex
	backend  Backend
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore wraps backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	v := validator.New()
	v.RegisterStructValidationCtx(validateCanonicalValues, models.IntegrationConfig{})
	return &Store{
		backend:  backend,
		validate: v,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the config for kind. A missing record is created from defaults;
// a stored record with a missing or invalid impact mapping is repaired on read.
func (s *Store) Get(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error) {
	if !kind.Valid() {
		return models.IntegrationConfig{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	cfg, err := s.load(ctx, kind)
	if !errors.Is(err, ErrNotFound) {
		return cfg, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadOrCreate(ctx, kind)
}

// Put validates cfg and replaces the stored record, bumping its version.
func (s *Store) Put(ctx context.Context, kind models.IntegrationKind, cfg models.IntegrationConfig) (models.IntegrationConfig, error) {
	if !kind.Valid() {
		return models.IntegrationConfig{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := s.Validate(kind, cfg); err != nil {
		return models.IntegrationConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadOrCreate(ctx, kind)
	if err != nil {
		return models.IntegrationConfig{}, err
	}

	next := cfg.Clone()
	if next.FieldMapping == nil {
		next.FieldMapping = models.FieldMapping{}
	}
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, kind, next); err != nil {
		return models.IntegrationConfig{}, err
	}
	s.logger.Info("integration config replaced", "kind", kind, "version", next.Version, "enabled", next.Enabled)
	return next, nil
}

// Validate checks cfg without saving it.
func (s *Store) Validate(kind models.IntegrationKind, cfg models.IntegrationConfig) error {
	if err := s.validate.StructCtx(withKind(context.Background(), kind), cfg); err != nil {
		return fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// loadOrCreate must be called with s.mu held. The defaults are written with
// the backend's create-if-absent so a record saved by another process wins.
func (s *Store) loadOrCreate(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error) {
	cfg, err := s.load(ctx, kind)
	if !errors.Is(err, ErrNotFound) {
		return cfg, err
	}

	cfg = Default(kind)
	cfg.Version = 1
	cfg.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(cfg)
	if err != nil {
		return models.IntegrationConfig{}, fmt.Errorf("marshal %s config: %w", kind, err)
	}
	created, err := s.backend.Create(ctx, kind, data)
	if err != nil {
		return models.IntegrationConfig{}, fmt.Errorf("save %s config: %w", kind, err)
	}
	if !created {
		return s.load(ctx, kind)
	}
	s.logger.Info("initialised integration config with defaults", "kind", kind)
	return cfg, nil
}

// load reads and decodes the stored record for kind.
func (s *Store) load(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error) {
	data, err := s.backend.Load(ctx, kind)
	if errors.Is(err, ErrNotFound) {
		return models.IntegrationConfig{}, ErrNotFound
	}
	if err != nil {
		return models.IntegrationConfig{}, fmt.Errorf("load %s config: %w", kind, err)
	}
	return s.decode(kind, data), nil
}

// storedConfig decodes the two mappings on their own so a malformed mapping
// only costs that field.
type storedConfig struct {
	models.IntegrationConfig
	FieldMapping  json.RawMessage `json:"fieldMapping"`
	ImpactMapping json.RawMessage `json:"impactMapping"`
}

func (s *Store) decode(kind models.IntegrationKind, data []byte) models.IntegrationConfig {
	var stored storedConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Warn("stored integration config unreadable, using defaults", "kind", kind, "error", err)
		return Default(kind)
	}

	cfg := stored.IntegrationConfig
	if len(stored.FieldMapping) > 0 {
		if err := json.Unmarshal(stored.FieldMapping, &cfg.FieldMapping); err != nil {
			s.logger.Warn("stored field mapping unreadable, using built-in paths", "kind", kind, "error", err)
			cfg.FieldMapping = nil
		}
	}
	if len(stored.ImpactMapping) > 0 {
		if err := json.Unmarshal(stored.ImpactMapping, &cfg.ImpactMapping); err != nil {
			s.logger.Warn("stored impact mapping unreadable", "kind", kind, "error", err)
			cfg.ImpactMapping = nil
		}
	}

	if len(cfg.ImpactMapping) > 0 && !validImpactMapping(kind, cfg.ImpactMapping) {
		s.logger.Warn("stored impact mapping has invalid rows, using defaults", "kind", kind)
	}
	return repair(kind, cfg)
}

func (s *Store) save(ctx context.Context, kind models.IntegrationKind, cfg models.IntegrationConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", kind, err)
	}
	if err := s.backend.Save(ctx, kind, data); err != nil {
		return fmt.Errorf("save %s config: %w", kind, err)
	}
	return nil
}

// repair replaces an impact mapping that is empty or has any row outside the
// kind's canonical vocabulary with the built-in table.
func repair(kind models.IntegrationKind, cfg models.IntegrationConfig) models.IntegrationConfig {
	if !validImpactMapping(kind, cfg.ImpactMapping) {
		cfg.ImpactMapping = DefaultImpactMapping(kind)
	}
	if cfg.FieldMapping == nil {
		cfg.FieldMapping = models.FieldMapping{}
	}
	return cfg
}

func validImpactMapping(kind models.IntegrationKind, mapping []models.ImpactMapping) bool {
	if len(mapping) == 0 {
		return false
	}
	check := canonicalCheck(kind)
	for _, row := range mapping {
		if strings.TrimSpace(row.ExternalValue) == "" || !check(row.CanonicalValue) {
			return false
		}
	}
	return true
}

// canonicalCheck returns the vocabulary test for the canonical side of kind's
// impact mapping.
func canonicalCheck(kind models.IntegrationKind) func(string) bool {
	if kind == models.KindMonitoring {
		return models.IsSeverity
	}
	return models.IsImpactLevel
}

type kindKey struct{}

func withKind(ctx context.Context, kind models.IntegrationKind) context.Context {
	return context.WithValue(ctx, kindKey{}, kind)
}

// validateCanonicalValues rejects mapping rows whose canonical side is not in
// the vocabulary of the kind being saved.
func validateCanonicalValues(ctx context.Context, sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(models.IntegrationConfig)
	if !ok {
		return
	}
	kind, _ := ctx.Value(kindKey{}).(models.IntegrationKind)
	check := canonicalCheck(kind)
	for i, row := range cfg.ImpactMapping {
		if !check(row.CanonicalValue) {
			sl.ReportError(row.CanonicalValue, fmt.Sprintf("ImpactMapping[%d].CanonicalValue", i), "CanonicalValue", "canonical", "")
		}
	}
}
