// Package api exposes the dashboard feeds and integration settings over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/dashboard"
	"github.com/cragr/opsstatus-agent/internal/integration"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/ticket"
	"github.com/cragr/opsstatus-agent/internal/trend"
)

// DashboardService defines the feed operations served by the API.
type DashboardService interface {
	ActiveOutages(ctx context.Context) ([]models.Outage, error)
	Tickets(ctx context.Context) ([]models.Ticket, error)
	Alerts(ctx context.Context) ([]models.MonitoringAlert, error)
	Changes(ctx context.Context) ([]models.Change, error)
	Trends(ctx context.Context, groupBy trend.GroupBy) (trend.Series, error)
	VendorStatus(ctx context.Context) []models.VendorProbeResult
	CreateTicket(ctx context.Context, req dashboard.TicketRequest) (*dashboard.CreatedTicket, error)
}

// SnapshotSource serves refresh cycles.
type SnapshotSource interface {
	Refresh(ctx context.Context) (dashboard.Snapshot, error)
	Latest() (dashboard.Snapshot, bool)
}

// IntegrationStore reads and replaces integration configs.
type IntegrationStore interface {
	Get(ctx context.Context, kind models.IntegrationKind) (models.IntegrationConfig, error)
	Put(ctx context.Context, kind models.IntegrationKind, cfg models.IntegrationConfig) (models.IntegrationConfig, error)
}

// Handler serves the dashboard API.
type Handler struct {
	dashboard    DashboardService
	snapshots    SnapshotSource
	integrations IntegrationStore
	transformer  *ticket.Transformer
	logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc DashboardService, snapshots SnapshotSource, integrations IntegrationStore, transformer *ticket.Transformer, logger *slog.Logger) *Handler {
	return &Handler{
		dashboard:    svc,
		snapshots:    snapshots,
		integrations: integrations,
		transformer:  transformer,
		logger:       logger,
	}
}

// Register mounts the API routes under /api/v1.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.GET("/outages", h.getOutages)
	v1.GET("/tickets", h.getTickets)
	v1.POST("/tickets", h.createTicket)
	v1.GET("/alerts", h.getAlerts)
	v1.GET("/changes", h.getChanges)
	v1.GET("/trends", h.getTrends)
	v1.GET("/vendors", h.getVendors)
	v1.GET("/snapshot", h.getSnapshot)
	v1.POST("/refresh", h.refresh)
	v1.GET("/integrations/:kind", h.getIntegration)
	v1.PUT("/integrations/:kind", h.putIntegration)
}

func (h *Handler) getOutages(c *gin.Context) {
	outages, err := h.dashboard.ActiveOutages(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outages)
}

func (h *Handler) getTickets(c *gin.Context) {
	tickets, err := h.dashboard.Tickets(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *Handler) getAlerts(c *gin.Context) {
	alerts, err := h.dashboard.Alerts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) getChanges(c *gin.Context) {
	list, err := h.dashboard.Changes(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getTrends(c *gin.Context) {
	groupBy, err := trend.ParseGroupBy(c.Query("groupBy"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	series, err := h.dashboard.Trends(c.Request.Context(), groupBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (h *Handler) getVendors(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.VendorStatus(c.Request.Context()))
}

// getSnapshot returns the latest stored cycle, running one if none exists yet.
func (h *Handler) getSnapshot(c *gin.Context) {
	if snap, ok := h.snapshots.Latest(); ok {
		c.JSON(http.StatusOK, snap)
		return
	}
	h.refresh(c)
}

func (h *Handler) refresh(c *gin.Context) {
	snap, err := h.snapshots.Refresh(c.Request.Context())
	if errors.Is(err, dashboard.ErrSuperseded) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) createTicket(c *gin.Context) {
	var in ticket.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket request: " + err.Error()})
		return
	}

	created, err := h.dashboard.CreateTicket(c.Request.Context(), h.transformer.Transform(in))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("ticket raised from dashboard",
		"number", created.Number,
		"alert_id", in.AlertID,
	)
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) getIntegration(c *gin.Context) {
	cfg, err := h.integrations.Get(c.Request.Context(), models.IntegrationKind(c.Param("kind")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) putIntegration(c *gin.Context) {
	var cfg models.IntegrationConfig
	// The store applies the per-kind validation rules.
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid integration config: " + err.Error()})
		return
	}

	saved, err := h.integrations.Put(c.Request.Context(), models.IntegrationKind(c.Param("kind")), cfg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, integration.ErrUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validationErrs), errors.Is(err, dashboard.ErrInvalidTicket):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsSoft(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": apperrors.Message(err)})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request cancelled"})
	case errors.Is(err, apperrors.ErrUpstreamUnreachable), errors.Is(err, apperrors.ErrUpstreamRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": apperrors.Message(err)})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// NewRouter builds the gin engine with logging, panic recovery, probes and
// the API routes. metricsHandler is mounted at /metrics when non-nil.
func NewRouter(h *Handler, ready func(ctx context.Context) error, metricsHandler http.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(logger), recovery(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if ready != nil {
			if err := ready(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				c.String(http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	h.Register(r)
	return r
}
