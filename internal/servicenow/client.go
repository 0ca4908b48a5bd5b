// Package servicenow provides a client for the ServiceNow Table API.
package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/upstream"
)

const tablePathPrefix = "/api/now/table/"

// Client handles communication with the ServiceNow Table API.
type Client struct {
	http   *upstream.Client
	logger *slog.Logger
}

// NewClient creates a new ServiceNow API client.
func NewClient(httpClient *upstream.Client, logger *slog.Logger) *Client {
	return &Client{http: httpClient, logger: logger}
}

// CreateIncidentResult contains the result of creating an incident.
type CreateIncidentResult struct {
	SysID  string `json:"sysId"`
	Number string `json:"number"`
}

// QueryTable runs an encoded query against the configured table and returns
// the raw records.
func (c *Client) QueryTable(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error) {
	endpoint, err := tableURL(cfg)
	if err != nil {
		return nil, err
	}
	if query != "" {
		endpoint += "?" + query
	}

	c.logger.Debug("querying ServiceNow table",
		"table", cfg.Table,
		"query", query,
	)

	body, err := c.http.DoJSON(ctx, upstream.Request{
		Method:      http.MethodGet,
		URL:         endpoint,
		Credentials: &creds,
	})
	if err != nil {
		return nil, err
	}

	var listResp models.ServiceNowListResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, apperrors.Malformed("decode %s response: %v", cfg.Table, err)
	}
	// An empty list decodes to a non-nil slice; nil means the key was absent.
	if listResp.Result == nil {
		return nil, apperrors.Malformed("%s response has no result list", cfg.Table)
	}
	return listResp.Result, nil
}

// CreateIncident creates a new record in the configured table and returns
// its identifiers.
func (c *Client) CreateIncident(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, incident models.ServiceNowIncident) (*CreateIncidentResult, error) {
	endpoint, err := tableURL(cfg)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("creating incident in ServiceNow",
		"table", cfg.Table,
		"short_description", incident.ShortDescription,
	)

	body, err := c.http.DoJSON(ctx, upstream.Request{
		Method:      http.MethodPost,
		URL:         endpoint,
		Body:        incident,
		Credentials: &creds,
	})
	if err != nil {
		return nil, err
	}

	var snowResp models.ServiceNowResponse
	if err := json.Unmarshal(body, &snowResp); err != nil {
		return nil, apperrors.Malformed("decode create response: %v", err)
	}
	if snowResp.Result.SysID == "" {
		return nil, apperrors.Malformed("create response has no sys_id")
	}

	return &CreateIncidentResult{
		SysID:  snowResp.Result.SysID,
		Number: snowResp.Result.Number,
	}, nil
}

func tableURL(cfg models.IntegrationConfig) (string, error) {
	if cfg.BaseURL == "" {
		return "", apperrors.ErrConfigurationMissing
	}
	if cfg.Table == "" {
		return "", fmt.Errorf("%w: no table configured", apperrors.ErrConfigurationMissing)
	}
	return strings.TrimRight(cfg.BaseURL, "/") + tablePathPrefix + url.PathEscape(cfg.Table), nil
}
