// Package monitoring queries the monitoring system's search endpoint for alerts.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/upstream"
)

const searchPath = "/api/v1/search"

// Client runs alert searches.
type Client struct {
	http   *upstream.Client
	logger *slog.Logger
}

// NewClient creates a monitoring client.
func NewClient(httpClient *upstream.Client, logger *slog.Logger) *Client {
	return &Client{http: httpClient, logger: logger}
}

type searchRequest struct {
	Query string `json:"query"`
}

// Search posts query to the search endpoint and returns the flat result list.
// The endpoint may answer with {"results": [...]} or with a bare array.
func (c *Client) Search(ctx context.Context, cfg models.IntegrationConfig, creds models.Credentials, query string) ([]map[string]any, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.ErrConfigurationMissing
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + searchPath

	c.logger.Debug("searching monitoring alerts", "query", query)

	body, err := c.http.DoJSON(ctx, upstream.Request{
		Method:      http.MethodPost,
		URL:         endpoint,
		Body:        searchRequest{Query: query},
		Credentials: &creds,
	})
	if err != nil {
		return nil, err
	}
	return decodeResults(body)
}

func decodeResults(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, apperrors.Malformed("empty search response")
	}

	if trimmed[0] == '[' {
		var rows []map[string]any
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, apperrors.Malformed("decode search results: %v", err)
		}
		return rows, nil
	}

	var wrapped struct {
		Results *[]map[string]any `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, apperrors.Malformed("decode search response: %v", err)
	}
	if wrapped.Results == nil {
		return nil, apperrors.Malformed("search response has no results list")
	}
	return *wrapped.Results, nil
}
