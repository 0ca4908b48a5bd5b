// Package upstream is the shared HTTP plumbing used by the feed clients:
// authenticated JSON requests with retry, and mapping of transport and status
// failures onto the apperrors taxonomy.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cragr/opsstatus-agent/internal/apperrors"
	"github.com/cragr/opsstatus-agent/internal/models"
)

// maxErrorBody bounds how much of a rejected response is kept in errors.
const maxErrorBody = 2048

// Client issues JSON requests against an external system.
type Client struct {
	HTTPClient  *http.Client
	RetryConfig RetryConfig
	UserAgent   string
	Logger      *slog.Logger
}

// NewClient creates a Client with the given request timeout.
func NewClient(timeout time.Duration, userAgent string, logger *slog.Logger) *Client {
	return &Client{
		HTTPClient:  &http.Client{Timeout: timeout},
		RetryConfig: DefaultRetryConfig(),
		UserAgent:   userAgent,
		Logger:      logger,
	}
}

// Request describes one call.
type Request struct {
	Method      string
	URL         string
	Body        any
	Credentials *models.Credentials
}

// DoJSON sends req with retries and returns the raw response body of the
// first successful attempt.
func (c *Client) DoJSON(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}

	retry := c.RetryConfig
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.Logger.Warn("retrying upstream request",
				"method", req.Method,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}

	var body []byte
	err := WithRetry(ctx, retry, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq, req.Credentials)

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnreachable, err)
		}
		defer resp.Body.Close()

		if err := c.checkResponse(resp, httpReq); err != nil {
			return err
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %v", apperrors.ErrUpstreamUnreachable, err)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// setHeaders sets common headers for API requests.
func (c *Client) setHeaders(req *http.Request, creds *models.Credentials) {
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
}

// checkResponse validates the HTTP response status.
func (c *Client) checkResponse(resp *http.Response, req *http.Request) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	c.Logger.Error("upstream API error",
		"url", req.URL.Redacted(),
		"status_code", resp.StatusCode,
		"response", string(body),
	)

	return &RetryableError{
		Err:        fmt.Errorf("%w: status %d: %s", apperrors.ErrUpstreamRejected, resp.StatusCode, string(body)),
		StatusCode: resp.StatusCode,
	}
}
