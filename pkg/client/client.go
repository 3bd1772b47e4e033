// Package client is a Go client for the SDA calculator HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sda-calculator/api"
	"sda-calculator/core/engine"
	"sda-calculator/core/options"
	"sda-calculator/core/pricing"
	"sda-calculator/internal/errors"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 10 * time.Second

// Client is a resty-backed API client
type Client struct {
	http    *resty.Client
	baseURL string
}

// New creates a client for the API at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := strings.TrimSuffix(baseURL, "/")

	rc := resty.New()
	rc.
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{http: rc, baseURL: base}
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Type       errors.Type
	Detail     string
	Context    map[string]interface{}
	Fields     []errors.FieldError
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d [%s]: %s", e.StatusCode, e.Type, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// Unwrap exposes the error as a domain error so errors.As classifies it
// the same way as a local failure
func (e *APIError) Unwrap() error {
	if e.Type == "" {
		return nil
	}
	de := errors.New(e.Type, e.Detail)
	de.Fields = e.Fields
	de.Context = e.Context
	return de
}

// Calculate prices a request remotely
func (c *Client) Calculate(ctx context.Context, req engine.CalculateRequest) (*pricing.Breakdown, error) {
	result := new(pricing.Breakdown)
	if err := c.do(ctx, http.MethodPost, "/api/v1/sda/calculate", nil, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Options fetches the legal options for an optional stock type and building type
func (c *Client) Options(ctx context.Context, stockType, buildingType string) (*options.Options, error) {
	query := map[string]string{}
	if stockType != "" {
		query["stock_type"] = stockType
	}
	if buildingType != "" {
		query["building_type"] = buildingType
	}

	result := new(options.Options)
	if err := c.do(ctx, http.MethodGet, "/api/v1/sda/options", query, nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health checks the API and its database
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	result := new(api.HealthResponse)
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// DBStatus fetches table counts and the served snapshot
func (c *Client) DBStatus(ctx context.Context) (*api.DBStatusResponse, error) {
	result := new(api.DBStatusResponse)
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/db-status", nil, nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, result interface{}) error {
	apiErr := new(api.ErrorResponse)

	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Internal(fmt.Sprintf("%s %s%s", method, c.baseURL, path), err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		detail := apiErr.Detail
		if detail == "" {
			detail = strings.TrimSpace(resp.String())
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode())
		}
		return &APIError{
			StatusCode: resp.StatusCode(),
			Type:       apiErr.Type,
			Detail:     detail,
			Context:    apiErr.Context,
			Fields:     apiErr.Errors,
		}
	}
	return nil
}
