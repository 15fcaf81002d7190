// Package spxlab is a Go client for the spx-server REST API.
package spxlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spxlab/internal/httpapi"
)

// ErrNotFound is returned when the server has no data for a request.
var ErrNotFound = errors.New("no data")

// Response types are shared with the server.
type (
	BacktestResponse = httpapi.BacktestResponse
	StatusResponse   = httpapi.StatusResponse
	PeriodsResponse  = httpapi.PeriodsResponse
)

// BacktestParams are the optional query parameters of a backtest. Zero values
// are omitted and the server applies its defaults.
type BacktestParams struct {
	Strategy     string
	ShortWindow  int
	LongWindow   int
	DurationDays int
	Period       string // preset key such as "1y" or "max"; overrides DurationDays
	InitialCash  float64
	Anchor       time.Time
}

func (p BacktestParams) values() url.Values {
	q := url.Values{}
	if p.Strategy != "" {
		q.Set("strategy", p.Strategy)
	}
	if p.ShortWindow != 0 {
		q.Set("short", strconv.Itoa(p.ShortWindow))
	}
	if p.LongWindow != 0 {
		q.Set("long", strconv.Itoa(p.LongWindow))
	}
	if p.DurationDays != 0 {
		q.Set("days", strconv.Itoa(p.DurationDays))
	}
	if p.Period != "" {
		q.Set("period", p.Period)
	}
	if p.InitialCash != 0 {
		q.Set("cash", strconv.FormatFloat(p.InitialCash, 'f', -1, 64))
	}
	if !p.Anchor.IsZero() {
		q.Set("anchor", p.Anchor.Format("2006-01-02"))
	}
	return q
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spx-server: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 replies to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client provides a Go SDK for interacting with the spx-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new spx-server API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Backtest runs a backtest on the server.
func (c *Client) Backtest(ctx context.Context, p BacktestParams) (*BacktestResponse, error) {
	var out BacktestResponse
	if err := c.do(ctx, http.MethodGet, "/api/backtest", p.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reports the server's current data source and coverage.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Periods lists the duration presets.
func (c *Client) Periods(ctx context.Context) (*PeriodsResponse, error) {
	var out PeriodsResponse
	if err := c.do(ctx, http.MethodGet, "/api/periods", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCache asks the server to drop its cached history. It reports
// whether a cache was configured.
func (c *Client) InvalidateCache(ctx context.Context) (bool, error) {
	var out map[string]bool
	if err := c.do(ctx, http.MethodPost, "/api/cache/invalidate", nil, &out); err != nil {
		return false, err
	}
	return out["invalidated"], nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e httpapi.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
