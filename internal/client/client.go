// Package client talks to the weekgrid server over HTTP. HTTPClient satisfies
// the remote interfaces of the tracker and settings packages, so the terminal
// client can run against a server reached over Tailscale.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/weekgrid/internal/models"
	"github.com/claude/weekgrid/internal/settings"
	"github.com/claude/weekgrid/internal/tracker"
	"github.com/claude/weekgrid/internal/week"
	"github.com/google/uuid"
)

// errNotFound marks a 404 response before it is mapped to a domain sentinel.
var errNotFound = errors.New("not found")

const writeAttempts = 3

// HTTPClient calls the weekgrid REST API. The server identifies the caller, so
// the userID arguments of the remote interfaces are ignored.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryDelay time.Duration
}

// Compile-time checks: HTTPClient satisfies the remote interfaces.
var (
	_ tracker.Remote  = (*HTTPClient)(nil)
	_ settings.Remote = (*HTTPClient)(nil)
)

// NewHTTPClient creates an HTTPClient targeting the given base URL. An empty
// apiKey sends no X-API-Key header.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: time.Second,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode >= 300:
		return nil, &statusError{path: path, code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

type statusError struct {
	path string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.path, e.code, e.body)
}

// retryable reports whether a write should be attempted again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return !errors.Is(err, errNotFound)
}

// write sends a request body, retrying up to 3 times with exponential backoff
// on network errors and 5xx responses.
func (c *HTTPClient) write(ctx context.Context, method, path string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpclient: marshal body: %w", err)
	}

	var lastErr error
	for attempt := range writeAttempts {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.do(ctx, method, path, nil, data)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", writeAttempts, lastErr)
}

// FetchWeek retrieves one week. A 404 maps to week.ErrNotFound.
func (c *HTTPClient) FetchWeek(ctx context.Context, _ int, weekNumber int) (*week.Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/weeks/"+strconv.Itoa(weekNumber), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil, week.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec week.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("httpclient: decode week: %w", err)
	}
	return &rec, nil
}

func (c *HTTPClient) FetchWeekIndex(ctx context.Context, _ int) ([]int, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/weeks", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Weeks []int `json:"weeks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode week index: %w", err)
	}
	return resp.Weeks, nil
}

func (c *HTTPClient) UpsertWeek(ctx context.Context, _ int, rec week.Record) (uuid.UUID, error) {
	body, err := c.write(ctx, http.MethodPut, "/api/v1/weeks/"+strconv.Itoa(rec.WeekNumber), rec)
	if err != nil {
		return uuid.Nil, err
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return uuid.Nil, fmt.Errorf("httpclient: decode upsert response: %w", err)
	}
	return resp.ID, nil
}

// FetchSettings retrieves the caller's settings. A 404 maps to settings.ErrNotFound.
func (c *HTTPClient) FetchSettings(ctx context.Context, _ int) (*settings.Settings, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, nil)
	if errors.Is(err, errNotFound) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s settings.Settings
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("httpclient: decode settings: %w", err)
	}
	return &s, nil
}

func (c *HTTPClient) UpsertSettings(ctx context.Context, _ int, s settings.Settings) error {
	_, err := c.write(ctx, http.MethodPut, "/api/v1/settings", s)
	return err
}

type programBody struct {
	StartDate string `json:"start_date"`
}

// FetchProgram retrieves the caller's program. A 404 maps to week.ErrProgramNotSet.
func (c *HTTPClient) FetchProgram(ctx context.Context, _ int) (*week.Program, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/program", nil, nil)
	if errors.Is(err, errNotFound) {
		return nil, week.ErrProgramNotSet
	}
	if err != nil {
		return nil, err
	}

	var resp programBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode program: %w", err)
	}
	start, err := week.ParseDate(resp.StartDate)
	if err != nil {
		return nil, fmt.Errorf("httpclient: program start date: %w", err)
	}
	return &week.Program{StartDate: start}, nil
}

func (c *HTTPClient) UpsertProgram(ctx context.Context, _ int, p week.Program) error {
	_, err := c.write(ctx, http.MethodPut, "/api/v1/program", programBody{StartDate: p.StartDate.Format(week.DateLayout)})
	return err
}

// UpsertMeasurement stores a body measurement and returns its id.
func (c *HTTPClient) UpsertMeasurement(ctx context.Context, _ int, m models.Measurement) (uuid.UUID, error) {
	body, err := c.write(ctx, http.MethodPost, "/api/v1/measurements", m)
	if err != nil {
		return uuid.Nil, err
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return uuid.Nil, fmt.Errorf("httpclient: decode measurement response: %w", err)
	}
	return resp.ID, nil
}

// QueryMeasurements lists measurements in [start, end). An empty metric matches all.
func (c *HTTPClient) QueryMeasurements(ctx context.Context, _ int, metric string, start, end time.Time) ([]models.Measurement, error) {
	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	if metric != "" {
		params.Set("metric", metric)
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/measurements", params, nil)
	if err != nil {
		return nil, err
	}

	var ms []models.Measurement
	if err := json.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("httpclient: decode measurements: %w", err)
	}
	return ms, nil
}
