// Package engine provides the public Go SDK for the Atlas retrieval engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const apiKeyHeader = "x-api-key"

// Client is the public SDK client for the Atlas HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one HTTP call. Answers can take a while; the default is
	// 75 seconds.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3001"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 75 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}, nil
}

// SearchRequest is one conversational turn.
type SearchRequest struct {
	Query        string `json:"query"`
	SessionID    string `json:"sessionId,omitempty"`
	SavedCity    string `json:"savedCity,omitempty"`
	SavedArea    string `json:"savedArea,omitempty"`
	SavedVehicle string `json:"savedVehicle,omitempty"`
}

// ContextItem is one chunk the answer was grounded on.
type ContextItem struct {
	Title string  `json:"title"`
	Text  string  `json:"text"`
	City  string  `json:"city,omitempty"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// LockedContext is the city, area and vehicle pinned on the session.
type LockedContext struct {
	City    string `json:"city"`
	Area    string `json:"area"`
	Vehicle string `json:"vehicle"`
}

// SearchResponse is the answer to one turn. Debug is passed through as is.
type SearchResponse struct {
	SessionID     string          `json:"sessionId"`
	Answer        string          `json:"answer"`
	Context       []ContextItem   `json:"context"`
	LockedContext LockedContext   `json:"locked_context"`
	EmergencyMode bool            `json:"emergency_mode,omitempty"`
	Debug         json.RawMessage `json:"debug,omitempty"`
}

// PriceMatch is one price list line behind a quote.
type PriceMatch struct {
	OfficeID string  `json:"office_id"`
	Office   string  `json:"office"`
	City     string  `json:"city"`
	Service  string  `json:"service"`
	Amount   float64 `json:"amount"`
}

// Quote is a resolved price.
type Quote struct {
	Service  string       `json:"service"`
	Amount   float64      `json:"amount"`
	Currency string       `json:"currency"`
	Source   string       `json:"source"`
	Matches  []PriceMatch `json:"matches"`
}

// PriceQuery selects a price. Office may be an id, a display name or an area.
type PriceQuery struct {
	Service string
	City    string
	Office  string
}

// Stats summarizes the loaded knowledge base.
type Stats struct {
	Version  uint64         `json:"version"`
	Chunks   int            `json:"chunks"`
	ByKind   map[string]int `json:"by_kind"`
	ByCity   map[string]int `json:"by_city"`
	Offices  int            `json:"offices"`
	Critical int            `json:"critical_answers"`
	Skipped  []string       `json:"skipped,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"detail"`
	// Answer is set when the server still produced a user facing reply.
	Answer string `json:"answer"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("atlas api %d: %s: %s", e.StatusCode, msg, e.Detail)
	}
	return fmt.Sprintf("atlas api %d: %s", e.StatusCode, msg)
}

// Search answers one turn. An empty session id starts a new conversation with
// a fresh id; pass the returned SessionID to continue it.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search_all", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prices resolves the price of a service.
func (c *Client) Prices(ctx context.Context, q PriceQuery) (*Quote, error) {
	v := url.Values{}
	v.Set("service", q.Service)
	if q.City != "" {
		v.Set("city", q.City)
	}
	if q.Office != "" {
		v.Set("office", q.Office)
	}

	var out Quote
	if err := c.do(ctx, http.MethodGet, "/api/v1/prices?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reload asks the server to re-read its knowledge directory.
func (c *Client) Reload(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodPost, "/admin/reload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
