// Package firecrawl is a client for the Firecrawl extract and search APIs.
// It implements gateway.Extractor and gateway.Searcher.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/routesmith/internal/gateway"
)

const (
	DefaultBaseURL      = "https://api.firecrawl.dev"
	defaultTimeout      = 60 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Extraction job states reported by GET /v1/extract/{id}.
const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
	statusCancelled  = "cancelled"
)

// ErrNoAPIKey is returned by RequireKey.
var ErrNoAPIKey = errors.New("firecrawl api key is not set")

// Client talks to a Firecrawl API server.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// New creates a Firecrawl client. An empty baseURL uses DefaultBaseURL.
func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		pollInterval: defaultPollInterval,
	}
}

type extractRequest struct {
	URLs   []string        `json:"urls"`
	Prompt string          `json:"prompt,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

type extractResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Extract starts an extraction job and polls it until it finishes or ctx ends.
// Provider-side failures are reported as ExtractResult{Success: false} with
// Firecrawl's message; transport and decoding problems are errors.
func (c *Client) Extract(ctx context.Context, req gateway.ExtractRequest) (gateway.ExtractResult, error) {
	var started extractResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/extract", extractRequest{
		URLs:   req.URLs,
		Prompt: req.Prompt,
		Schema: req.Schema,
	}, &started)
	if err != nil {
		return gateway.ExtractResult{}, err
	}
	if !started.Success {
		return failed(started.Error, status), nil
	}

	// Some deployments answer synchronously.
	if started.ID == "" || started.Status == statusCompleted {
		return gateway.ExtractResult{Success: true, Data: started.Data}, nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var job extractResponse
		status, err := c.do(ctx, http.MethodGet, "/v1/extract/"+started.ID, nil, &job)
		if err != nil {
			return gateway.ExtractResult{}, err
		}
		if !job.Success {
			return failed(job.Error, status), nil
		}

		switch job.Status {
		case statusCompleted:
			return gateway.ExtractResult{Success: true, Data: job.Data}, nil
		case statusFailed, statusCancelled:
			return failed(job.Error, status), nil
		}

		select {
		case <-ctx.Done():
			return gateway.ExtractResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func failed(msg string, status int) gateway.ExtractResult {
	if msg == "" {
		msg = fmt.Sprintf("firecrawl extraction failed (HTTP %d)", status)
	}
	return gateway.ExtractResult{Success: false, Error: msg}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
}

// Search runs a web search. No hits is an empty, non-nil slice.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]gateway.SearchResult, error) {
	var resp searchResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/search", searchRequest{Query: query, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return nil, fmt.Errorf("firecrawl search: %s", msg)
	}

	results := make([]gateway.SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		results = append(results, gateway.SearchResult{
			Title:   d.Title,
			URL:     d.URL,
			Snippet: d.Description,
		})
	}
	return results, nil
}

// do sends a JSON request and decodes the JSON reply into out. Firecrawl puts
// its error message in the body for 4xx/5xx answers, so those are decoded too
// and left to the caller; only undecodable replies are errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("firecrawl %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("firecrawl %s %s: unexpected status %d: %s",
				method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

var (
	_ gateway.Extractor = (*Client)(nil)
	_ gateway.Searcher  = (*Client)(nil)
)

// RequireKey returns an error when the client would talk to the hosted
// Firecrawl service without an API key. Self-hosted servers may not need one.
func (c *Client) RequireKey() error {
	if c.apiKey == "" && c.baseURL == DefaultBaseURL {
		return ErrNoAPIKey
	}
	return nil
}
