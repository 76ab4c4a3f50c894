package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Defaults for the web search client.
const (
	DefaultWebTimeout  = 10 * time.Second
	DefaultWebPoolSize = 4
	maxErrorBodyBytes  = 4096
)

// WebSearchConfig configures the HTTP web search client.
type WebSearchConfig struct {
	// Endpoint is the base URL of a SearxNG-compatible search API.
	Endpoint string

	// Timeout bounds a single search request.
	Timeout time.Duration

	// PoolSize is the connection pool size.
	PoolSize int
}

// WebSearchClient queries a SearxNG-compatible JSON search API.
// It implements WebBackend.
type WebSearchClient struct {
	client   *http.Client
	endpoint string
}

var _ WebBackend = (*WebSearchClient)(nil)

// searxResponse is the subset of the SearxNG JSON response we consume.
type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// NewWebSearchClient creates a web search client for the given endpoint.
func NewWebSearchClient(cfg WebSearchConfig) (*WebSearchClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("web search endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid web search endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultWebPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	return &WebSearchClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		endpoint: cfg.Endpoint,
	}, nil
}

// Query performs one search request and returns up to k hits.
func (c *WebSearchClient) Query(ctx context.Context, text string, k int) ([]WebHit, error) {
	reqURL := c.endpoint + "/search?" + url.Values{
		"q":      []string{text},
		"format": []string{"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("web search returned %s: %s", strconv.Itoa(resp.StatusCode), string(body))
	}

	var parsed searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode web search response: %w", err)
	}

	hits := make([]WebHit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, WebHit{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
		if k > 0 && len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Close releases idle connections.
func (c *WebSearchClient) Close() {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
