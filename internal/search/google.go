// Package search implements the metered external search capability against a
// Custom Search JSON endpoint.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
)

// Config controls the search client.
type Config struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	EngineID string `mapstructure:"engine_id" yaml:"engine_id"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration
}

// Client implements core.Searcher. Every call costs money; the budget gate
// lives in the search sub-queue, not here.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("search api key is required")
	}
	if strings.TrimSpace(cfg.EngineID) == "" {
		return nil, fmt.Errorf("search engine id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, client: httpClient, logger: logger}, nil
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search issues one metered query for the employer and returns the top
// organic hit, if any.
func (c *Client) Search(ctx context.Context, name, postalCode string) (core.SearchResult, error) {
	query := BuildQuery(name, postalCode)

	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("cx", c.cfg.EngineID)
	q.Set("q", query)
	q.Set("num", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return core.SearchResult{}, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.SearchResult{}, fmt.Errorf("search %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return core.SearchResult{}, fmt.Errorf("search %q: unexpected status %d", name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.SearchResult{}, fmt.Errorf("read search response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Items) == 0 {
		return core.SearchResult{Found: false}, nil
	}

	top := parsed.Items[0]
	c.logger.Debug("search hit",
		zap.String("employer", name),
		zap.String("link", top.Link))
	return core.SearchResult{
		Found:   true,
		Website: top.Link,
		Title:   top.Title,
		Address: top.Snippet,
	}, nil
}

// BuildQuery is the canonical query shape recorded in the spend log: quoted
// employer name, postal code when known, contact keywords.
func BuildQuery(name, postalCode string) string {
	parts := []string{fmt.Sprintf("%q", name)}
	if postalCode != "" {
		parts = append(parts, postalCode)
	}
	parts = append(parts, "kontakt", "impressum")
	return strings.Join(parts, " ")
}
