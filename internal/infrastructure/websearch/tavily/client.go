package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.tavily.com"

type Options struct {
	BaseURL     string
	APIKey      string
	MaxResults  int
	SearchDepth string
	Timeout     time.Duration
	Executor    *resilience.Executor
}

type Client struct {
	baseURL     string
	apiKey      string
	maxResults  int
	searchDepth string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	depth := opts.SearchDepth
	if depth == "" {
		depth = "basic"
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		maxResults:  maxResults,
		searchDepth: depth,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.Executor,
	}
}

// Search returns Tavily results as evidence: content plus title, url and score metadata.
func (c *Client) Search(ctx context.Context, query string) ([]domain.EvidenceItem, error) {
	if c.apiKey == "" {
		return nil, errors.New("tavily api key is not configured")
	}
	resp, err := resilience.Do(ctx, c.executor, "tavily.search", func(callCtx context.Context) (searchResponse, error) {
		return c.search(callCtx, query)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("tavily search", err, resilience.ClassifyHTTPError)
	}

	items := make([]domain.EvidenceItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		items = append(items, domain.EvidenceItem{
			Content: r.Content,
			Metadata: map[string]any{
				"title": r.Title,
				"url":   r.URL,
				"score": r.Score,
			},
		})
	}
	return items, nil
}

func (c *Client) search(ctx context.Context, query string) (searchResponse, error) {
	body, err := json.Marshal(searchRequest{
		Query:       query,
		SearchDepth: c.searchDepth,
		MaxResults:  c.maxResults,
	})
	if err != nil {
		return searchResponse{}, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return searchResponse{}, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return searchResponse{}, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return searchResponse{}, resilience.NewStatusError("tavily", "search", resp)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return searchResponse{}, fmt.Errorf("decode tavily response: %w", err)
	}
	return out, nil
}
