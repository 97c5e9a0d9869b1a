package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/resilience"
)

// Payload keys written by the indexing pipeline (LangChain layout).
const (
	defaultContentKey  = "page_content"
	defaultMetadataKey = "metadata"
)

type Client struct {
	baseURL     string
	collection  string
	apiKey      string
	contentKey  string
	metadataKey string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	BaseURL     string
	Collection  string
	APIKey      string
	ContentKey  string
	MetadataKey string
	Timeout     time.Duration
	Executor    *resilience.Executor
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	contentKey := opts.ContentKey
	if contentKey == "" {
		contentKey = defaultContentKey
	}
	metadataKey := opts.MetadataKey
	if metadataKey == "" {
		metadataKey = defaultMetadataKey
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		collection:  opts.Collection,
		apiKey:      opts.APIKey,
		contentKey:  contentKey,
		metadataKey: metadataKey,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.Executor,
	}
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.EvidenceItem, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := c.buildFilter(filter); qf != nil {
		reqBody["filter"] = qf
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	resp, err := resilience.Do(ctx, c.executor, "qdrant.search", func(callCtx context.Context) (searchResponse, error) {
		var out searchResponse
		err := c.doJSON(callCtx, http.MethodPost, url, reqBody, &out, "search")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant search", err, resilience.ClassifyHTTPError)
	}

	out := make([]domain.EvidenceItem, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.EvidenceItem{
			Content:  getStringPayload(r.Payload, c.contentKey),
			Metadata: getMapPayload(r.Payload, c.metadataKey),
		})
	}
	return out, nil
}

// Ping checks that the collection exists.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out, "collection info"); err != nil {
		return resilience.WrapTemporary("qdrant ping", err, resilience.ClassifyHTTPError)
	}
	return nil
}

// buildFilter maps conditions onto payload keys nested under the metadata object.
func (c *Client) buildFilter(filter domain.SearchFilter) map[string]any {
	if filter.IsEmpty() {
		return nil
	}
	must := make([]map[string]any, 0, len(filter.Conditions))
	for _, cond := range filter.Conditions {
		key := c.metadataKey + "." + cond.Field
		if cond.Op == domain.FilterEq || cond.Op == "" {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": cond.Value},
			})
			continue
		}
		must = append(must, map[string]any{
			"key":   key,
			"range": map[string]any{string(cond.Op): cond.Value},
		})
	}
	return map[string]any{"must": must}
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getMapPayload(payload map[string]any, key string) map[string]any {
	v, ok := payload[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return v
}
