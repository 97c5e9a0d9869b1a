package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/resilience"
)

// UsageRecorder receives token counts reported by Ollama.
type UsageRecorder interface {
	RecordTokenUsage(model string, promptTokens, completionTokens int)
}

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	usage      UsageRecorder
}

type Options struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
	Executor   *resilience.Executor
	Usage      UsageRecorder
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
		usage:      opts.Usage,
	}
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []domain.OracleMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   json.RawMessage        `json:"format,omitempty"`
	Options  map[string]any         `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

var jsonFormat = json.RawMessage(`"json"`)

// Complete returns free-form text.
func (c *Client) Complete(ctx context.Context, messages []domain.OracleMessage) (string, error) {
	return c.chat(ctx, messages, nil, "chat")
}

// CompleteJSON constrains the model to the schema, or to any JSON object when schema is nil.
func (c *Client) CompleteJSON(ctx context.Context, messages []domain.OracleMessage, schema json.RawMessage) (string, error) {
	format := schema
	if len(format) == 0 {
		format = jsonFormat
	}
	text, err := c.chat(ctx, messages, format, "chat_json")
	if err != nil {
		return "", err
	}
	return extractJSONObject(text), nil
}

func (c *Client) chat(ctx context.Context, messages []domain.OracleMessage, format json.RawMessage, operation string) (string, error) {
	request := chatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   false,
		Format:   format,
		Options:  map[string]any{"temperature": 0},
	}

	response, err := resilience.Do(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (chatResponse, error) {
		var out chatResponse
		err := c.postJSON(callCtx, "/api/chat", request, &out, operation)
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyHTTPError)
	}

	if c.usage != nil {
		c.usage.RecordTokenUsage(c.chatModel, response.PromptEvalCount, response.EvalCount)
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Embedder builds query vectors with the configured embedding model.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	type embedResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	response, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) (embedResponse, error) {
		var out embedResponse
		err := e.client.postJSON(callCtx, "/api/embed", request, &out, "embed")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, resilience.ClassifyHTTPError)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// extractJSONObject trims prose some models wrap around a JSON object.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
