package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

const (
	serverName    = "filings-rag-assistant"
	serverVersion = "1.0.0"

	toolSearchDocuments = "search_documents"
	toolAsk             = "ask"
)

// Tools exposes the query pipeline as MCP tools.
type Tools struct {
	query  ports.QueryService
	logger *slog.Logger
}

func NewTools(query ports.QueryService, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tools{query: query, logger: logger}
}

// NewServer registers search_documents and ask on a fresh MCP server.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolSearchDocuments,
		mcp.WithDescription("Semantic search over indexed annual report passages. Returns matching passages with their metadata."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
	), tools.SearchDocuments)

	s.AddTool(mcp.NewTool(toolAsk,
		mcp.WithDescription("Answer a question about company filings using the routed retrieval pipeline. The turn is stored in the given session."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Chat session that receives the turn")),
	), tools.Ask)

	return s
}

type searchPayload struct {
	Query   string                `json:"query"`
	Results []domain.EvidenceItem `json:"results"`
}

func (t *Tools) SearchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, err := t.query.Search(ctx, query)
	if err != nil {
		return t.toolError(toolSearchDocuments, err), nil
	}
	if results == nil {
		results = []domain.EvidenceItem{}
	}

	body, err := json.Marshal(searchPayload{Query: query, Results: results})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}

type askPayload struct {
	Source     domain.DataSource `json:"source"`
	Response   string            `json:"response"`
	References []string          `json:"references,omitempty"`
}

func (t *Tools) Ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.query.Generate(ctx, query, sessionID)
	if err != nil {
		return t.toolError(toolAsk, err), nil
	}

	body, err := json.Marshal(askPayload{
		Source:     result.Source,
		Response:   result.Response,
		References: result.References,
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}

// toolError keeps input problems visible to the caller and hides the rest.
func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return mcp.NewToolResultError(err.Error())
	}
	t.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	if domain.IsKind(err, domain.ErrTemporary) {
		return mcp.NewToolResultError("service temporarily unavailable")
	}
	return mcp.NewToolResultError("internal error")
}
