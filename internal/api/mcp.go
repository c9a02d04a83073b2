package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docvault/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. UserID fixes the owner
// for the whole session: stdio MCP has one local user.
type MCPDeps struct {
	Store    *storage.Store
	Searcher Searcher
	UserID   string
}

// NewMCPServer registers the document tools on an MCP server.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docvault",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docvault — question answering over the user's uploaded documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Answer a question from the content of the user's uploaded documents, with cited sources."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the user's uploaded documents, most recent first."),
		),
		mcpListDocuments(deps),
	)

	return s
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		res, err := deps.Searcher.Search(ctx, deps.UserID, question, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Store.ListDocuments(deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}

		type docResult struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			UploadedAt string `json:"uploaded_at"`
		}
		results := make([]docResult, len(docs))
		for i, d := range docs {
			results[i] = docResult{ID: d.ID, Name: d.Name, UploadedAt: d.UploadedAt.Format(time.RFC3339)}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
