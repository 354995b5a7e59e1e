package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"recipeagent/tools/storage"
)

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a registry with the recipe tools backed by catalog.
func NewRegistry(catalog storage.CatalogState) *Registry {
	search := NewRecipeSearch(catalog)
	details := NewRecipeDetails(catalog)
	registry := Registry{
		search.Name():  search,
		details.Name(): details,
	}
	return &registry
}

// GetTools returns all tools in the registry sorted by name
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	slices.SortFunc(tools, func(a, b Tool) int {
		if a.Name() < b.Name() {
			return -1
		}
		if a.Name() > b.Name() {
			return 1
		}
		return 0
	})
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("tool %q not found in registry", name)
	}
	return tool, nil
}

// NewServer returns an MCP server exposing every tool in the registry.
func (r *Registry) NewServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	for _, tool := range r.GetTools() {
		server.AddTool(&mcp.Tool{
			Name:         tool.Name(),
			Title:        tool.Title(),
			Description:  tool.Description(),
			InputSchema:  tool.InputSchema(),
			OutputSchema: tool.OutputSchema(),
		}, handler(tool))
	}
	return server
}

// handler adapts a Tool to the MCP call signature. Tool failures are
// reported in the result with IsError set, not as protocol errors.
func handler(tool Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		input := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		out, err := tool.Run(ctx, input)
		if err != nil {
			slog.Error("TOOL: Run failed", "tool", tool.Name(), "error", err)
			return errorResult(err), nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return errorResult(fmt.Errorf("marshal output: %w", err)), nil
		}
		slog.Info("TOOL: Run succeeded", "tool", tool.Name(), "duration_ms", time.Since(start).Milliseconds())
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
			StructuredContent: json.RawMessage(data),
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
