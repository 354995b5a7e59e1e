package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeagent/tools/storage"
)

func TestRegistry_GetTool(t *testing.T) {
	r := NewRegistry(storage.NewTestCatalogState([]byte(testCatalog)))

	tool, err := r.GetTool("search_recipes")
	require.NoError(t, err)
	assert.Equal(t, "search_recipes", tool.Name())

	_, err = r.GetTool("suggest_wine")
	assert.ErrorContains(t, err, `tool "suggest_wine" not found`)

	var names []string
	for _, tool := range r.GetTools() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"get_recipe_details", "search_recipes"}, names)
}

func connect(t *testing.T, catalog storage.CatalogState) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewRegistry(catalog).NewServer("recipe-provider", "test")
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestRegistry_NewServer(t *testing.T) {
	cs := connect(t, storage.NewTestCatalogState([]byte(testCatalog)))
	ctx := context.Background()

	list, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_recipes", "get_recipe_details"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_recipes",
		Arguments: map[string]any{"query": "tomatoes,basil", "number": 1},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok, "structured content should decode to an object, got %T", res.StructuredContent)
	assert.Equal(t, 3.0, structured["totalResults"])

	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var decoded struct {
		Results []SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	assert.Equal(t, []SearchResult{{ID: 101, Title: "Caprese Pasta", Image: "https://img.example/101.jpg"}}, decoded.Results)
}

func TestRegistry_ToolErrorsAreResults(t *testing.T) {
	cs := connect(t, storage.NewTestCatalogStateWithError())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_recipe_details",
		Arguments: map[string]any{"ids": "101"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "read catalog")
}
