// Package recipes talks to the recipe provider's MCP tools. Search returns
// metadata only; Details is the sole source of presentable recipes.
package recipes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"recipeagent"
)

const (
	ToolSearch  = "search_recipes"
	ToolDetails = "get_recipe_details"

	defaultTimeout = 10 * time.Second
)

// ErrToolFailed is returned when the provider reports a failed tool call.
var ErrToolFailed = errors.New("recipe tool call failed")

type caller interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

type Client struct {
	caller  caller
	timeout time.Duration
}

func NewClient(c caller, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{caller: c, timeout: timeout}
}

// SearchInput builds the search_recipes arguments.
func SearchInput(ingredients []string, prefs recipeagent.Preferences, count int) map[string]any {
	in := map[string]any{"query": strings.Join(ingredients, ",")}
	if prefs.Diet != "" {
		in["diet"] = prefs.Diet
	}
	if prefs.Cuisine != "" {
		in["cuisine"] = prefs.Cuisine
	}
	if prefs.MealType != "" {
		in["type"] = prefs.MealType
	}
	if len(prefs.Intolerances) > 0 {
		in["intolerances"] = strings.Join(prefs.Intolerances, ",")
	}
	if count > 0 {
		in["number"] = count
	}
	return in
}

// DetailsInput builds the get_recipe_details arguments.
func DetailsInput(ids []string) map[string]any {
	return map[string]any{"ids": strings.Join(ids, ",")}
}

// Search runs step one: candidate ids and titles for the ingredients.
func (c *Client) Search(ctx context.Context, ingredients []string, prefs recipeagent.Preferences, count int) ([]recipeagent.RecipeSummary, error) {
	payload, err := c.call(ctx, ToolSearch, SearchInput(ingredients, prefs, count))
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []struct {
			ID        flexID `json:"id"`
			Title     string `json:"title"`
			Image     string `json:"image"`
			Thumbnail string `json:"thumbnail"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		// Some providers answer with a bare array.
		if aerr := json.Unmarshal(payload, &out.Results); aerr != nil {
			return nil, fmt.Errorf("parse %s result: %w", ToolSearch, err)
		}
	}

	summaries := make([]recipeagent.RecipeSummary, 0, len(out.Results))
	for _, r := range out.Results {
		if r.ID == "" {
			continue
		}
		thumb := r.Image
		if thumb == "" {
			thumb = r.Thumbnail
		}
		summaries = append(summaries, recipeagent.RecipeSummary{ID: string(r.ID), Title: r.Title, Thumbnail: thumb})
	}
	return summaries, nil
}

// Details runs step two for exactly the given ids. Recipes that fail
// validation are dropped.
func (c *Client) Details(ctx context.Context, ids []string) ([]recipeagent.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	payload, err := c.call(ctx, ToolDetails, DetailsInput(ids))
	if err != nil {
		return nil, err
	}

	raws, err := decodeRecipes(payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s result: %w", ToolDetails, err)
	}

	recipes := make([]recipeagent.Recipe, 0, len(raws))
	for _, raw := range raws {
		r := raw.recipe()
		if err := r.Validate(); err != nil {
			slog.Warn("RECIPES: Dropping invalid recipe", "id", r.ID, "error", err)
			continue
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// call invokes a tool under the client timeout and returns the JSON
// payload, preferring structured content over text content.
func (c *Client) call(ctx context.Context, name string, args map[string]any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.caller.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		slog.Error("RECIPES: Tool call failed", "tool", name, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, recipeagent.Transient(fmt.Errorf("%s: %w", name, err))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("RECIPES: Tool call finished", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "is_error", res.IsError)

	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, name, textOf(res))
	}
	if res.StructuredContent != nil {
		b, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal structured content: %w", name, err)
		}
		return b, nil
	}
	text := strings.TrimSpace(textOf(res))
	if text == "" {
		return nil, fmt.Errorf("%w: %s returned no content", ErrToolFailed, name)
	}
	return []byte(text), nil
}

func textOf(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// flexID accepts ids encoded as JSON numbers or strings.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("recipe id must be a string or number: %s", b)
	}
	if i, err := n.Int64(); err == nil {
		*id = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
		*id = flexID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = flexID(n.String())
	return nil
}
