package tools

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"

	"recipeagent/tools/storage"
)

// RecipeDetails returns full recipes for a list of ids, in request order.
// Unknown ids are skipped.
type RecipeDetails struct{ state storage.CatalogState }

func NewRecipeDetails(state storage.CatalogState) *RecipeDetails {
	return &RecipeDetails{state: state}
}

func (t *RecipeDetails) Name() string  { return "get_recipe_details" }
func (t *RecipeDetails) Title() string { return "Get Recipe Details" }
func (t *RecipeDetails) Description() string {
	return "Gets full recipes (ingredients, instructions, timings) for recipe ids returned by search_recipes."
}

func (t *RecipeDetails) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"ids": {Type: "string", Description: "Comma separated recipe ids."},
		},
		Required: []string{"ids"},
	}
}

func (t *RecipeDetails) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"recipes": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "object"},
			},
		},
		Required: []string{"recipes"},
	}
}

func (t *RecipeDetails) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	ids := splitList(input["ids"])
	if len(ids) == 0 {
		return nil, errors.New("ids is required")
	}

	recipes, err := loadCatalog(ctx, t.state)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]CatalogRecipe, len(recipes))
	for _, r := range recipes {
		byID[strconv.Itoa(r.ID)] = r
	}

	out := make([]CatalogRecipe, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return map[string]any{"recipes": out}, nil
}
