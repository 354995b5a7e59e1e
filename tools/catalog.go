package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"recipeagent/tools/storage"
)

// CatalogRecipe is one recipe as stored in the catalog and returned by
// get_recipe_details.
type CatalogRecipe struct {
	ID                  int                 `json:"id"`
	Title               string              `json:"title"`
	Image               string              `json:"image,omitempty"`
	Servings            int                 `json:"servings,omitempty"`
	ReadyInMinutes      int                 `json:"readyInMinutes,omitempty"`
	PreparationMinutes  int                 `json:"preparationMinutes"`
	CookingMinutes      int                 `json:"cookingMinutes"`
	Instructions        string              `json:"instructions"`
	ExtendedIngredients []CatalogIngredient `json:"extendedIngredients"`
	Diets               []string            `json:"diets,omitempty"`
	Cuisines            []string            `json:"cuisines,omitempty"`
	DishTypes           []string            `json:"dishTypes,omitempty"`
	// Contains lists the intolerance groups present in the recipe.
	Contains  []string `json:"contains,omitempty"`
	SourceURL string   `json:"sourceUrl,omitempty"`
}

type CatalogIngredient struct {
	Name     string `json:"name"`
	Original string `json:"original,omitempty"`
}

type catalog struct {
	Recipes []CatalogRecipe `json:"recipes"`
}

func loadCatalog(ctx context.Context, state storage.CatalogState) ([]CatalogRecipe, error) {
	b, err := state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return c.Recipes, nil
}

// splitList accepts a comma separated string or a JSON array and returns
// the trimmed, lower-cased, non-empty entries.
func splitList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case string:
		raw = strings.Split(x, ",")
	case []any:
		for _, e := range x {
			switch s := e.(type) {
			case string:
				raw = append(raw, s)
			case float64:
				raw = append(raw, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
