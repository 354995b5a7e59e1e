package tools

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"recipeagent/tools/storage"
)

const (
	defaultSearchNumber = 10
	maxSearchNumber     = 100
)

// RecipeSearch ranks catalog recipes by how many of the requested
// ingredients they use. It returns metadata only.
type RecipeSearch struct{ state storage.CatalogState }

func NewRecipeSearch(state storage.CatalogState) *RecipeSearch { return &RecipeSearch{state: state} }

func (t *RecipeSearch) Name() string  { return "search_recipes" }
func (t *RecipeSearch) Title() string { return "Search Recipes" }
func (t *RecipeSearch) Description() string {
	return "Finds recipes that use the given ingredients, optionally filtered by diet, cuisine, meal type and intolerances. Returns ids and titles only; call get_recipe_details for the full recipes."
}

func (t *RecipeSearch) InputSchema() *jsonschema.Schema {
	minNumber, maxNumber := 1.0, float64(maxSearchNumber)
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":        {Type: "string", Description: "Comma separated ingredients."},
			"diet":         {Type: "string"},
			"cuisine":      {Type: "string"},
			"type":         {Type: "string", Description: "Meal type, e.g. breakfast, dinner, dessert."},
			"intolerances": {Type: "string", Description: "Comma separated intolerances to exclude."},
			"number":       {Type: "integer", Minimum: &minNumber, Maximum: &maxNumber},
		},
		Required: []string{"query"},
	}
}

func (t *RecipeSearch) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"results": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"id":    {Type: "integer"},
						"title": {Type: "string"},
						"image": {Type: "string"},
					},
				},
			},
			"totalResults": {Type: "integer"},
		},
		Required: []string{"results", "totalResults"},
	}
}

type SearchResult struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
}

func (t *RecipeSearch) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	recipes, err := loadCatalog(ctx, t.state)
	if err != nil {
		return nil, err
	}

	ingredients := splitList(input["query"])
	diet, _ := input["diet"].(string)
	cuisine, _ := input["cuisine"].(string)
	mealType, _ := input["type"].(string)
	exclude := splitList(input["intolerances"])

	number := defaultSearchNumber
	if n, ok := input["number"].(float64); ok && n >= 1 {
		number = min(int(n), maxSearchNumber)
	}

	type scored struct {
		recipe CatalogRecipe
		score  int
	}
	var matches []scored
	for _, r := range recipes {
		if !dietMatches(r.Diets, diet) || !listMatches(r.Cuisines, cuisine) || !mealTypeMatches(r.DishTypes, mealType) {
			continue
		}
		if slices.ContainsFunc(exclude, func(x string) bool { return containsFold(r.Contains, x) }) {
			continue
		}
		score := ingredientScore(r, ingredients)
		if len(ingredients) > 0 && score == 0 {
			continue
		}
		matches = append(matches, scored{recipe: r, score: score})
	}

	slices.SortStableFunc(matches, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.recipe.ID, b.recipe.ID)
	})

	results := make([]SearchResult, 0, min(number, len(matches)))
	for _, m := range matches[:min(number, len(matches))] {
		results = append(results, SearchResult{ID: m.recipe.ID, Title: m.recipe.Title, Image: m.recipe.Image})
	}
	return map[string]any{"results": results, "totalResults": len(matches)}, nil
}

func dietMatches(diets []string, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return true
	}
	// "lacto ovo vegetarian" satisfies "vegetarian"; vegan satisfies both.
	for _, d := range diets {
		d = strings.ToLower(d)
		if strings.Contains(d, want) || (d == "vegan" && strings.Contains(want, "vegetarian")) {
			return true
		}
	}
	return false
}

func listMatches(list []string, want string) bool {
	want = strings.TrimSpace(want)
	return want == "" || containsFold(list, want)
}

func mealTypeMatches(dishTypes []string, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	switch want {
	case "":
		return true
	case "lunch", "dinner":
		return containsFold(dishTypes, want) || containsFold(dishTypes, "main course")
	}
	return containsFold(dishTypes, want)
}

// ingredientScore counts the requested ingredients the recipe uses.
func ingredientScore(r CatalogRecipe, ingredients []string) int {
	score := 0
	for _, want := range ingredients {
		stem := singular(want)
		for _, have := range r.ExtendedIngredients {
			if strings.Contains(strings.ToLower(have.Name), stem) {
				score++
				break
			}
		}
	}
	return score
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "oes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
