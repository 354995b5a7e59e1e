package recipes

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"recipeagent"
)

// rawRecipe is the provider's recipe shape. Field names follow the
// provider; several fields accept more than one encoding.
type rawRecipe struct {
	ID                  flexID          `json:"id"`
	Title               string          `json:"title"`
	Servings            int             `json:"servings"`
	ReadyInMinutes      int             `json:"readyInMinutes"`
	PreparationMinutes  *int            `json:"preparationMinutes"`
	CookingMinutes      *int            `json:"cookingMinutes"`
	Instructions        json.RawMessage `json:"instructions"`
	ExtendedIngredients []rawIngredient `json:"extendedIngredients"`
	Ingredients         []rawIngredient `json:"ingredients"`
	Diets               []string        `json:"diets"`
	Cuisines            []string        `json:"cuisines"`
	SourceURL           string          `json:"sourceUrl"`
}

// rawIngredient is either a plain string or an object.
type rawIngredient struct {
	text string
}

func (in *rawIngredient) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		in.text = s
		return nil
	}
	var obj struct {
		Original string `json:"original"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	in.text = obj.Original
	if in.text == "" {
		in.text = obj.Name
	}
	return nil
}

func decodeRecipes(payload []byte) ([]rawRecipe, error) {
	var wrapped struct {
		Recipes *[]rawRecipe `json:"recipes"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Recipes != nil {
		return *wrapped.Recipes, nil
	}
	var list []rawRecipe
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}
	var single rawRecipe
	if err := json.Unmarshal(payload, &single); err == nil && single.ID != "" {
		return []rawRecipe{single}, nil
	}
	return nil, errors.New("unrecognised recipe payload")
}

func (r rawRecipe) recipe() recipeagent.Recipe {
	ingredients := r.ExtendedIngredients
	if len(ingredients) == 0 {
		ingredients = r.Ingredients
	}
	var names []string
	for _, in := range ingredients {
		if t := strings.TrimSpace(in.text); t != "" {
			names = append(names, t)
		}
	}

	prep, cook := minutes(r.PreparationMinutes), minutes(r.CookingMinutes)
	// Only the total is known: count it as cooking time.
	if prep == 0 && cook == 0 && r.ReadyInMinutes > 0 {
		cook = r.ReadyInMinutes
	}

	return recipeagent.Recipe{
		ID:           string(r.ID),
		Title:        strings.TrimSpace(r.Title),
		Ingredients:  names,
		Instructions: instructions(r.Instructions),
		PrepMinutes:  prep,
		CookMinutes:  cook,
		ReadyMinutes: max(r.ReadyInMinutes, 0),
		Servings:     max(r.Servings, 0),
		Diets:        r.Diets,
		Cuisines:     r.Cuisines,
		SourceURL:    r.SourceURL,
	}
}

// minutes treats missing and negative values (the provider's "unknown")
// as zero.
func minutes(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

var (
	htmlTag   = regexp.MustCompile(`<[^>]+>`)
	stepSplit = regexp.MustCompile(`\n+|</li>|</p>`)
)

// instructions accepts a string (optionally HTML, one step per line or
// list item), an array of strings, or an array of {step} objects.
func instructions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var steps []string
		for _, part := range stepSplit.Split(s, -1) {
			if p := strings.TrimSpace(htmlTag.ReplaceAllString(part, "")); p != "" {
				steps = append(steps, p)
			}
		}
		return steps
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var steps []string
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			var obj struct {
				Step string `json:"step"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			text = obj.Step
		}
		if t := strings.TrimSpace(text); t != "" {
			steps = append(steps, t)
		}
	}
	return steps
}
