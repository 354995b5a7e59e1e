package recipeagent

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation. Stores hand out copies, so a Turn
// is never changed after it has been appended.
type Turn struct {
	Role             Role            `json:"role"`
	Text             string          `json:"text"`
	Ingredients      []string        `json:"ingredients,omitempty"`
	PreferencesDelta PreferenceDelta `json:"preferences_delta"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	t.Ingredients = slices.Clone(t.Ingredients)
	t.PreferencesDelta = t.PreferencesDelta.Clone()
	return t
}

// Preferences is the merged preference state of a session.
type Preferences struct {
	Diet         string   `json:"diet,omitempty"`
	Cuisine      string   `json:"cuisine,omitempty"`
	MealType     string   `json:"meal_type,omitempty"`
	Intolerances []string `json:"intolerances,omitempty"`
}

// PreferenceDelta is the partial update extracted from a single turn.
type PreferenceDelta struct {
	Diet               string   `json:"diet,omitempty"`
	Cuisine            string   `json:"cuisine,omitempty"`
	MealType           string   `json:"meal_type,omitempty"`
	AddIntolerances    []string `json:"add_intolerances,omitempty"`
	RemoveIntolerances []string `json:"remove_intolerances,omitempty"`
}

func (d PreferenceDelta) IsEmpty() bool {
	return d.Diet == "" && d.Cuisine == "" && d.MealType == "" &&
		len(d.AddIntolerances) == 0 && len(d.RemoveIntolerances) == 0
}

func (d PreferenceDelta) Clone() PreferenceDelta {
	d.AddIntolerances = slices.Clone(d.AddIntolerances)
	d.RemoveIntolerances = slices.Clone(d.RemoveIntolerances)
	return d
}

func (p Preferences) Clone() Preferences {
	p.Intolerances = slices.Clone(p.Intolerances)
	return p
}

// Merge applies d on top of p and returns the result. Single-valued fields
// take the delta's value when it is non-empty. Intolerances are unioned and
// only shrink for entries named in RemoveIntolerances, which are applied
// after the additions.
func (p Preferences) Merge(d PreferenceDelta) Preferences {
	out := p.Clone()
	if v := normalize(d.Diet); v != "" {
		out.Diet = v
	}
	if v := normalize(d.Cuisine); v != "" {
		out.Cuisine = v
	}
	if v := normalize(d.MealType); v != "" {
		out.MealType = v
	}

	for _, in := range d.AddIntolerances {
		in = normalize(in)
		if in != "" && !slices.Contains(out.Intolerances, in) {
			out.Intolerances = append(out.Intolerances, in)
		}
	}
	for _, in := range d.RemoveIntolerances {
		in = normalize(in)
		out.Intolerances = slices.DeleteFunc(out.Intolerances, func(s string) bool { return s == in })
	}
	if len(out.Intolerances) == 0 {
		out.Intolerances = nil
	} else {
		slices.Sort(out.Intolerances)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DetectionResult is the filtered output of ingredient detection on one
// image. The zero value means nothing was detected.
type DetectionResult struct {
	Ingredients []string           `json:"ingredients"`
	Confidence  map[string]float64 `json:"confidence_scores"`
	Description string             `json:"description,omitempty"`
}

func (r DetectionResult) Clone() DetectionResult {
	r.Ingredients = slices.Clone(r.Ingredients)
	if r.Confidence != nil {
		c := make(map[string]float64, len(r.Confidence))
		for k, v := range r.Confidence {
			c[k] = v
		}
		r.Confidence = c
	}
	return r
}

// RecipeSummary is the metadata returned by a recipe search. It carries no
// instructions and is never shown to the user on its own.
type RecipeSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// MaxRecipeMinutes bounds prep, cook and their sum.
const MaxRecipeMinutes = 24 * 60

// Recipe is a full recipe as returned by the bulk-detail lookup.
type Recipe struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	PrepMinutes  int      `json:"prep_minutes"`
	CookMinutes  int      `json:"cook_minutes"`
	ReadyMinutes int      `json:"ready_minutes,omitempty"`
	Servings     int      `json:"servings,omitempty"`
	Diets        []string `json:"diets,omitempty"`
	Cuisines     []string `json:"cuisines,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`
}

// Validate checks the time bounds of the recipe.
func (r Recipe) Validate() error {
	if r.ID == "" || r.Title == "" {
		return fmt.Errorf("recipe missing id or title")
	}
	if r.PrepMinutes < 0 || r.PrepMinutes > MaxRecipeMinutes {
		return fmt.Errorf("recipe %s: prep minutes %d out of range", r.ID, r.PrepMinutes)
	}
	if r.CookMinutes < 0 || r.CookMinutes > MaxRecipeMinutes {
		return fmt.Errorf("recipe %s: cook minutes %d out of range", r.ID, r.CookMinutes)
	}
	if r.PrepMinutes+r.CookMinutes > MaxRecipeMinutes {
		return fmt.Errorf("recipe %s: total minutes %d out of range", r.ID, r.PrepMinutes+r.CookMinutes)
	}
	return nil
}

// ImageRef points at an image: either a URL (http, https or s3) or bytes
// that came inline with the request.
type ImageRef struct {
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

func (r *ImageRef) IsZero() bool {
	return r == nil || (r.URL == "" && len(r.Data) == 0)
}

// Request is one inbound conversation turn.
type Request struct {
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	Image     *ImageRef `json:"image,omitempty"`
}

// Response is the structured answer to a Request.
type Response struct {
	SessionID   string      `json:"session_id"`
	Text        string      `json:"text"`
	Ingredients []string    `json:"ingredients"`
	Recipes     []Recipe    `json:"recipes"`
	Preferences Preferences `json:"preferences"`
	ToolsCalled []string    `json:"tools_called"`
	LatencyMs   int64       `json:"latency_ms"`
	Refused     bool        `json:"refused,omitempty"`
	Notices     []string    `json:"notices,omitempty"`
}
