package preferences

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"recipeagent"
)

// KeywordExtractor derives preference deltas from free text with
// pre-compiled patterns. It performs no I/O.
type KeywordExtractor struct {
	diet        *matcher
	cuisine     *matcher
	mealType    *matcher
	intolerance *matcher
	adds        []*regexp.Regexp
	removes     []*regexp.Regexp
	celiac      *regexp.Regexp
}

// matcher finds mentions of any term in a group and maps them back to the
// canonical value.
type matcher struct {
	re    *regexp.Regexp
	exact []*regexp.Regexp
	terms []term
}

func newMatcher(terms []term) *matcher {
	m := &matcher{terms: terms}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, t.pattern)
		m.exact = append(m.exact, regexp.MustCompile(`^(?:`+t.pattern+`)$`))
	}
	m.re = regexp.MustCompile(`\b(?:` + strings.Join(parts, "|") + `)\b`)
	return m
}

func (m *matcher) alternation() string {
	parts := make([]string, 0, len(m.terms))
	for _, t := range m.terms {
		parts = append(parts, t.pattern)
	}
	return `(` + strings.Join(parts, "|") + `)`
}

func (m *matcher) canonical(word string) string {
	for i, re := range m.exact {
		if re.MatchString(word) {
			return m.terms[i].canonical
		}
	}
	return ""
}

// last returns the canonical value of the last mention that is not negated
// ("not italian", "non-vegetarian").
func (m *matcher) last(text string) string {
	var out string
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		if negated(text, loc[0]) {
			continue
		}
		if c := m.canonical(text[loc[0]:loc[1]]); c != "" {
			out = c
		}
	}
	return out
}

func negated(text string, start int) bool {
	before := text[max(0, start-5):start]
	return strings.HasSuffix(before, "not ") || strings.HasSuffix(before, "non-") ||
		strings.HasSuffix(before, "non ") || strings.HasSuffix(before, "no ")
}

func NewKeywordExtractor() *KeywordExtractor {
	intolerance := newMatcher(intolerances)
	x := intolerance.alternation()

	return &KeywordExtractor{
		diet:        newMatcher(diets),
		cuisine:     newMatcher(cuisines),
		mealType:    newMatcher(mealTypes),
		intolerance: intolerance,
		adds: []*regexp.Regexp{
			regexp.MustCompile(`\b` + x + `[- ]free\b`),
			regexp.MustCompile(`\bwithout (?:any )?` + x + `\b`),
			regexp.MustCompile(`\bno ` + x + `\b`),
			regexp.MustCompile(`\bavoid(?:ing)? ` + x + `\b`),
			regexp.MustCompile(`\b(?:can't|cannot|can not|don't|do not) (?:eat|have) ` + x + `\b`),
			regexp.MustCompile(`\ballerg(?:ic|y) to ` + x + `\b`),
			regexp.MustCompile(`\b` + x + ` (?:allergy|allergies|intolerance|intolerant|sensitivity)\b`),
			regexp.MustCompile(`\bintolerant to ` + x + `\b`),
		},
		removes: []*regexp.Regexp{
			regexp.MustCompile(`\bcan (?:now )?(?:eat|have) ` + x + ` (?:now|again)\b`),
			regexp.MustCompile(`\bcan now (?:eat|have) ` + x + `\b`),
			regexp.MustCompile(`\bno longer (?:allergic|intolerant|sensitive) to ` + x + `\b`),
			regexp.MustCompile(`\bnot (?:allergic|intolerant|sensitive) to ` + x + ` any ?more\b`),
			regexp.MustCompile(`\b` + x + ` is (?:fine|ok|okay) (?:now|again)\b`),
			regexp.MustCompile(`\bremove ` + x + ` from my (?:intolerances|allergies|restrictions)\b`),
		},
		celiac: regexp.MustCompile(`\bc(?:o)?eliac\b`),
	}
}

// Extract returns the preference changes stated in text. Removals are only
// produced by an explicit negation and only for intolerances already in
// prior; anything ambiguous is ignored.
func (e *KeywordExtractor) Extract(ctx context.Context, text string, prior recipeagent.Preferences) (recipeagent.PreferenceDelta, error) {
	t := normalizeText(text)
	var d recipeagent.PreferenceDelta
	if t == "" {
		return d, nil
	}

	removed := map[string]bool{}
	for _, re := range e.removes {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			c := e.intolerance.canonical(m[1])
			if c == "" || removed[c] || !slices.Contains(prior.Intolerances, c) {
				continue
			}
			removed[c] = true
			d.RemoveIntolerances = append(d.RemoveIntolerances, c)
		}
	}

	added := map[string]bool{}
	addIntolerance := func(c string) {
		if c == "" || added[c] || removed[c] {
			return
		}
		added[c] = true
		d.AddIntolerances = append(d.AddIntolerances, c)
	}
	for _, re := range e.adds {
		for _, m := range re.FindAllStringSubmatch(t, -1) {
			addIntolerance(e.intolerance.canonical(m[1]))
		}
	}
	if e.celiac.MatchString(t) {
		addIntolerance("gluten")
	}

	d.Diet = e.diet.last(t)
	d.Cuisine = e.cuisine.last(t)
	d.MealType = e.mealType.last(t)
	return d, nil
}

func normalizeText(s string) string {
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
