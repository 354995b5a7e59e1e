package coordinator

import (
	"regexp"
	"slices"
	"strings"
)

var (
	// leadIn introduces an ingredient list; the list runs to the end of
	// the clause.
	leadIn = regexp.MustCompile(`\b(?:i have|i've got|i got|i've|we have|using|use up|with|leftover|in my (?:fridge|pantry|kitchen)(?: there is| there are| are| is)?|ingredients?:)\s+(.+?)(?:[.?!;]|,\s*(?:give|make|show|find|suggest|what|can|could|please|any|and then)\b|\s+(?:for|to make|into)\b|$)`)

	listSep = regexp.MustCompile(`\s*(?:,|&|\band\b|\bor\b|\bplus\b)\s*`)
	fillers = regexp.MustCompile(`^(?:(?:some|a few|a couple of|a bit of|a|an|the|fresh|leftover|half|\d+[a-z]*|one|two|three|four|five|six|of|cans? of|bunch of|pieces? of|cups? of)\s+)+`)
)

// ParseIngredients returns the ingredients named in text, in order of
// appearance. An explicit list ("I have tomatoes and basil") wins;
// otherwise known ingredient names are picked out of the text.
func ParseIngredients(text string) []string {
	t := strings.ToLower(strings.NewReplacer("’", "'").Replace(text))

	if m := leadIn.FindStringSubmatch(t); m != nil {
		if items := splitItems(m[1]); len(items) > 0 {
			return items
		}
	}
	return scanKnown(t)
}

func splitItems(list string) []string {
	var items []string
	for _, raw := range listSep.Split(list, -1) {
		item := strings.TrimSpace(fillers.ReplaceAllString(strings.TrimSpace(raw), ""))
		if item == "" || strings.HasPrefix(item, "no ") || strings.HasPrefix(item, "not ") ||
			strings.HasPrefix(item, "without ") || len(strings.Fields(item)) > 3 {
			continue
		}
		if !slices.Contains(items, item) {
			items = append(items, item)
		}
	}
	// A lone phrase is only trusted when it names something edible
	// ("I have a gluten allergy" is not a list).
	if len(items) == 1 && !isKnownIngredient(items[0]) {
		return nil
	}
	return items
}

func scanKnown(t string) []string {
	var out []string
	seen := map[string]bool{}
	words := strings.FieldsFunc(t, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '-'
	})
	for i := 0; i < len(words); i++ {
		// Prefer two-word names ("soy sauce", "bell pepper").
		if i+1 < len(words) {
			pair := words[i] + " " + singular(words[i+1])
			if knownIngredients[pair] {
				name := words[i] + " " + words[i+1]
				if !seen[pair] {
					seen[pair] = true
					out = append(out, name)
				}
				i++
				continue
			}
		}
		w := words[i]
		if s := singular(w); knownIngredients[s] && !seen[s] && !negatedAt(words, i) {
			seen[s] = true
			out = append(out, w)
		}
	}
	return out
}

// negatedAt reports whether the word at i follows "no", "without" or
// "not", or is followed by "-free".
func negatedAt(words []string, i int) bool {
	if i > 0 {
		switch words[i-1] {
		case "no", "without", "not":
			return true
		}
	}
	return i+1 < len(words) && words[i+1] == "free"
}
