package coordinator

import "strings"

// knownIngredients holds singular, lower-case names. It is not exhaustive;
// lists introduced with "I have ..." are accepted without it.
var knownIngredients = toSet(
	// produce
	"tomato", "basil", "onion", "garlic", "potato", "sweet potato", "carrot", "celery",
	"pepper", "bell pepper", "chili", "jalapeno", "cucumber", "zucchini", "eggplant",
	"aubergine", "spinach", "kale", "lettuce", "cabbage", "broccoli", "cauliflower",
	"mushroom", "corn", "pea", "green bean", "asparagus", "avocado", "lemon", "lime",
	"orange", "apple", "banana", "berry", "strawberry", "blueberry", "raspberry",
	"mango", "pineapple", "peach", "pear", "grape", "cherry", "leek", "shallot",
	"scallion", "ginger", "parsley", "cilantro", "coriander", "mint", "thyme",
	"rosemary", "oregano", "dill", "sage", "pumpkin", "squash", "beet", "radish",
	"arugula", "olive", "coconut",
	// protein
	"egg", "chicken", "beef", "pork", "lamb", "turkey", "bacon", "ham", "sausage",
	"salmon", "tuna", "cod", "shrimp", "prawn", "tofu", "tempeh", "bean",
	"black bean", "chickpea", "lentil", "fish",
	// dairy
	"milk", "butter", "cheese", "mozzarella", "parmesan", "cheddar", "feta",
	"yogurt", "cream", "sour cream", "ricotta",
	// pantry
	"rice", "pasta", "spaghetti", "noodle", "bread", "tortilla", "flour", "oat",
	"quinoa", "couscous", "sugar", "honey", "olive oil", "oil", "vinegar",
	"soy sauce", "peanut butter", "almond", "walnut", "peanut", "cashew",
	"chocolate", "stock", "broth", "coconut milk", "tomato paste", "curry paste",
)

// cookingWords mark a message as being about food even without an
// ingredient in it. Entries are regular expression fragments; the gate adds
// the regular inflections (s, es, ed, ing, er, ers, en), so irregular forms
// are spelled out.
var cookingWords = []string{
	"recipe", "cook", `bak(?:e|es|ed|ing|er|ery)`, "roast", "grill", "fry", "fried", "fries",
	"boil", "simmer", "meal", "dinner", "lunch", "breakfast", "brunch", "supper", "dessert",
	"snack", "dish", "ingredient", "fridge", "pantry", "pantries", "leftover", "eat", "ate",
	"food", "hungry", "vegetarian", "vegan", "keto", "paleo", "pescatarian", "gluten", "dairy",
	"lactose", `allerg(?:y|ies|ic)`, `intoleran(?:t|ce|ces)`, "cuisine", "italian", "mexican",
	"indian", "thai", "chinese", "japanese", "french", "greek", "mediterranean", "soup", "salad",
	"spicy", "sweet", "savory", "savoury", "healthy", "calorie", "protein", "kitchen", "menu",
	`[a-z]+-free`,
}

func toSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// singular strips common English plural endings.
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "oes"), strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ies") && len(s) > 4:
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ss"), strings.HasSuffix(s, "us"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

// isKnownIngredient reports whether the phrase, or its last word, names a
// known ingredient.
func isKnownIngredient(phrase string) bool {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return false
	}
	words[len(words)-1] = singular(words[len(words)-1])
	if knownIngredients[strings.Join(words, " ")] {
		return true
	}
	return knownIngredients[words[len(words)-1]]
}
