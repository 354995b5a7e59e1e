package preferences

// term maps the words people use to one canonical value.
type term struct {
	canonical string
	pattern   string
}

var diets = []term{
	{"vegetarian", `vegetarian|veggie`},
	{"vegan", `vegan`},
	{"pescetarian", `pesc[ae]tarian`},
	{"ketogenic", `keto(?:genic)?`},
	{"paleo", `paleo(?:lithic)?`},
	{"primal", `primal`},
	{"whole30", `whole ?30`},
	{"low fodmap", `low[- ]fodmap`},
}

var cuisines = []term{
	{"middle eastern", `middle[- ]eastern`},
	{"latin american", `latin[- ]american|latin`},
	{"eastern european", `eastern[- ]european`},
	{"italian", `italian`},
	{"mexican", `mexican`},
	{"chinese", `chinese`},
	{"japanese", `japanese`},
	{"indian", `indian`},
	{"thai", `thai`},
	{"french", `french`},
	{"greek", `greek`},
	{"spanish", `spanish`},
	{"korean", `korean`},
	{"vietnamese", `vietnamese`},
	{"mediterranean", `mediterranean`},
	{"cajun", `cajun`},
	{"caribbean", `caribbean`},
	{"german", `german`},
	{"british", `british|english`},
	{"irish", `irish`},
	{"african", `african`},
	{"nordic", `nordic|scandinavian`},
	{"southern", `southern`},
	{"jewish", `jewish`},
	{"european", `european`},
	{"american", `american`},
}

var mealTypes = []term{
	{"breakfast", `breakfast|brunch`},
	{"lunch", `lunch`},
	{"dinner", `dinner|supper`},
	{"main course", `main course|main dish|entree`},
	{"side dish", `side dish(?:es)?`},
	{"dessert", `desserts?`},
	{"snack", `snacks?`},
	{"soup", `soups?`},
	{"salad", `salads?`},
	{"appetizer", `appetizers?|starters?`},
	{"beverage", `beverages?|drinks?|smoothies?`},
}

var intolerances = []term{
	{"dairy", `dairy|milk|lactose`},
	{"egg", `eggs?`},
	{"gluten", `gluten`},
	{"grain", `grains?`},
	{"peanut", `peanuts?`},
	{"seafood", `seafood|fish`},
	{"sesame", `sesame`},
	{"shellfish", `shellfish|shrimp|prawns?|crab|lobster`},
	{"soy", `soy|soya`},
	{"sulfite", `sulfites?|sulphites?`},
	{"tree nut", `tree[- ]?nuts?|nuts?|almonds?|walnuts?|cashews?|pecans?`},
	{"wheat", `wheat`},
}
