package query

import "strings"

// Cuisines 可選的料理國別
var Cuisines = []string{
	"American", "Brazilian", "British", "Caribbean", "Chinese", "Ethiopian", "Filipino",
	"French", "Greek", "Indian", "Indonesian", "Irish", "Italian", "Jamaican", "Japanese",
	"Korean", "Lebanese", "Malaysian", "Mediterranean", "Mexican", "Middle Eastern",
	"Moroccan", "Nigerian", "Peruvian", "Polish", "Portuguese", "Russian", "Spanish",
	"Taiwanese", "Thai", "Turkish", "Vietnamese",
}

// Proteins 可選的主要蛋白質
var Proteins = []string{
	"Beef", "Chicken", "Duck", "Eggs", "Fish", "Lamb", "Lentils", "Pork", "Salmon",
	"Seafood", "Shrimp", "Tempeh", "Tofu", "Turkey", "Beans", "None",
}

// Tastes 可選的口味
var Tastes = []string{
	"Bitter", "Creamy", "Herby", "Mild", "Savory", "Smoky", "Sour", "Spicy", "Sweet",
	"Tangy", "Umami", "Zesty",
}

// Ingredients 可選的食材
var Ingredients = []string{
	"avocado", "bacon", "basil", "bell pepper", "black beans", "broccoli", "butter",
	"cabbage", "carrot", "cauliflower", "celery", "cheddar", "chicken", "chickpeas",
	"chili", "cilantro", "cinnamon", "coconut milk", "corn", "cream", "cucumber", "cumin",
	"eggplant", "eggs", "feta", "fish sauce", "flour", "garlic", "ginger", "green beans",
	"honey", "kale", "lemon", "lime", "mint", "mozzarella", "mushroom", "noodles",
	"olive oil", "onion", "oregano", "paprika", "parmesan", "parsley", "pasta", "peanuts",
	"peas", "potato", "quinoa", "rice", "rosemary", "salmon", "scallion", "sesame oil",
	"shrimp", "soy sauce", "spinach", "sweet potato", "thyme", "tofu", "tomato",
	"tortillas", "vinegar", "yogurt", "zucchini",
}

type vocabulary map[string]struct{}

func newVocabulary(words []string) vocabulary {
	v := make(vocabulary, len(words))
	for _, w := range words {
		v[normalizeWord(w)] = struct{}{}
	}
	return v
}

func (v vocabulary) has(word string) bool {
	_, ok := v[normalizeWord(word)]
	return ok
}

var (
	cuisineSet    = newVocabulary(Cuisines)
	proteinSet    = newVocabulary(Proteins)
	tasteSet      = newVocabulary(Tastes)
	ingredientSet = newVocabulary(Ingredients)
)

// IsCuisine 不分大小寫判斷是否為已知料理國別
func IsCuisine(s string) bool { return cuisineSet.has(s) }

// IsProtein 不分大小寫判斷是否為已知蛋白質
func IsProtein(s string) bool { return proteinSet.has(s) }

// IsTaste 不分大小寫判斷是否為已知口味
func IsTaste(s string) bool { return tasteSet.has(s) }

// IsIngredient 不分大小寫判斷是否為已知食材
func IsIngredient(s string) bool { return ingredientSet.has(s) }

func normalizeWord(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
