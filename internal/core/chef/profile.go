package chef

import (
	"strings"

	"ai-chef/internal/core/query"
	"ai-chef/internal/core/similarity"
	"ai-chef/internal/pkg/common"
)

// postProfile 由文章的 cuisine、tags 與食材推出評分特徵
func postProfile(p common.PublishedRecipe) similarity.Profile {
	r := p.Recipe
	profile := similarity.Profile{
		Description: strings.TrimSpace(r.Title + " " + r.Description),
		Ingredients: r.Ingredients.Items(),
	}

	if query.IsCuisine(r.Cuisine) {
		profile.Country = r.Cuisine
	}
	for _, tag := range p.Tags {
		switch {
		case profile.Country == "" && query.IsCuisine(tag):
			profile.Country = tag
		case profile.Protein == "" && query.IsProtein(tag):
			profile.Protein = tag
		case query.IsTaste(tag):
			profile.Taste = append(profile.Taste, tag)
		}
	}

	if profile.Protein == "" {
		profile.Protein = proteinFromIngredients(profile.Ingredients)
	}
	return profile
}

// proteinFromIngredients 食材名稱中出現的第一個蛋白質
func proteinFromIngredients(items []string) string {
	for _, item := range items {
		words := strings.Fields(strings.ToLower(item))
		for _, p := range query.Proteins {
			lp := strings.ToLower(p)
			if lp == "none" {
				continue
			}
			for _, w := range words {
				if w == lp || w+"s" == lp || w == lp+"s" {
					return p
				}
			}
		}
	}
	return ""
}
