package service

import (
	"fmt"
	"strings"

	"ai-chef/internal/core/query"
	"ai-chef/internal/pkg/common"
)

const systemPrompt = `You are a professional chef who writes reliable home-cooking recipes.
Reply with exactly one JSON object and nothing else. No markdown, no commentary.`

const recipeSchema = `{
  "title": "string",
  "description": "string, one or two sentences",
  "servings": "string, e.g. \"4\"",
  "prepTime": "string, e.g. \"15 minutes\"",
  "cookTime": "string",
  "totalTime": "string",
  "difficulty": "Easy | Medium | Hard",
  "cuisine": "string",
  "ingredients": [{"item": "string", "amount": "string", "unit": "string"}],
  "instructions": ["string, one step per element"]
}`

// BuildPrompts 依查詢組裝 system 與 user prompt
func BuildPrompts(q query.RecipeQuery) (string, string) {
	var sb strings.Builder

	sb.WriteString("Create an original recipe for this request.\n\n")
	fmt.Fprintf(&sb, "Cuisine: %s\n", q.Country)
	fmt.Fprintf(&sb, "Main protein: %s\n", q.Protein)
	fmt.Fprintf(&sb, "Taste profile: %s\n", strings.Join(q.Taste, ", "))
	fmt.Fprintf(&sb, "Ingredients to use: %s\n", strings.Join(q.Ingredients, ", "))
	fmt.Fprintf(&sb, "Description: %s\n\n", common.CollapseSpaces(q.Description))

	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Use every listed ingredient; pantry staples (salt, pepper, oil, water) may be added\n")
	sb.WriteString("2. Quantities must be concrete, no \"to taste\" for main ingredients\n")
	sb.WriteString("3. Each instruction is a single clear step with times and temperatures where relevant\n")
	sb.WriteString("4. All fields are required; use an empty string when unknown\n\n")
	sb.WriteString("Return JSON with this shape:\n")
	sb.WriteString(recipeSchema)

	return systemPrompt, sb.String()
}
