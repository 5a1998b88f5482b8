// Package similarity 計算查詢與候選食譜之間的相似度分數
package similarity

import (
	"sort"
	"strings"

	"ai-chef/internal/core/query"
)

// 各維度權重，總和為 1.0
const (
	WeightCountry     = 0.20
	WeightProtein     = 0.20
	WeightTaste       = 0.15
	WeightIngredients = 0.30
	WeightDescription = 0.15
)

// Profile 可被評分的食譜特徵
type Profile struct {
	Description string
	Country     string
	Protein     string
	Taste       []string
	Ingredients []string
}

// ProfileFromQuery 將查詢轉為評分特徵
func ProfileFromQuery(q query.RecipeQuery) Profile {
	return Profile{
		Description: q.Description,
		Country:     q.Country,
		Protein:     q.Protein,
		Taste:       q.Taste,
		Ingredients: q.Ingredients,
	}
}

// Breakdown 各維度的原始比例（0..1，未乘權重）
type Breakdown struct {
	Country     float64 `json:"country"`
	Protein     float64 `json:"protein"`
	Taste       float64 `json:"taste"`
	Ingredients float64 `json:"ingredients"`
	Description float64 `json:"description"`
}

// Total 加權總分，限制在 [0, 1]
func (b Breakdown) Total() float64 {
	total := b.Country*WeightCountry +
		b.Protein*WeightProtein +
		b.Taste*WeightTaste +
		b.Ingredients*WeightIngredients +
		b.Description*WeightDescription
	if total < 0 {
		return 0
	}
	if total > 1 {
		return 1
	}
	return total
}

// Score 計算 query 與 candidate 的相似度，純函式
func Score(q, candidate Profile) float64 {
	return Explain(q, candidate).Total()
}

// Explain 回傳各維度的比對結果
func Explain(q, candidate Profile) Breakdown {
	return Breakdown{
		Country:     exactMatch(q.Country, candidate.Country),
		Protein:     exactMatch(q.Protein, candidate.Protein),
		Taste:       intersectionOverUnion(normalizeSet(q.Taste), normalizeSet(candidate.Taste)),
		Ingredients: ingredientCoverage(q.Ingredients, candidate.Ingredients),
		Description: descriptionCoverage(q.Description, candidate.Description),
	}
}

func exactMatch(a, b string) float64 {
	a = strings.Join(strings.Fields(a), " ")
	b = strings.Join(strings.Fields(b), " ")
	if a == "" || !strings.EqualFold(a, b) {
		return 0
	}
	return 1
}

// ingredientCoverage 查詢食材中有多少比例出現在候選食材裡
// 查詢食材的每個 token 都出現在同一條候選食材中才算命中
func ingredientCoverage(wanted, have []string) float64 {
	want := normalizeSet(wanted)
	if len(want) == 0 {
		return 0
	}

	haveTokens := make([]map[string]bool, 0, len(have))
	haveText := make([]string, 0, len(have))
	for _, h := range have {
		haveTokens = append(haveTokens, tokenSet(h))
		haveText = append(haveText, strings.ToLower(h))
	}

	matched := 0
	for w := range want {
		tokens := tokenize(w)
		for i := range haveTokens {
			if containsAll(haveTokens[i], tokens) || (len(tokens) == 0 && strings.Contains(haveText[i], w)) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(want))
}

func containsAll(set map[string]bool, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !set[t] {
			return false
		}
	}
	return true
}

// descriptionCoverage 查詢描述的 token 有多少比例出現在候選描述中
func descriptionCoverage(wanted, have string) float64 {
	want := tokenSet(wanted)
	if len(want) == 0 {
		return 0
	}
	got := tokenSet(have)
	matched := 0
	for t := range want {
		if got[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}

// Candidate 待排名的候選項目
type Candidate struct {
	Profile    Profile
	UsageCount int64
}

// Match 排名結果，Index 為候選在輸入切片中的位置
type Match struct {
	Index     int
	Score     float64
	Breakdown Breakdown
}

// FindBestMatches 過濾出分數嚴格大於 threshold 的候選並排序
// 依分數遞減，同分時使用次數多者優先，再依輸入順序；limit <= 0 表示不限制
func FindBestMatches(q Profile, candidates []Candidate, threshold float64, limit int) []Match {
	breakdowns := make([]Breakdown, len(candidates))
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		breakdowns[i] = Explain(q, c.Profile)
		scores[i] = breakdowns[i].Total()
	}

	matches := rank(candidates, scores, threshold, limit)
	for i := range matches {
		matches[i].Breakdown = breakdowns[matches[i].Index]
	}
	return matches
}

func rank(candidates []Candidate, scores []float64, threshold float64, limit int) []Match {
	matches := make([]Match, 0)
	for i, s := range scores {
		if s > threshold {
			matches = append(matches, Match{Index: i, Score: s})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		ma, mb := matches[a], matches[b]
		if ma.Score != mb.Score {
			return ma.Score > mb.Score
		}
		return candidates[ma.Index].UsageCount > candidates[mb.Index].UsageCount
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
