package similarity

import (
	"regexp"
	"strings"
)

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// stopWords 英文常見停用詞，加上食譜文字中的份量單位
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "is": true,
	"it": true, "as": true, "be": true, "was": true, "are": true,
	"my": true, "me": true, "some": true, "something": true, "that": true,
	"this": true, "want": true, "like": true, "make": true, "recipe": true,
	// 份量單位
	"oz": true, "lb": true, "lbs": true, "ml": true, "kg": true, "gram": true,
	"grams": true, "cup": true, "cups": true, "tbsp": true, "tsp": true,
	"tablespoon": true, "tablespoons": true, "teaspoon": true, "teaspoons": true,
	"pinch": true, "clove": true, "cloves": true,
}

// tokenize 轉小寫、去除標點、停用詞、單字元與純數字 token
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) <= 1 || stopWords[word] || isNumeric(word) {
			continue
		}
		tokens = append(tokens, singular(word))
	}
	return tokens
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(s) {
		set[t] = true
	}
	return set
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// singular 粗略的英文單數化，兩邊套用同一規則即可比較
func singular(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && (strings.HasSuffix(w, "oes") || strings.HasSuffix(w, "ches") ||
		strings.HasSuffix(w, "shes") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

// normalizeSet 轉小寫、合併空白後去重
func normalizeSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		w := strings.ToLower(strings.Join(strings.Fields(it), " "))
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// intersectionOverUnion 計算兩個集合的 Jaccard 係數
func intersectionOverUnion(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
