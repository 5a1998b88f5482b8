// Package query 定義 AI Chef 的結構化查詢，負責驗證、正規化與雜湊
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"ai-chef/internal/pkg/common"
)

// RecipeQuery 使用者送出的食譜查詢
type RecipeQuery struct {
	Description string   `json:"description" validate:"required,min=10,max=500"`
	Country     string   `json:"country" validate:"required,cuisine"`
	Protein     string   `json:"protein" validate:"required,protein"`
	Taste       []string `json:"taste" validate:"required,min=1,max=3,unique_fold,dive,required,taste"`
	Ingredients []string `json:"ingredients" validate:"required,min=3,max=20,unique_fold,dive,required,ingredient"`
}

// Clone 深拷貝
func (q RecipeQuery) Clone() RecipeQuery {
	out := q
	if q.Taste != nil {
		out.Taste = append([]string(nil), q.Taste...)
	}
	if q.Ingredients != nil {
		out.Ingredients = append([]string(nil), q.Ingredients...)
	}
	return out
}

// Normalize 回傳正規化後的查詢
// 文字欄位轉小寫並合併空白；taste 與 ingredients 去重後排序
func Normalize(q RecipeQuery) RecipeQuery {
	return RecipeQuery{
		Description: strings.ToLower(common.CollapseSpaces(q.Description)),
		Country:     strings.ToLower(common.CollapseSpaces(q.Country)),
		Protein:     strings.ToLower(common.CollapseSpaces(q.Protein)),
		Taste:       normalizeSet(q.Taste),
		Ingredients: normalizeSet(q.Ingredients),
	}
}

func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		w := normalizeWord(it)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// canonical 固定欄位順序的序列化格式
type canonical struct {
	Description string   `json:"d"`
	Country     string   `json:"c"`
	Protein     string   `json:"p"`
	Taste       []string `json:"t"`
	Ingredients []string `json:"i"`
}

// Hash 驗證並正規化查詢後，計算 SHA-256 快取鍵
func Hash(q RecipeQuery) (string, error) {
	if err := Validate(q); err != nil {
		return "", err
	}
	return hashNormalized(Normalize(q)), nil
}

func hashNormalized(n RecipeQuery) string {
	data, _ := json.Marshal(canonical{
		Description: n.Description,
		Country:     n.Country,
		Protein:     n.Protein,
		Taste:       n.Taste,
		Ingredients: n.Ingredients,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
