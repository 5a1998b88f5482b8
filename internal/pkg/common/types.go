package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ingredient 食材（食譜中的一行）
type Ingredient struct {
	Item   string `json:"item" yaml:"item"`
	Amount string `json:"amount" yaml:"amount"`
	Unit   string `json:"unit" yaml:"unit"`
}

// String 以 "amount unit item" 形式輸出
func (i Ingredient) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Amount, i.Unit, i.Item} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// IngredientList 食材列表
// 可從逗號分隔字串、字串陣列或 {item, amount, unit} 物件陣列解析而來
type IngredientList []Ingredient

// UnmarshalJSON 接受三種食材格式
func (l *IngredientList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = IngredientList{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = splitIngredients(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(IngredientList, 0, len(raw))
		for _, r := range raw {
			ing, ok, err := decodeIngredientJSON(r)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, ing)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("ingredients: unsupported JSON shape %q", string(data[:1]))
	}
}

func decodeIngredientJSON(r json.RawMessage) (Ingredient, bool, error) {
	r = bytes.TrimSpace(r)
	if len(r) == 0 {
		return Ingredient{}, false, nil
	}
	if r[0] == '"' {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return Ingredient{}, false, err
		}
		s = strings.TrimSpace(s)
		return Ingredient{Item: s}, s != "", nil
	}

	var obj struct {
		Item   string          `json:"item"`
		Name   string          `json:"name"`
		Amount json.RawMessage `json:"amount"`
		Unit   string          `json:"unit"`
	}
	if err := json.Unmarshal(r, &obj); err != nil {
		return Ingredient{}, false, fmt.Errorf("ingredients: %w", err)
	}
	item := obj.Item
	if item == "" {
		item = obj.Name
	}
	ing := Ingredient{
		Item:   strings.TrimSpace(item),
		Amount: rawScalar(obj.Amount),
		Unit:   strings.TrimSpace(obj.Unit),
	}
	return ing, ing.Item != "", nil
}

// rawScalar 將數字或字串形式的 amount 轉為字串
func rawScalar(r json.RawMessage) string {
	r = bytes.TrimSpace(r)
	if len(r) == 0 || bytes.Equal(r, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(r)
}

// UnmarshalYAML 接受三種食材格式（front matter 使用）
func (l *IngredientList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = splitIngredients(value.Value)
		return nil
	case yaml.SequenceNode:
		out := make(IngredientList, 0, len(value.Content))
		for _, n := range value.Content {
			switch n.Kind {
			case yaml.ScalarNode:
				if s := strings.TrimSpace(n.Value); s != "" {
					out = append(out, Ingredient{Item: s})
				}
			case yaml.MappingNode:
				var obj struct {
					Item   string `yaml:"item"`
					Name   string `yaml:"name"`
					Amount string `yaml:"amount"`
					Unit   string `yaml:"unit"`
				}
				if err := n.Decode(&obj); err != nil {
					return fmt.Errorf("ingredients: %w", err)
				}
				item := obj.Item
				if item == "" {
					item = obj.Name
				}
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, Ingredient{Item: item, Amount: strings.TrimSpace(obj.Amount), Unit: strings.TrimSpace(obj.Unit)})
				}
			default:
				return fmt.Errorf("ingredients: unsupported YAML node at line %d", n.Line)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("ingredients: unsupported YAML node at line %d", value.Line)
	}
}

func splitIngredients(s string) IngredientList {
	out := IngredientList{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Ingredient{Item: part})
		}
	}
	return out
}

// Items 回傳食材名稱列表
func (l IngredientList) Items() []string {
	items := make([]string, 0, len(l))
	for _, ing := range l {
		items = append(items, ing.Item)
	}
	return items
}

// RecipeRecord 回傳給呼叫端的食譜
type RecipeRecord struct {
	Title        string         `json:"title" yaml:"title"`
	Description  string         `json:"description" yaml:"description"`
	Servings     string         `json:"servings" yaml:"servings"`
	PrepTime     string         `json:"prepTime" yaml:"prepTime"`
	CookTime     string         `json:"cookTime" yaml:"cookTime"`
	TotalTime    string         `json:"totalTime" yaml:"totalTime"`
	Difficulty   string         `json:"difficulty" yaml:"difficulty"`
	Ingredients  IngredientList `json:"ingredients" yaml:"ingredients"`
	Instructions []string       `json:"instructions" yaml:"instructions"`
	Cuisine      string         `json:"cuisine" yaml:"cuisine"`
	ImageURL     string         `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
}

// Clone 深拷貝，避免呼叫端共用切片
func (r RecipeRecord) Clone() RecipeRecord {
	out := r
	if r.Ingredients != nil {
		out.Ingredients = append(IngredientList(nil), r.Ingredients...)
	}
	if r.Instructions != nil {
		out.Instructions = append([]string(nil), r.Instructions...)
	}
	return out
}

// Missing 回傳缺少的必要欄位
func (r RecipeRecord) Missing() []string {
	var missing []string
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if len(r.Ingredients) == 0 {
		missing = append(missing, "ingredients")
	}
	if len(r.Instructions) == 0 {
		missing = append(missing, "instructions")
	}
	return missing
}

// PublishedRecipe 內容倉庫中已發佈的食譜文章
type PublishedRecipe struct {
	Slug   string       `json:"slug"`
	Tags   []string     `json:"tags"`
	Recipe RecipeRecord `json:"recipe"`
}
