package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"ai-chef/internal/pkg/common"

	"gopkg.in/yaml.v3"
)

var errNoFrontMatter = errors.New("no front matter block")

// postMeta 文章 front matter 欄位
type postMeta struct {
	Slug  string   `json:"slug" yaml:"slug"`
	Tags  []string `json:"tags" yaml:"tags"`
	Draft bool     `json:"draft" yaml:"draft"`
	Image string   `json:"image" yaml:"image"`

	common.RecipeRecord `yaml:",inline"`
}

// supported 可解析的副檔名
func supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".mdx", ".json":
		return true
	}
	return false
}

// parsePost 解析單一檔案，draft 文章回傳 false
func parsePost(name string, data []byte) (common.PublishedRecipe, bool, error) {
	var meta postMeta

	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &meta); err != nil {
			return common.PublishedRecipe{}, false, fmt.Errorf("%s: %w", name, err)
		}
	default:
		block, err := frontMatter(data)
		if err != nil {
			return common.PublishedRecipe{}, false, fmt.Errorf("%s: %w", name, err)
		}
		if err := yaml.Unmarshal(block, &meta); err != nil {
			return common.PublishedRecipe{}, false, fmt.Errorf("%s: %w", name, err)
		}
	}

	if meta.Draft {
		return common.PublishedRecipe{}, false, nil
	}

	slug := meta.Slug
	if slug == "" {
		base := path.Base(name)
		slug = strings.TrimSuffix(base, path.Ext(base))
	}

	recipe := meta.RecipeRecord
	if recipe.ImageURL == "" {
		recipe.ImageURL = meta.Image
	}
	if recipe.Ingredients == nil {
		recipe.Ingredients = common.IngredientList{}
	}

	tags := make([]string, 0, len(meta.Tags))
	for _, t := range meta.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return common.PublishedRecipe{Slug: slug, Tags: tags, Recipe: recipe}, true, nil
}

// frontMatter 取出開頭 --- 與下一個 --- 之間的 YAML
func frontMatter(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, errNoFrontMatter
	}
	rest := data[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end == -1 {
		return nil, errNoFrontMatter
	}
	return rest[:end+1], nil
}
