// Package content 讀取已發佈的食譜文章
package content

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// Repository 唯讀的食譜文章來源
type Repository interface {
	ListRecipes(ctx context.Context) ([]common.PublishedRecipe, error)
}

// New 依 content.provider 建立倉庫
func New(cfg config.ContentConfig) (Repository, error) {
	switch strings.ToLower(cfg.Provider) {
	case "github":
		if cfg.Owner == "" || cfg.Repo == "" {
			return nil, fmt.Errorf("content.owner and content.repo are required for the github provider")
		}
		return NewGitHubRepository(cfg), nil
	case "static", "":
		if cfg.StaticFile == "" {
			return NewStaticRepository(nil), nil
		}
		return LoadStaticFile(cfg.StaticFile)
	default:
		return nil, fmt.Errorf("unknown content provider %q", cfg.Provider)
	}
}

// StaticRepository 固定的記憶體內文章列表
type StaticRepository struct {
	posts []common.PublishedRecipe
}

// NewStaticRepository 建立固定列表
func NewStaticRepository(posts []common.PublishedRecipe) *StaticRepository {
	return &StaticRepository{posts: clonePosts(posts)}
}

// LoadStaticFile 從 JSON 檔讀取文章陣列
func LoadStaticFile(path string) (*StaticRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static content file: %w", err)
	}

	var posts []common.PublishedRecipe
	if err := common.ParseJSONStrict(string(data), &posts); err != nil {
		return nil, fmt.Errorf("failed to parse static content file %s: %w", path, err)
	}

	common.LogInfo("已載入靜態食譜文章", zap.String("file", path), zap.Int("count", len(posts)))
	return NewStaticRepository(posts), nil
}

// ListRecipes 回傳副本
func (r *StaticRepository) ListRecipes(ctx context.Context) ([]common.PublishedRecipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, &common.RepositoryFetchError{Err: err}
	}
	return clonePosts(r.posts), nil
}

func clonePosts(posts []common.PublishedRecipe) []common.PublishedRecipe {
	out := make([]common.PublishedRecipe, len(posts))
	for i, p := range posts {
		out[i] = common.PublishedRecipe{
			Slug:   p.Slug,
			Tags:   append([]string(nil), p.Tags...),
			Recipe: p.Recipe.Clone(),
		}
	}
	return out
}
