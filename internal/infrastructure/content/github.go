package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const fetchConcurrency = 4

// contentItem GitHub Contents API 的項目
type contentItem struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GitHubRepository 透過 GitHub Contents API 讀取文章
type GitHubRepository struct {
	cfg     config.ContentConfig
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
	group   singleflight.Group

	mu        sync.RWMutex
	snapshot  []common.PublishedRecipe
	fetchedAt time.Time
}

// NewGitHubRepository 創建 GitHub 倉庫
func NewGitHubRepository(cfg config.ContentConfig) *GitHubRepository {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if cfg.Token != "" {
		client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Token))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &GitHubRepository{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// ListRecipes 回傳所有已發佈文章；快照在 cache_ttl 內重複使用
func (r *GitHubRepository) ListRecipes(ctx context.Context) ([]common.PublishedRecipe, error) {
	if posts, ok := r.cached(); ok {
		return posts, nil
	}

	ch := r.group.DoChan("list", func() (interface{}, error) {
		// 使用獨立 context，避免單一呼叫端取消影響共用的刷新
		fetchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return r.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, &common.RepositoryFetchError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, &common.RepositoryFetchError{Err: res.Err}
		}
		return clonePosts(res.Val.([]common.PublishedRecipe)), nil
	}
}

// Invalidate 清除快照
func (r *GitHubRepository) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = nil
	r.fetchedAt = time.Time{}
}

func (r *GitHubRepository) cached() ([]common.PublishedRecipe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.snapshot == nil || r.cfg.CacheTTL <= 0 {
		return nil, false
	}
	if r.now().Sub(r.fetchedAt) >= r.cfg.CacheTTL {
		return nil, false
	}
	return clonePosts(r.snapshot), true
}

func (r *GitHubRepository) refresh(ctx context.Context) ([]common.PublishedRecipe, error) {
	start := time.Now()

	items, err := r.listDirectory(ctx)
	if err != nil {
		return nil, err
	}

	var files []contentItem
	for _, it := range items {
		if it.Type == "file" && supported(it.Name) {
			files = append(files, it)
		}
	}

	parsed := make([]*common.PublishedRecipe, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := r.fetchFile(gctx, f.Path)
			if err != nil {
				return err
			}
			post, ok, err := parsePost(f.Name, data)
			if err != nil {
				common.LogWarn("略過無法解析的食譜文章", zap.String("path", f.Path), zap.Error(err))
				return nil
			}
			if ok {
				parsed[i] = &post
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	posts := make([]common.PublishedRecipe, 0, len(parsed))
	for _, p := range parsed {
		if p != nil {
			posts = append(posts, *p)
		}
	}

	r.mu.Lock()
	r.snapshot = posts
	r.fetchedAt = r.now()
	r.mu.Unlock()

	common.LogInfo("已更新食譜文章快照",
		zap.Int("files", len(files)),
		zap.Int("posts", len(posts)),
		zap.Duration("耗時", time.Since(start)),
	)
	return posts, nil
}

func (r *GitHubRepository) contentsURL(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(r.cfg.Owner), url.PathEscape(r.cfg.Repo), strings.Join(segments, "/"))
}

func (r *GitHubRepository) get(ctx context.Context, p string) (*resty.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := r.client.R().SetContext(ctx)
	if r.cfg.Branch != "" {
		req.SetQueryParam("ref", r.cfg.Branch)
	}
	resp, err := req.Get(r.contentsURL(p))
	if err != nil {
		return nil, fmt.Errorf("failed to send request to GitHub: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d for %s", resp.StatusCode(), p)
	}
	return resp, nil
}

func (r *GitHubRepository) listDirectory(ctx context.Context) ([]contentItem, error) {
	resp, err := r.get(ctx, r.cfg.Path)
	if err != nil {
		return nil, err
	}

	var items []contentItem
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("failed to parse GitHub directory listing: %w", err)
	}
	return items, nil
}

func (r *GitHubRepository) fetchFile(ctx context.Context, p string) ([]byte, error) {
	resp, err := r.get(ctx, p)
	if err != nil {
		return nil, err
	}

	var item contentItem
	if err := json.Unmarshal(resp.Body(), &item); err != nil {
		return nil, fmt.Errorf("failed to parse GitHub file %s: %w", p, err)
	}
	if item.Encoding != "base64" {
		return []byte(item.Content), nil
	}

	raw := strings.NewReplacer("\n", "", "\r", "").Replace(item.Content)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode GitHub file %s: %w", p, err)
	}
	return data, nil
}
