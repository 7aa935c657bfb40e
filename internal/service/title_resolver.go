package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/user/moovierec/internal/model"
)

const defaultSearchLimit = 10

// TitleSearcher 标题模糊搜索后端
type TitleSearcher interface {
	SearchByTitle(ctx context.Context, query string, limit int) ([]int, error)
}

// TitleResolver 自由文本标题 -> 片库电影 id
type TitleResolver struct {
	searcher TitleSearcher
	cache    *cache.Cache
}

func NewTitleResolver(searcher TitleSearcher) *TitleResolver {
	return &TitleResolver{
		searcher: searcher,
		cache:    cache.New(10*time.Minute, 20*time.Minute),
	}
}

// Search 按相似度从高到低返回最多 limit 个 id，limit <= 0 时取 10
func (r *TitleResolver) Search(ctx context.Context, query string, limit int) ([]int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty title", model.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	key := fmt.Sprintf("%d:%s", limit, query)
	if v, ok := r.cache.Get(key); ok {
		return append([]int(nil), v.([]int)...), nil
	}

	ids, err := r.searcher.SearchByTitle(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	r.cache.SetDefault(key, append([]int(nil), ids...))
	return ids, nil
}
