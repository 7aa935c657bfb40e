package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/metrics"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/suggest"
	"github.com/user/moovierec/internal/utils"
	"golang.org/x/sync/singleflight"
)

// 每个算法返回的最大条数
const recommendLimit = 5

// NearestQuerier 向量近邻查询
type NearestQuerier interface {
	QueryNearest(ctx context.Context, movieID int, source model.Source, k int) ([]int, error)
}

// NeighborStore 评分相似边查询
type NeighborStore interface {
	ListNeighbors(ctx context.Context, movieID, limit int) ([]model.SimilarityEdge, error)
}

// DisplayTitleFetcher 电影展示标题
type DisplayTitleFetcher interface {
	FetchDisplayTitle(ctx context.Context, movieID int) (string, error)
}

// TitleSearch 标题 -> id
type TitleSearch interface {
	Search(ctx context.Context, query string, limit int) ([]int, error)
}

// AggregatorOptions 在线推荐参数
type AggregatorOptions struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Aggregator 把一次推荐请求分发到多个算法，尽力而为地汇总
type Aggregator struct {
	vectors   NearestQuerier
	edges     NeighborStore
	titles    DisplayTitleFetcher
	suggester suggest.Suggester
	resolver  TitleSearch
	timeout   time.Duration
	cache     *utils.TTLCache[[]model.AlgorithmResult]
	group     singleflight.Group
	logger    zerolog.Logger
}

func NewAggregator(
	vectors NearestQuerier,
	edges NeighborStore,
	titles DisplayTitleFetcher,
	suggester suggest.Suggester,
	resolver TitleSearch,
	opts AggregatorOptions,
	logger zerolog.Logger,
) *Aggregator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Aggregator{
		vectors:   vectors,
		edges:     edges,
		titles:    titles,
		suggester: suggester,
		resolver:  resolver,
		timeout:   opts.Timeout,
		cache:     utils.NewTTLCache[[]model.AlgorithmResult](opts.CacheSize, opts.CacheTTL),
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// ValidateAlgorithms 校验算法名，空列表表示全部算法，重复项只保留第一次出现
func ValidateAlgorithms(algorithms []string) ([]string, error) {
	if len(algorithms) == 0 {
		return append([]string(nil), model.Algorithms...), nil
	}
	seen := make(map[string]bool, len(algorithms))
	out := make([]string, 0, len(algorithms))
	for _, name := range algorithms {
		if !isRegistered(name) {
			return nil, fmt.Errorf("%w: %q (allowed: %s)",
				model.ErrUnsupportedAlgorithm, name, strings.Join(model.Algorithms, ", "))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func isRegistered(name string) bool {
	for _, a := range model.Algorithms {
		if a == name {
			return true
		}
	}
	return false
}

// Recommend 各算法并发执行，失败的算法整体省略，输出顺序与请求顺序一致
func (a *Aggregator) Recommend(ctx context.Context, movieID int, algorithms []string) ([]model.AlgorithmResult, error) {
	algorithms, err := ValidateAlgorithms(algorithms)
	if err != nil {
		return nil, err
	}

	key := strconv.Itoa(movieID) + "|" + strings.Join(algorithms, ",")
	if cached, ok := a.cache.Get(key); ok {
		metrics.RecommendCache.WithLabelValues("hit").Inc()
		return cloneResults(cached), nil
	}
	metrics.RecommendCache.WithLabelValues("miss").Inc()

	// 相同请求并发时只计算一次；调用方取消不影响其它等待者
	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		results, cacheable := a.run(context.WithoutCancel(ctx), movieID, algorithms)
		if cacheable {
			a.cache.Set(key, results)
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneResults(v.([]model.AlgorithmResult)), nil
}

func (a *Aggregator) run(ctx context.Context, movieID int, algorithms []string) ([]model.AlgorithmResult, bool) {
	requestID := uuid.New().String()
	logger := a.logger.With().Str("request_id", requestID).Int("movie_id", movieID).Logger()

	type outcome struct {
		ids []int
		err error
	}
	outcomes := make([]outcome, len(algorithms))

	var wg sync.WaitGroup
	for i, name := range algorithms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			done := make(chan outcome, 1)
			go func() {
				ids, err := a.runAlgorithm(actx, name, movieID)
				done <- outcome{ids: ids, err: err}
			}()

			// 不响应 ctx 的实现也不会拖住整个请求
			select {
			case out := <-done:
				outcomes[i] = out
			case <-actx.Done():
				outcomes[i] = outcome{err: fmt.Errorf("algorithm %s: %w", name, actx.Err())}
			}
			metrics.AlgorithmDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}()
	}
	wg.Wait()

	cacheable := true
	results := make([]model.AlgorithmResult, 0, len(algorithms))
	for i, name := range algorithms {
		out := outcomes[i]
		if out.err != nil {
			metrics.AlgorithmFailures.WithLabelValues(name).Inc()
			logger.Warn().Str("algorithm", name).Err(out.err).Msg("推荐算法失败，已省略")
			if !errors.Is(out.err, model.ErrNotFound) {
				cacheable = false
			}
			continue
		}
		results = append(results, model.NewAlgorithmResult(name, out.ids))
	}

	logger.Debug().Int("algorithms", len(algorithms)).Int("returned", len(results)).Msg("推荐完成")
	return results, cacheable
}

func (a *Aggregator) runAlgorithm(ctx context.Context, name string, movieID int) ([]int, error) {
	switch name {
	case model.AlgorithmDummy:
		return dummyRecommendations(movieID), nil
	case model.AlgorithmVectorImage:
		return a.vectors.QueryNearest(ctx, movieID, model.SourceImage, recommendLimit)
	case model.AlgorithmVectorText:
		return a.vectors.QueryNearest(ctx, movieID, model.SourceText, recommendLimit)
	case model.AlgorithmRatingBased:
		return a.ratingBased(ctx, movieID)
	case model.AlgorithmTextSuggestion:
		return a.textSuggestion(ctx, movieID)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedAlgorithm, name)
	}
}

func dummyRecommendations(movieID int) []int {
	ids := make([]int, recommendLimit)
	for i := range ids {
		ids[i] = movieID + i + 1
	}
	return ids
}

// ratingBased 相似度降序，相同时按写入顺序
func (a *Aggregator) ratingBased(ctx context.Context, movieID int) ([]int, error) {
	edges, err := a.edges.ListNeighbors(ctx, movieID, recommendLimit)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("no rating neighbours for movie %d: %w", movieID, model.ErrNotFound)
	}
	ids := make([]int, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.SimilarMovieID)
	}
	return ids, nil
}

// textSuggestion 标题 -> 大模型推荐标题 -> 每个标题取最佳匹配，不去重
func (a *Aggregator) textSuggestion(ctx context.Context, movieID int) ([]int, error) {
	title, err := a.titles.FetchDisplayTitle(ctx, movieID)
	if err != nil {
		return nil, err
	}
	candidates, err := a.suggester.Suggest(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("suggest for %q: %w", title, err)
	}

	ids := make([]int, 0, recommendLimit)
	for _, candidate := range candidates {
		if len(ids) == recommendLimit {
			break
		}
		matches, err := a.resolver.Search(ctx, candidate, 1)
		if err != nil {
			if errors.Is(err, model.ErrInvalidQuery) {
				continue
			}
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		ids = append(ids, matches[0])
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no suggestion for %q resolved to a movie: %w", title, model.ErrNotFound)
	}
	return ids, nil
}

func cloneResults(in []model.AlgorithmResult) []model.AlgorithmResult {
	out := make([]model.AlgorithmResult, len(in))
	for i, r := range in {
		out[i] = model.AlgorithmResult{
			Algorithm: r.Algorithm,
			Items:     append([]model.RecommendedItem(nil), r.Items...),
		}
	}
	return out
}
