package service

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/metrics"
	"github.com/user/moovierec/internal/model"
)

// RatingSource 评分流
type RatingSource interface {
	Each(ctx context.Context, fn func(model.Rating) error) error
}

// EdgeStore 相似边整体替换
type EdgeStore interface {
	ReplaceAll(ctx context.Context, edges []model.SimilarityEdge) error
}

// RebuildOptions 重建参数，UserSampleCap <= 0 使用默认值，Seed 为 0 时按时间取种子
type RebuildOptions struct {
	UserSampleCap int   `json:"user_sample_cap" binding:"omitempty,gte=2"`
	Seed          int64 `json:"seed"`
}

// RebuildReport 重建汇总
type RebuildReport struct {
	Ratings      int           `json:"ratings"`
	Users        int           `json:"users"`
	SampledUsers int           `json:"sampled_users"`
	Movies       int           `json:"movies"`
	Edges        int           `json:"edges"`
	Seed         int64         `json:"seed"`
	Dense        bool          `json:"dense"`
	Duration     time.Duration `json:"duration"`
}

// SimilarityBuilder 基于评分的离线相似度全量重建
type SimilarityBuilder struct {
	ratings    RatingSource
	edges      EdgeStore
	defaultCap int
	workers    int
	logger     zerolog.Logger
}

func NewSimilarityBuilder(ratings RatingSource, edges EdgeStore, defaultCap int, logger zerolog.Logger) *SimilarityBuilder {
	if defaultCap < 2 {
		defaultCap = 20000
	}
	return &SimilarityBuilder{
		ratings:    ratings,
		edges:      edges,
		defaultCap: defaultCap,
		workers:    runtime.GOMAXPROCS(0),
		logger:     logger.With().Str("component", "similarity").Logger(),
	}
}

// Rebuild 读取评分 -> 抽样 -> 计算相似度 -> 事务内整体替换。任何一步失败都不会写库
func (b *SimilarityBuilder) Rebuild(ctx context.Context, opts RebuildOptions) (*RebuildReport, error) {
	start := time.Now()
	limit := opts.UserSampleCap
	if limit <= 0 {
		limit = b.defaultCap
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var ratings []model.Rating
	userSet := make(map[int]struct{})
	err := b.ratings.Each(ctx, func(r model.Rating) error {
		ratings = append(ratings, r)
		userSet[r.UserID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read ratings: %w", err)
	}
	if len(userSet) < 2 {
		return nil, fmt.Errorf("%w: %d distinct users", model.ErrNotEnoughData, len(userSet))
	}

	users := make([]int, 0, len(userSet))
	for u := range userSet {
		users = append(users, u)
	}
	sort.Ints(users)
	sampled := SampleUsers(users, limit, seed)
	if len(sampled) < 2 {
		return nil, fmt.Errorf("%w: %d sampled users", model.ErrNotEnoughData, len(sampled))
	}

	b.logger.Info().
		Int("ratings", len(ratings)).
		Int("users", len(users)).
		Int("sampled", len(sampled)).
		Int64("seed", seed).
		Msg("开始计算评分相似度")

	m := NewRatingMatrix(ratings, sampled)
	ratings = nil
	if m.Movies() < 2 {
		return nil, fmt.Errorf("%w: %d movies in sample", model.ErrNotEnoughData, m.Movies())
	}

	edges, err := ComputeEdges(ctx, m, NeighborCount, b.workers)
	if err != nil {
		return nil, fmt.Errorf("compute similarities: %w", err)
	}
	if err := b.edges.ReplaceAll(ctx, edges); err != nil {
		return nil, fmt.Errorf("persist edges: %w", err)
	}

	report := &RebuildReport{
		Users:        len(users),
		SampledUsers: len(sampled),
		Movies:       m.Movies(),
		Edges:        len(edges),
		Seed:         seed,
		Dense:        m.UseDense(),
		Duration:     time.Since(start),
	}
	for _, row := range m.rows {
		report.Ratings += len(row)
	}
	metrics.SimilarityRebuildDuration.Observe(report.Duration.Seconds())
	metrics.SimilarityEdges.Set(float64(report.Edges))

	b.logger.Info().
		Int("movies", report.Movies).
		Int("edges", report.Edges).
		Bool("dense", report.Dense).
		Dur("duration", report.Duration).
		Msg("评分相似度重建完成")
	return report, nil
}

// SampleUsers 从升序用户列表中无放回均匀抽取 limit 个（不足时全部保留），结果升序
func SampleUsers(users []int, limit int, seed int64) []int {
	if len(users) <= limit {
		out := make([]int, len(users))
		copy(out, users)
		return out
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(users))[:limit]
	out := make([]int, limit)
	for i, p := range perm {
		out[i] = users[p]
	}
	sort.Ints(out)
	return out
}

// RebuildScheduler 定时重建
type RebuildScheduler struct {
	builder  *SimilarityBuilder
	interval time.Duration
	opts     RebuildOptions
	logger   zerolog.Logger
}

func NewRebuildScheduler(builder *SimilarityBuilder, interval time.Duration, opts RebuildOptions, logger zerolog.Logger) *RebuildScheduler {
	return &RebuildScheduler{
		builder:  builder,
		interval: interval,
		opts:     opts,
		logger:   logger.With().Str("component", "rebuild-scheduler").Logger(),
	}
}

// Start 启动定时任务，interval 为 0 时不启动；ctx 取消后退出
func (s *RebuildScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	s.logger.Info().Dur("interval", s.interval).Msg("定时重建已启动")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *RebuildScheduler) runOnce(ctx context.Context) {
	if _, err := s.builder.Rebuild(ctx, s.opts); err != nil {
		s.logger.Error().Err(err).Msg("定时重建失败")
	}
}
