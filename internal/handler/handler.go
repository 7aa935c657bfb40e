package handler

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/service"
)

// Recommender 在线推荐
type Recommender interface {
	Recommend(ctx context.Context, movieID int, algorithms []string) ([]model.AlgorithmResult, error)
}

// TitleSearcher 标题搜索
type TitleSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]int, error)
}

// MovieLookup 电影元数据读取
type MovieLookup interface {
	FindByID(ctx context.Context, id int) (*model.Movie, error)
	FindByIDs(ctx context.Context, ids []int) (map[int]model.Movie, error)
	FindLink(ctx context.Context, id int) (*model.Link, error)
}

// Ingester 向量入库
type Ingester interface {
	Run(ctx context.Context, opts service.RunOptions) (*service.IngestionReport, error)
}

// Rebuilder 评分相似度重建
type Rebuilder interface {
	Rebuild(ctx context.Context, opts service.RebuildOptions) (*service.RebuildReport, error)
}

// Handler HTTP 处理器
type Handler struct {
	recommender Recommender
	titles      TitleSearcher
	movies      MovieLookup
	ingester    Ingester
	rebuilder   Rebuilder
	ping        func(ctx context.Context) error
	jobs        *jobRunner
	logger      zerolog.Logger
}

// Deps 处理器依赖
type Deps struct {
	Recommender Recommender
	Titles      TitleSearcher
	Movies      MovieLookup
	Ingester    Ingester
	Rebuilder   Rebuilder
	Ping        func(ctx context.Context) error
}

// NewHandler 创建处理器，baseCtx 取消时后台任务随之取消
func NewHandler(baseCtx context.Context, deps Deps, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("component", "http").Logger()
	return &Handler{
		recommender: deps.Recommender,
		titles:      deps.Titles,
		movies:      deps.Movies,
		ingester:    deps.Ingester,
		rebuilder:   deps.Rebuilder,
		ping:        deps.Ping,
		jobs:        newJobRunner(baseCtx, logger),
		logger:      logger,
	}
}

// Wait 等待所有后台任务结束
func (h *Handler) Wait() {
	h.jobs.wait()
}
