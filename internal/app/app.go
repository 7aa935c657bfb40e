// Package app 组装仓库、编码器和服务，供 server 与 pipeline 两个入口共用
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/config"
	"github.com/user/moovierec/internal/encoder"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/repository"
	"github.com/user/moovierec/internal/service"
	"github.com/user/moovierec/internal/suggest"
	"github.com/user/moovierec/internal/utils"
	"github.com/user/moovierec/internal/vectorstore"
)

// VectorStore 向量读写
type VectorStore interface {
	service.VectorWriter
	service.NearestQuerier
}

// App 已组装好的组件
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Repos      *repository.Repositories
	Vectors    VectorStore
	Mirror     *vectorstore.Mirror // VECTOR_CACHE 关闭时为 nil
	TMDB       *service.TMDBService
	Ingestion  *service.IngestionPipeline
	Similarity *service.SimilarityBuilder
	Titles     *service.TitleResolver
	Aggregator *service.Aggregator
}

// New 连接数据库、迁移并创建所有服务
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	repos := repository.NewRepositories(db)
	if err := repository.Migrate(ctx, db); err != nil {
		repos.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	var (
		vectors VectorStore = repos.Embedding
		mirror  *vectorstore.Mirror
	)
	if cfg.VectorCache {
		mirror = vectorstore.NewMirror(repos.Embedding, logger)
		if err := mirror.Preload(ctx, model.Sources...); err != nil {
			repos.Close()
			return nil, err
		}
		vectors = mirror
	}

	client := utils.NewHTTPClient(30 * time.Second)

	tmdb := service.NewTMDBService(repos.Movie, client, service.TMDBOptions{
		APIKey:    cfg.TMDBAPIKey,
		ImageBase: cfg.TMDBImageBase,
		RateLimit: cfg.TMDBRateLimit,
	}, logger)

	ingestion := service.NewIngestionPipeline(
		repos.Movie,
		tmdb,
		vectors,
		encoder.NewCLIPEncoder(client, cfg.CLIPEndpoint),
		encoder.NewOpenAIEncoder(client, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel),
		cfg.IngestWorkers,
		logger,
	)

	similarity := service.NewSimilarityBuilder(repos.Rating, repos.Similarity, cfg.SimilarityUserCap, logger)
	titles := service.NewTitleResolver(repos.Movie)

	llm, err := suggest.New(client, suggest.Options{
		Provider:      cfg.LLMProvider,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIChatModel,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
	})
	if err != nil {
		repos.Close()
		return nil, err
	}
	suggester := suggest.NewBreakerSuggester(llm, suggest.DefaultBreakerSettings("llm-"+cfg.LLMProvider), logger)

	aggregator := service.NewAggregator(vectors, repos.Similarity, tmdb, suggester, titles, service.AggregatorOptions{
		Timeout:   cfg.RecommendTimeout,
		CacheSize: cfg.RecommendCacheSize,
		CacheTTL:  cfg.RecommendCacheTTL,
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Repos:      repos,
		Vectors:    vectors,
		Mirror:     mirror,
		TMDB:       tmdb,
		Ingestion:  ingestion,
		Similarity: similarity,
		Titles:     titles,
		Aggregator: aggregator,
	}, nil
}

// RebuildDefaults 配置中的重建参数
func (a *App) RebuildDefaults() service.RebuildOptions {
	return service.RebuildOptions{
		UserSampleCap: a.Config.SimilarityUserCap,
		Seed:          a.Config.SimilaritySeed,
	}
}

// Ping 数据库连通性
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.Repos.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 释放数据库连接
func (a *App) Close() error {
	return a.Repos.Close()
}
