package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/user/moovierec/internal/app"
	"github.com/user/moovierec/internal/config"
	"github.com/user/moovierec/internal/handler"
	"github.com/user/moovierec/internal/logging"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/router"
	"github.com/user/moovierec/internal/service"
)

func main() {
	// 加载环境变量
	envErr := godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if envErr != nil {
		logger.Info().Msg("未找到 .env 文件，使用系统环境变量")
	}

	// 服务生命周期，收到信号后取消后台任务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化失败")
	}
	defer a.Close()

	// 定时重建评分相似度
	service.NewRebuildScheduler(a.Similarity, cfg.SimilarityRebuildInterval, a.RebuildDefaults(), logger).Start(ctx)

	// pipeline 进程写入的向量定时同步到内存
	if a.Mirror != nil {
		a.Mirror.StartRefresh(ctx, cfg.VectorCacheRefresh, model.Sources...)
	}

	// 初始化 Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.New(logger)

	h := handler.NewHandler(ctx, handler.Deps{
		Recommender: a.Aggregator,
		Titles:      a.Titles,
		Movies:      a.Repos.Movie,
		Ingester:    a.Ingestion,
		Rebuilder:   a.Similarity,
		Ping:        a.Ping,
	}, logger)
	router.RegisterRoutes(r, h, cfg.AppSecret)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.RecommendTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		logger.Info().Str("addr", "http://localhost:"+cfg.Port).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("正在关闭服务器...")

	// 5 秒超时上下文用于关闭过程
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器强制关闭")
	}
	h.Wait()

	logger.Info().Msg("服务器已退出")
}
