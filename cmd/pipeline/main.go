// pipeline 离线任务入口：向量入库、评分相似度重建、签发管理令牌
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/app"
	"github.com/user/moovierec/internal/config"
	"github.com/user/moovierec/internal/logging"
	"github.com/user/moovierec/internal/middleware"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/service"
)

const usage = `用法: pipeline <command> [flags]

commands:
  embed       -source image|text [-limit N] [-truncate] [-workers N]
  similarity  [-users N] [-seed S]
  token       [-subject NAME] [-ttl 24h]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "embed":
		err = runEmbed(ctx, cfg, logger, args)
	case "similarity":
		err = runSimilarity(ctx, cfg, logger, args)
	case "token":
		err = runToken(cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		plog := logging.Component(logger, "pipeline")
		plog.Error().Err(err).Str("command", cmd).Msg("任务失败")
		stop()
		os.Exit(1)
	}
}

func runEmbed(ctx context.Context, cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	sourceName := fs.String("source", "", "向量来源: image 或 text")
	limit := fs.Int("limit", 0, "最多处理的电影数，0 表示全部")
	truncate := fs.Bool("truncate", false, "开始前清空该来源的全部向量")
	workers := fs.Int("workers", cfg.IngestWorkers, "并发数")
	fs.Parse(args)

	source, err := model.ParseSource(*sourceName)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Ingestion.Run(ctx, service.RunOptions{
		Source:   source,
		Limit:    *limit,
		Truncate: *truncate,
		Workers:  *workers,
	})
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		logger.Warn().Int("movie_id", f.MovieID).Str("reason", f.Reason).Msg("失败条目")
	}
	fmt.Printf("processed=%d succeeded=%d skipped=%d failed=%d duration=%s\n",
		report.Processed, report.Succeeded, report.Skipped, report.Failed, report.Duration.Round(time.Millisecond))
	return nil
}

func runSimilarity(ctx context.Context, cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("similarity", flag.ExitOnError)
	users := fs.Int("users", cfg.SimilarityUserCap, "抽样用户数上限")
	seed := fs.Int64("seed", cfg.SimilaritySeed, "抽样随机种子，0 表示按时间")
	fs.Parse(args)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Similarity.Rebuild(ctx, service.RebuildOptions{UserSampleCap: *users, Seed: *seed})
	if errors.Is(err, model.ErrNotEnoughData) {
		return fmt.Errorf("评分数据不足，未写入任何结果: %w", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("users=%d sampled=%d movies=%d edges=%d seed=%d dense=%t duration=%s\n",
		report.Users, report.SampledUsers, report.Movies, report.Edges, report.Seed, report.Dense,
		report.Duration.Round(time.Millisecond))
	return nil
}

func runToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "admin", "令牌主体")
	ttl := fs.Duration("ttl", 24*time.Hour, "有效期")
	fs.Parse(args)

	token, err := middleware.GenerateToken(*subject, middleware.RoleAdmin, cfg.AppSecret, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
