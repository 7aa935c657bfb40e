package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/encoder"
	"github.com/user/moovierec/internal/metrics"
	"github.com/user/moovierec/internal/model"
	"golang.org/x/sync/errgroup"
)

// MovieLister 入库候选列表
type MovieLister interface {
	ListForIngestion(ctx context.Context, limit int) ([]model.MovieRef, error)
}

// ResourceFetcher 原始资源获取，资源缺失时返回 model.ErrNoResource
type ResourceFetcher interface {
	FetchImage(ctx context.Context, ref model.MovieRef) ([]byte, error)
	FetchDescription(ctx context.Context, ref model.MovieRef) (string, error)
}

// VectorWriter 向量写入端
type VectorWriter interface {
	Upsert(ctx context.Context, movieID int, source model.Source, vec []float32) error
	Truncate(ctx context.Context, source model.Source) error
}

// Outcome 单条处理结果
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult 单个电影的处理结果
type ItemResult struct {
	MovieID int     `json:"movie_id"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// RunOptions 一次入库批次的参数
type RunOptions struct {
	Source   model.Source `json:"source" binding:"required,oneof=image text"`
	Limit    int          `json:"limit" binding:"gte=0"`
	Truncate bool         `json:"truncate"`
	Workers  int          `json:"workers" binding:"gte=0,lte=64"`
}

// IngestionReport 批次汇总
type IngestionReport struct {
	Source    model.Source  `json:"source"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Failures  []ItemResult  `json:"failures,omitempty"`
	Items     []ItemResult  `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// IngestionPipeline 资源 -> 编码 -> 向量存储
type IngestionPipeline struct {
	movies         MovieLister
	fetcher        ResourceFetcher
	store          VectorWriter
	imageEncoder   encoder.Encoder[[]byte]
	textEncoder    encoder.Encoder[string]
	defaultWorkers int
	logger         zerolog.Logger
}

func NewIngestionPipeline(
	movies MovieLister,
	fetcher ResourceFetcher,
	store VectorWriter,
	imageEncoder encoder.Encoder[[]byte],
	textEncoder encoder.Encoder[string],
	defaultWorkers int,
	logger zerolog.Logger,
) *IngestionPipeline {
	if defaultWorkers <= 0 {
		defaultWorkers = 4
	}
	return &IngestionPipeline{
		movies:         movies,
		fetcher:        fetcher,
		store:          store,
		imageEncoder:   imageEncoder,
		textEncoder:    textEncoder,
		defaultWorkers: defaultWorkers,
		logger:         logger.With().Str("component", "ingestion").Logger(),
	}
}

// Run 执行一次入库批次。单条失败不会中止批次，只有列表/清空失败或取消才返回错误
func (p *IngestionPipeline) Run(ctx context.Context, opts RunOptions) (*IngestionReport, error) {
	if opts.Source.Dim() == 0 {
		return nil, fmt.Errorf("unknown vector source %q", opts.Source)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = p.defaultWorkers
	}
	start := time.Now()

	if opts.Truncate {
		if err := p.store.Truncate(ctx, opts.Source); err != nil {
			return nil, fmt.Errorf("truncate %s vectors: %w", opts.Source, err)
		}
		p.logger.Info().Str("source", string(opts.Source)).Msg("已清空旧向量")
	}

	refs, err := p.movies.ListForIngestion(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	p.logger.Info().
		Str("source", string(opts.Source)).
		Int("movies", len(refs)).
		Int("workers", workers).
		Msg("开始入库")

	results := make([]ItemResult, len(refs))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ref := range refs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := p.processOne(gctx, opts.Source, ref)
			results[i] = res
			metrics.IngestItems.WithLabelValues(string(opts.Source), string(res.Outcome)).Inc()

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if n%100 == 0 {
				p.logger.Info().Int("done", n).Int("total", len(refs)).Msg("入库进度")
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	report := &IngestionReport{Source: opts.Source, Items: results}
	for _, res := range results {
		report.Processed++
		switch res.Outcome {
		case OutcomeSucceeded:
			report.Succeeded++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
			report.Failures = append(report.Failures, res)
		}
	}
	report.Duration = time.Since(start)
	metrics.IngestRunDuration.WithLabelValues(string(opts.Source)).Observe(report.Duration.Seconds())

	p.logger.Info().
		Str("source", string(opts.Source)).
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("入库完成")
	return report, nil
}

func (p *IngestionPipeline) processOne(ctx context.Context, source model.Source, ref model.MovieRef) ItemResult {
	vec, err := p.encode(ctx, source, ref)
	if err == nil {
		err = p.store.Upsert(ctx, ref.ID, source, vec)
	}

	switch {
	case err == nil:
		return ItemResult{MovieID: ref.ID, Outcome: OutcomeSucceeded}
	case errors.Is(err, model.ErrNoResource):
		p.logger.Debug().Int("movie_id", ref.ID).Err(err).Msg("资源缺失，跳过")
		return ItemResult{MovieID: ref.ID, Outcome: OutcomeSkipped, Reason: err.Error()}
	default:
		p.logger.Warn().Int("movie_id", ref.ID).Err(err).Msg("入库失败")
		return ItemResult{MovieID: ref.ID, Outcome: OutcomeFailed, Reason: err.Error()}
	}
}

func (p *IngestionPipeline) encode(ctx context.Context, source model.Source, ref model.MovieRef) ([]float32, error) {
	switch source {
	case model.SourceImage:
		img, err := p.fetcher.FetchImage(ctx, ref)
		if err != nil {
			return nil, err
		}
		return p.imageEncoder.Encode(ctx, img)
	case model.SourceText:
		text, err := p.fetcher.FetchDescription(ctx, ref)
		if err != nil {
			return nil, err
		}
		return p.textEncoder.Encode(ctx, text)
	default:
		return nil, fmt.Errorf("unknown vector source %q", source)
	}
}
