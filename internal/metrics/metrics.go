// Package metrics 推荐引擎的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestItems 入库单条处理结果（source, outcome）
	IngestItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovierec_ingest_items_total",
			Help: "Embedding ingestion outcomes per item",
		},
		[]string{"source", "outcome"},
	)

	// IngestRunDuration 单次入库批次耗时
	IngestRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moovierec_ingest_run_duration_seconds",
			Help:    "Duration of embedding ingestion runs",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
		},
		[]string{"source"},
	)

	// SimilarityRebuildDuration 相似度矩阵重建耗时
	SimilarityRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moovierec_similarity_rebuild_duration_seconds",
			Help:    "Duration of rating similarity rebuilds",
			Buckets: []float64{1, 10, 60, 300, 900, 3600},
		},
	)

	// SimilarityEdges 最近一次重建写入的边数
	SimilarityEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moovierec_similarity_edges",
			Help: "Edges persisted by the last successful rebuild",
		},
	)

	// AlgorithmDuration 单个推荐算法耗时
	AlgorithmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moovierec_algorithm_duration_seconds",
			Help:    "Latency of individual recommendation algorithms",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2, 5, 10},
		},
		[]string{"algorithm"},
	)

	// AlgorithmFailures 单个推荐算法失败次数（结果被省略）
	AlgorithmFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovierec_algorithm_failures_total",
			Help: "Recommendation algorithms omitted from a response because they failed",
		},
		[]string{"algorithm"},
	)

	// RecommendCache 推荐结果缓存命中（result = hit / miss）
	RecommendCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovierec_recommend_cache_total",
			Help: "Recommendation cache lookups",
		},
		[]string{"result"},
	)

	// HTTPRequests HTTP 请求计数
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovierec_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// SuggestBreakerState 建议源熔断器状态 0=closed 1=half-open 2=open
	SuggestBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moovierec_suggest_breaker_state",
			Help: "Circuit breaker state of the free-text suggestion source",
		},
		[]string{"name"},
	)
)
