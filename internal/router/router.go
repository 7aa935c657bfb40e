package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/handler"
	"github.com/user/moovierec/internal/middleware"
)

// New 创建 gin 引擎并注册中间件
func New(logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	// 启用 gzip，默认压缩级别
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	return r
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler, jwtSecret string) {
	// 健康检查
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== 公开 API ====================
	api := r.Group("/api")
	{
		api.GET("/movies/:id", h.Movie)
		api.GET("/movies/:id/recommendations", h.Recommendations)
		api.GET("/titles/search", h.SearchTitles)
	}

	// ==================== 管理接口 ====================
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin(jwtSecret))
	{
		admin.POST("/ingest", h.Ingest)
		admin.POST("/similarity/rebuild", h.RebuildSimilarity)
		admin.GET("/jobs", h.Jobs)
	}
}
