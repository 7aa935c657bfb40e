package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/service"
	"github.com/user/moovierec/internal/utils"
)

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("数据库不可用")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Recommendations GET /api/movies/:id/recommendations?algorithms=a,b
func (h *Handler) Recommendations(c *gin.Context) {
	movieID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "无效的电影 ID")
		return
	}

	var algorithms []string
	for _, name := range strings.Split(c.Query("algorithms"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			algorithms = append(algorithms, name)
		}
	}

	results, err := h.recommender.Recommend(c.Request.Context(), movieID, algorithms)
	if err != nil {
		if errors.Is(err, model.ErrUnsupportedAlgorithm) {
			utils.BadRequest(c, err.Error())
			return
		}
		h.logger.Error().Err(err).Int("movie_id", movieID).Msg("推荐失败")
		utils.InternalServerError(c, "")
		return
	}

	h.hydrateTitles(c.Request.Context(), results)
	utils.Success(c, gin.H{
		"movie_id": movieID,
		"results":  results,
	})
}

// hydrateTitles 为推荐结果补充标题，失败时保留 id
func (h *Handler) hydrateTitles(ctx context.Context, results []model.AlgorithmResult) {
	if h.movies == nil {
		return
	}
	var ids []int
	for _, r := range results {
		for _, it := range r.Items {
			ids = append(ids, it.MovieID)
		}
	}
	if len(ids) == 0 {
		return
	}

	movies, err := h.movies.FindByIDs(ctx, ids)
	if err != nil {
		h.logger.Warn().Err(err).Msg("补充标题失败")
		return
	}
	for i := range results {
		for j := range results[i].Items {
			if m, ok := movies[results[i].Items[j].MovieID]; ok {
				results[i].Items[j].Title = m.Title
			}
		}
	}
}

// MovieDetail 电影元数据及外部站点关联
type MovieDetail struct {
	model.Movie
	IMDbID string `json:"imdb_id,omitempty"`
	TMDBID *int   `json:"tmdb_id,omitempty"`
}

// Movie GET /api/movies/:id
func (h *Handler) Movie(c *gin.Context) {
	movieID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.BadRequest(c, "无效的电影 ID")
		return
	}

	movie, err := h.movies.FindByID(c.Request.Context(), movieID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			utils.NotFound(c, "电影不存在")
			return
		}
		h.logger.Error().Err(err).Int("movie_id", movieID).Msg("读取电影失败")
		utils.InternalServerError(c, "")
		return
	}

	detail := MovieDetail{Movie: *movie}
	link, err := h.movies.FindLink(c.Request.Context(), movieID)
	switch {
	case err == nil:
		detail.IMDbID = link.IMDbID
		detail.TMDBID = link.TMDBID
	case !errors.Is(err, model.ErrNotFound):
		h.logger.Warn().Err(err).Int("movie_id", movieID).Msg("读取外部关联失败")
	}
	utils.Success(c, detail)
}

// TitleMatch 标题搜索结果
type TitleMatch struct {
	MovieID int    `json:"movie_id"`
	Title   string `json:"title,omitempty"`
}

// SearchTitles GET /api/titles/search?q=&limit=
func (h *Handler) SearchTitles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit > 100 {
		limit = 100
	}

	ids, err := h.titles.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		if errors.Is(err, model.ErrInvalidQuery) {
			utils.BadRequest(c, "搜索内容不能为空")
			return
		}
		h.logger.Error().Err(err).Msg("标题搜索失败")
		utils.InternalServerError(c, "")
		return
	}

	matches := make([]TitleMatch, 0, len(ids))
	var movies map[int]model.Movie
	if h.movies != nil && len(ids) > 0 {
		movies, err = h.movies.FindByIDs(c.Request.Context(), ids)
		if err != nil {
			h.logger.Warn().Err(err).Msg("补充标题失败")
		}
	}
	for _, id := range ids {
		matches = append(matches, TitleMatch{MovieID: id, Title: movies[id].Title})
	}
	utils.Success(c, matches)
}

// Ingest POST /api/admin/ingest 后台执行向量入库
func (h *Handler) Ingest(c *gin.Context) {
	var opts service.RunOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		utils.BadRequest(c, "参数错误: "+err.Error())
		return
	}

	name := "ingest:" + string(opts.Source)
	started := h.jobs.start(name, func(ctx context.Context) (any, error) {
		return h.ingester.Run(ctx, opts)
	})
	if !started {
		utils.Conflict(c, "该来源的入库任务正在运行")
		return
	}
	utils.Accepted(c, "入库任务已启动", gin.H{"job": name})
}

// RebuildSimilarity POST /api/admin/similarity/rebuild 后台重建评分相似度
func (h *Handler) RebuildSimilarity(c *gin.Context) {
	var opts service.RebuildOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			utils.BadRequest(c, "参数错误: "+err.Error())
			return
		}
	}

	const name = "similarity-rebuild"
	started := h.jobs.start(name, func(ctx context.Context) (any, error) {
		return h.rebuilder.Rebuild(ctx, opts)
	})
	if !started {
		utils.Conflict(c, "相似度重建正在运行")
		return
	}
	utils.Accepted(c, "相似度重建已启动", gin.H{"job": name})
}

// Jobs GET /api/admin/jobs 后台任务状态
func (h *Handler) Jobs(c *gin.Context) {
	utils.Success(c, h.jobs.snapshot())
}
