package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/utils"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultTMDBAPIBase  = "https://api.themoviedb.org/3"
	defaultTMDBPageBase = "https://www.themoviedb.org"
)

// TitleStore 本地片库标题查询
type TitleStore interface {
	DisplayTitle(ctx context.Context, id int) (string, error)
}

// TMDBOptions TMDB 访问配置
type TMDBOptions struct {
	APIKey    string
	APIBase   string
	PageBase  string
	ImageBase string
	RateLimit float64 // 每秒请求数
}

// TMDBService 原始资源解析：海报图片、剧情简介、展示标题
type TMDBService struct {
	titles  TitleStore
	client  *utils.HTTPClient
	opts    TMDBOptions
	limiter *rate.Limiter
	details *cache.Cache
	group   singleflight.Group
	logger  zerolog.Logger
}

func NewTMDBService(titles TitleStore, client *utils.HTTPClient, opts TMDBOptions, logger zerolog.Logger) *TMDBService {
	if opts.APIBase == "" {
		opts.APIBase = defaultTMDBAPIBase
	}
	if opts.PageBase == "" {
		opts.PageBase = defaultTMDBPageBase
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	opts.PageBase = strings.TrimRight(opts.PageBase, "/")
	opts.ImageBase = strings.TrimRight(opts.ImageBase, "/")

	return &TMDBService{
		titles:  titles,
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		details: cache.New(6*time.Hour, 30*time.Minute),
		logger:  logger.With().Str("component", "tmdb").Logger(),
	}
}

type tmdbDetailsResponse struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Overview   string `json:"overview"`
	PosterPath string `json:"poster_path"`
}

// FetchImage 下载海报原图字节
func (s *TMDBService) FetchImage(ctx context.Context, ref model.MovieRef) ([]byte, error) {
	details, err := s.fetchDetails(ctx, ref)
	if err != nil {
		return nil, err
	}
	if details.PosterPath == "" {
		return nil, fmt.Errorf("movie %d has no poster: %w", ref.ID, model.ErrNoResource)
	}

	posterURL := details.PosterPath
	if !strings.HasPrefix(posterURL, "http") {
		posterURL = s.opts.ImageBase + posterURL
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	img, err := s.client.GetBytes(ctx, posterURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download poster %s: %w", posterURL, err)
	}
	return img, nil
}

// FetchDescription 剧情简介
func (s *TMDBService) FetchDescription(ctx context.Context, ref model.MovieRef) (string, error) {
	details, err := s.fetchDetails(ctx, ref)
	if err != nil {
		return "", err
	}
	overview := strings.TrimSpace(details.Overview)
	if overview == "" {
		return "", fmt.Errorf("movie %d has no overview: %w", ref.ID, model.ErrNoResource)
	}
	return overview, nil
}

// FetchDisplayTitle 展示标题（来自本地片库）
func (s *TMDBService) FetchDisplayTitle(ctx context.Context, movieID int) (string, error) {
	return s.titles.DisplayTitle(ctx, movieID)
}

// fetchDetails 详情带缓存，并发相同请求只发一次
func (s *TMDBService) fetchDetails(ctx context.Context, ref model.MovieRef) (*tmdbDetailsResponse, error) {
	if ref.TMDBID == nil || *ref.TMDBID <= 0 {
		return nil, fmt.Errorf("movie %d has no tmdb link: %w", ref.ID, model.ErrNoResource)
	}
	key := strconv.Itoa(*ref.TMDBID)
	if v, ok := s.details.Get(key); ok {
		return v.(*tmdbDetailsResponse), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var (
			details *tmdbDetailsResponse
			err     error
		)
		if s.opts.APIKey != "" {
			details, err = s.fetchDetailsAPI(ctx, *ref.TMDBID)
		} else {
			details, err = s.fetchDetailsPage(ctx, *ref.TMDBID)
		}
		if err != nil {
			return nil, err
		}
		s.details.SetDefault(key, details)
		return details, nil
	})
	if err != nil {
		var se *utils.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("tmdb %s not found: %w", key, model.ErrNoResource)
		}
		return nil, err
	}
	return v.(*tmdbDetailsResponse), nil
}

func (s *TMDBService) fetchDetailsAPI(ctx context.Context, tmdbID int) (*tmdbDetailsResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("api_key", s.opts.APIKey)
	q.Set("language", "en-US")
	endpoint := fmt.Sprintf("%s/movie/%d?%s", s.opts.APIBase, tmdbID, q.Encode())

	var details tmdbDetailsResponse
	if err := s.client.GetJSON(ctx, endpoint, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// fetchDetailsPage 没有 API key 时从公开页面的 og 标签解析
func (s *TMDBService) fetchDetailsPage(ctx context.Context, tmdbID int) (*tmdbDetailsResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pageURL := fmt.Sprintf("%s/movie/%d", s.opts.PageBase, tmdbID)
	body, err := s.client.GetBytes(ctx, pageURL, map[string]string{"Accept-Language": "en-US"})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}

	meta := func(property string) string {
		v, _ := doc.Find(fmt.Sprintf("meta[property='%s']", property)).First().Attr("content")
		return strings.TrimSpace(v)
	}
	details := &tmdbDetailsResponse{
		ID:         tmdbID,
		Title:      meta("og:title"),
		Overview:   meta("og:description"),
		PosterPath: meta("og:image"),
	}
	s.logger.Debug().Int("tmdb_id", tmdbID).Bool("poster", details.PosterPath != "").Msg("从页面解析详情")
	return details, nil
}
