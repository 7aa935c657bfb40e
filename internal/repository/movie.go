package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/user/moovierec/internal/model"
	"gorm.io/gorm"
)

type MovieRepository struct {
	db *gorm.DB
}

func NewMovieRepository(db *gorm.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// FindByID 根据 movieid 查找电影
func (r *MovieRepository) FindByID(ctx context.Context, id int) (*model.Movie, error) {
	var movie model.Movie
	err := r.db.WithContext(ctx).Where("movieid = ?", id).First(&movie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("movie %d: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &movie, nil
}

// FindByIDs 批量查询，返回 id -> 电影（不存在的 id 不出现在结果中）
func (r *MovieRepository) FindByIDs(ctx context.Context, ids []int) (map[int]model.Movie, error) {
	result := make(map[int]model.Movie, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var movies []model.Movie
	err := r.db.WithContext(ctx).
		Where("movieid = ANY(?)", pq.Array(ids)).
		Find(&movies).Error
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		result[m.ID] = m
	}
	return result, nil
}

// DisplayTitle 电影展示标题
func (r *MovieRepository) DisplayTitle(ctx context.Context, id int) (string, error) {
	movie, err := r.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return movie.Title, nil
}

// ListForIngestion 入库候选列表（按 movieid 升序，limit <= 0 表示全部）
func (r *MovieRepository) ListForIngestion(ctx context.Context, limit int) ([]model.MovieRef, error) {
	q := r.db.WithContext(ctx).
		Table("movies m").
		Select("m.movieid AS id, m.title AS title, l.tmdbid AS tmdb_id").
		Joins("LEFT JOIN links l ON l.movieid = m.movieid").
		Order("m.movieid ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var refs []model.MovieRef
	if err := q.Scan(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// FindLink 外部站点关联
func (r *MovieRepository) FindLink(ctx context.Context, id int) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).Where("movieid = ?", id).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("link for movie %d: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return &link, nil
}

// SearchByTitle 三元组相似度模糊搜索，相似度降序，相同时按 movieid 升序
func (r *MovieRepository) SearchByTitle(ctx context.Context, query string, limit int) ([]int, error) {
	ids := make([]int, 0, limit)
	err := r.db.WithContext(ctx).Raw(`
		SELECT movieid
		FROM (
			SELECT movieid, similarity(title, ?) AS score
			FROM movies
		) s
		WHERE score > 0
		ORDER BY score DESC, movieid ASC
		LIMIT ?
	`, query, limit).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
