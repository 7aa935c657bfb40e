package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/user/moovierec/internal/model"
	"gorm.io/gorm"
)

type SimilarityRepository struct {
	db *gorm.DB
}

func NewSimilarityRepository(db *gorm.DB) *SimilarityRepository {
	return &SimilarityRepository{db: db}
}

// ReplaceAll 在同一事务内清空并批量写入全部边，失败时整体回滚
func (r *SimilarityRepository) ReplaceAll(ctx context.Context, edges []model.SimilarityEdge) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "TRUNCATE similar_rating_movies RESTART IDENTITY"); err != nil {
		return fmt.Errorf("truncate edges: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("similar_rating_movies", "movie_id", "similar_movie_id", "similarity"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.MovieID, e.SimilarMovieID, e.Similarity); err != nil {
			stmt.Close()
			return fmt.Errorf("copy edge %d->%d: %w", e.MovieID, e.SimilarMovieID, err)
		}
	}
	// 刷新 COPY 缓冲
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

// ListNeighbors 相似度降序，相同时按写入顺序
func (r *SimilarityRepository) ListNeighbors(ctx context.Context, movieID, limit int) ([]model.SimilarityEdge, error) {
	var edges []model.SimilarityEdge
	err := r.db.WithContext(ctx).
		Where("movie_id = ?", movieID).
		Order("similarity DESC, id ASC").
		Limit(limit).
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// Count 当前边数
func (r *SimilarityRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SimilarityEdge{}).Count(&n).Error
	return n, err
}
