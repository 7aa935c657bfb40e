package repository

import (
	"context"

	"github.com/user/moovierec/internal/model"
	"gorm.io/gorm"
)

type RatingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(db *gorm.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Each 逐行遍历全部评分，聚合方式由调用方决定
func (r *RatingRepository) Each(ctx context.Context, fn func(model.Rating) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&model.Rating{}).
		Select("userid, movieid, rating, timestamp").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rt model.Rating
		if err := rows.Scan(&rt.UserID, &rt.MovieID, &rt.Rating, &rt.Timestamp); err != nil {
			return err
		}
		if err := fn(rt); err != nil {
			return err
		}
	}
	return rows.Err()
}
