package model

// SimilarityEdge 基于评分的相似电影边，每次重建整体替换
type SimilarityEdge struct {
	ID             int64   `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MovieID        int     `json:"movie_id" gorm:"column:movie_id;index"`
	SimilarMovieID int     `json:"similar_movie_id" gorm:"column:similar_movie_id"`
	Similarity     float64 `json:"similarity" gorm:"column:similarity"`
}

func (SimilarityEdge) TableName() string { return "similar_rating_movies" }
