package model

import (
	"github.com/lib/pq"
)

// Movie 电影模型（MovieLens movies 表）
type Movie struct {
	ID       int           `json:"id" db:"movieid" gorm:"column:movieid;primaryKey;autoIncrement:false"`
	Title    string        `json:"title" db:"title" gorm:"column:title"`
	GenreIDs pq.Int64Array `json:"genre_ids" db:"genre_ids" gorm:"column:genre_ids;type:integer[]"`
}

func (Movie) TableName() string { return "movies" }

// Link 外部站点关联（imdb / tmdb）
type Link struct {
	MovieID int    `json:"movie_id" db:"movieid" gorm:"column:movieid;primaryKey;autoIncrement:false"`
	IMDbID  string `json:"imdb_id" db:"imdbid" gorm:"column:imdbid"`
	TMDBID  *int   `json:"tmdb_id" db:"tmdbid" gorm:"column:tmdbid"`
}

func (Link) TableName() string { return "links" }

// MovieRef 入库流水线处理的单个电影引用
type MovieRef struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	TMDBID *int   `json:"tmdb_id"`
}
