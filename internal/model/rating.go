package model

// Rating 用户评分事件（只读）
type Rating struct {
	UserID    int     `json:"user_id" db:"userid" gorm:"column:userid;index"`
	MovieID   int     `json:"movie_id" db:"movieid" gorm:"column:movieid;index"`
	Rating    float64 `json:"rating" db:"rating" gorm:"column:rating"`
	Timestamp int64   `json:"timestamp" db:"timestamp" gorm:"column:timestamp"`
}

func (Rating) TableName() string { return "ratings" }
