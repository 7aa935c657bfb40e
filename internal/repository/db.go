package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/user/moovierec/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接（lib/pq 连接池 + gorm）
func InitDB(databaseURL string) (*gorm.DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("初始化 gorm 失败: %w", err)
	}
	return db, nil
}

// Migrate 创建扩展、表和索引（幂等）
func Migrate(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	for _, stmt := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
	} {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	if err := tx.AutoMigrate(
		&model.Movie{},
		&model.Link{},
		&model.Rating{},
		&model.ClipEmbedding{},
		&model.OpenAIEmbedding{},
		&model.SimilarityEdge{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 标题三元组索引，供模糊搜索使用
	if err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_movies_title_trgm ON movies USING gin (title gin_trgm_ops)").Error; err != nil {
		return fmt.Errorf("create trigram index: %w", err)
	}
	return nil
}

// Repositories 仓库集合
type Repositories struct {
	DB         *gorm.DB
	Movie      *MovieRepository
	Embedding  *EmbeddingRepository
	Rating     *RatingRepository
	Similarity *SimilarityRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:         db,
		Movie:      NewMovieRepository(db),
		Embedding:  NewEmbeddingRepository(db),
		Rating:     NewRatingRepository(db),
		Similarity: NewSimilarityRepository(db),
	}
}

// Close 关闭底层连接池
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
