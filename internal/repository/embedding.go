package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/user/moovierec/internal/model"
	"gorm.io/gorm"
)

// embeddingTable 每个来源对应的表和向量列
type embeddingTable struct {
	table  string
	column string
}

var embeddingTables = map[model.Source]embeddingTable{
	model.SourceImage: {table: "clip_embeddings", column: "clip_embedding"},
	model.SourceText:  {table: "openai_embeddings", column: "openai_embedding"},
}

func tableFor(source model.Source) (embeddingTable, error) {
	t, ok := embeddingTables[source]
	if !ok {
		return embeddingTable{}, fmt.Errorf("unknown vector source %q", source)
	}
	return t, nil
}

// EmbeddingRepository pgvector 向量存储
type EmbeddingRepository struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Upsert 创建或更新向量，按 id 唯一
func (r *EmbeddingRepository) Upsert(ctx context.Context, movieID int, source model.Source, vec []float32) error {
	if err := model.CheckDim(source, vec); err != nil {
		return err
	}
	t, err := tableFor(source)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`
		INSERT INTO %[1]s (id, %[2]s)
		VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET %[2]s = EXCLUDED.%[2]s
	`, t.table, t.column)
	return r.db.WithContext(ctx).Exec(sql, movieID, pgvector.NewVector(vec)).Error
}

// QueryNearest 余弦距离最近的 k 个其它电影（距离相同按 id 升序）
func (r *EmbeddingRepository) QueryNearest(ctx context.Context, movieID int, source model.Source, k int) ([]int, error) {
	t, err := tableFor(source)
	if err != nil {
		return nil, err
	}

	target, err := r.find(ctx, t, movieID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return []int{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT id
		FROM %[1]s
		WHERE id <> ?
		ORDER BY %[2]s <=> ? ASC, id ASC
		LIMIT ?
	`, t.table, t.column)

	ids := make([]int, 0, k)
	if err := r.db.WithContext(ctx).Raw(sql, movieID, target, k).Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *EmbeddingRepository) find(ctx context.Context, t embeddingTable, movieID int) (pgvector.Vector, error) {
	var row struct {
		Embedding pgvector.Vector
	}
	sql := fmt.Sprintf("SELECT %s AS embedding FROM %s WHERE id = ?", t.column, t.table)
	res := r.db.WithContext(ctx).Raw(sql, movieID).Scan(&row)
	if res.Error != nil {
		return pgvector.Vector{}, res.Error
	}
	if res.RowsAffected == 0 {
		return pgvector.Vector{}, fmt.Errorf("%s vector for movie %d: %w", t.table, movieID, model.ErrNotFound)
	}
	return row.Embedding, nil
}

// Each 逐行遍历某来源的全部向量
func (r *EmbeddingRepository) Each(ctx context.Context, source model.Source, fn func(movieID int, vec []float32) error) error {
	t, err := tableFor(source)
	if err != nil {
		return err
	}

	rows, err := r.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id", t.column, t.table)).
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var v pgvector.Vector
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if err := fn(id, v.Slice()); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count 某来源的向量数
func (r *EmbeddingRepository) Count(ctx context.Context, source model.Source) (int64, error) {
	t, err := tableFor(source)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithContext(ctx).Table(t.table).Count(&n).Error
	return n, err
}

// Truncate 清空某来源的全部向量（全量刷新前调用）
func (r *EmbeddingRepository) Truncate(ctx context.Context, source model.Source) error {
	t, err := tableFor(source)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec("TRUNCATE " + t.table).Error
}
