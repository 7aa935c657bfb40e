package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/moovierec/internal/model"
)

// MemoryStore 进程内向量存储，按 (id, source) 唯一
// 查询为全量线性扫描，结果与 pgvector 的 ORDER BY <=> 一致
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[model.Source]map[int][]float32
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vectors: make(map[model.Source]map[int][]float32)}
}

// Upsert 插入或覆盖向量
func (s *MemoryStore) Upsert(ctx context.Context, movieID int, source model.Source, vec []float32) error {
	if err := model.CheckDim(source, vec); err != nil {
		return err
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)

	s.mu.Lock()
	defer s.mu.Unlock()
	bySource, ok := s.vectors[source]
	if !ok {
		bySource = make(map[int][]float32)
		s.vectors[source] = bySource
	}
	bySource[movieID] = cp
	return nil
}

// QueryNearest 返回与 movieID 余弦距离最近的 k 个其它电影
func (s *MemoryStore) QueryNearest(ctx context.Context, movieID int, source model.Source, k int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySource := s.vectors[source]
	target, ok := bySource[movieID]
	if !ok {
		return nil, fmt.Errorf("%s vector for movie %d: %w", source, movieID, model.ErrNotFound)
	}
	if k <= 0 {
		return []int{}, nil
	}

	candidates := make([]Candidate, 0, len(bySource))
	for id, vec := range bySource {
		if id == movieID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{ID: id, Distance: CosineDistance(target, vec)})
	}
	return Nearest(candidates, k), nil
}

// Get 读取单个向量
func (s *MemoryStore) Get(movieID int, source model.Source) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[source][movieID]
	return vec, ok
}

// Count 某来源的向量数
func (s *MemoryStore) Count(source model.Source) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors[source])
}

// Truncate 清空某来源的全部向量
func (s *MemoryStore) Truncate(ctx context.Context, source model.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, source)
	return nil
}
