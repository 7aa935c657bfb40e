package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/model"
)

// Backend 持久化向量存储（pgvector）
type Backend interface {
	Upsert(ctx context.Context, movieID int, source model.Source, vec []float32) error
	Truncate(ctx context.Context, source model.Source) error
	Each(ctx context.Context, source model.Source, fn func(movieID int, vec []float32) error) error
}

// Mirror 写穿透：写入同时落库和内存，查询只走内存。
// 其它进程直接写库的向量要等下一次 Reload 才可见
type Mirror struct {
	backend Backend
	mu      sync.RWMutex
	memory  *MemoryStore
	logger  zerolog.Logger
}

// NewMirror 创建镜像存储，使用前需要 Preload
func NewMirror(backend Backend, logger zerolog.Logger) *Mirror {
	return &Mirror{
		backend: backend,
		memory:  NewMemoryStore(),
		logger:  logger.With().Str("component", "vector-mirror").Logger(),
	}
}

// Preload 从持久化存储加载全部向量
func (m *Mirror) Preload(ctx context.Context, sources ...model.Source) error {
	return m.Reload(ctx, sources...)
}

// Reload 重新读取给定来源的全部向量，加载完成后整体替换；失败时保留原快照
func (m *Mirror) Reload(ctx context.Context, sources ...model.Source) error {
	fresh := NewMemoryStore()
	for _, source := range sources {
		err := m.backend.Each(ctx, source, func(movieID int, vec []float32) error {
			return fresh.Upsert(ctx, movieID, source, vec)
		})
		if err != nil {
			return fmt.Errorf("load %s vectors: %w", source, err)
		}
	}

	// 未重新加载的来源沿用旧数据
	old := m.store()
	old.mu.RLock()
	for source, bySource := range old.vectors {
		if containsSource(sources, source) {
			continue
		}
		fresh.vectors[source] = make(map[int][]float32, len(bySource))
		for id, vec := range bySource {
			fresh.vectors[source][id] = vec
		}
	}
	old.mu.RUnlock()

	m.mu.Lock()
	m.memory = fresh
	m.mu.Unlock()

	for _, source := range sources {
		m.logger.Info().
			Str("source", string(source)).
			Int("vectors", fresh.Count(source)).
			Msg("向量已加载到内存")
	}
	return nil
}

// StartRefresh 按 interval 定时 Reload，interval 为 0 时不启动；ctx 取消后退出
func (m *Mirror) StartRefresh(ctx context.Context, interval time.Duration, sources ...model.Source) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Reload(ctx, sources...); err != nil {
					m.logger.Error().Err(err).Msg("向量重新加载失败，继续使用旧数据")
				}
			}
		}
	}()
}

func (m *Mirror) store() *MemoryStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memory
}

func containsSource(sources []model.Source, source model.Source) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}

// Upsert 先落库，成功后更新内存
func (m *Mirror) Upsert(ctx context.Context, movieID int, source model.Source, vec []float32) error {
	if err := model.CheckDim(source, vec); err != nil {
		return err
	}
	if err := m.backend.Upsert(ctx, movieID, source, vec); err != nil {
		return err
	}
	return m.store().Upsert(ctx, movieID, source, vec)
}

// QueryNearest 内存线性扫描
func (m *Mirror) QueryNearest(ctx context.Context, movieID int, source model.Source, k int) ([]int, error) {
	return m.store().QueryNearest(ctx, movieID, source, k)
}

// Truncate 同时清空库和内存
func (m *Mirror) Truncate(ctx context.Context, source model.Source) error {
	if err := m.backend.Truncate(ctx, source); err != nil {
		return err
	}
	return m.store().Truncate(ctx, source)
}
