package model

import (
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Source 向量空间（图像 / 文本），不同来源的向量永远不会互相比较
type Source string

const (
	SourceImage Source = "image"
	SourceText  Source = "text"
)

// Sources 所有已知的向量来源
var Sources = []Source{SourceImage, SourceText}

// Dim 返回该来源固定的向量维度
func (s Source) Dim() int {
	switch s {
	case SourceImage:
		return 512
	case SourceText:
		return 1536
	default:
		return 0
	}
}

// ParseSource 解析来源名称
func ParseSource(name string) (Source, error) {
	switch s := Source(name); s {
	case SourceImage, SourceText:
		return s, nil
	default:
		return "", fmt.Errorf("unknown vector source %q (allowed: image, text)", name)
	}
}

// CheckDim 校验向量长度与来源维度一致
func CheckDim(source Source, vec []float32) error {
	want := source.Dim()
	if want == 0 {
		return fmt.Errorf("unknown vector source %q", source)
	}
	if len(vec) != want {
		return fmt.Errorf("%w: source %s expects %d, got %d", ErrDimensionMismatch, source, want, len(vec))
	}
	return nil
}

// ClipEmbedding 海报图像向量（CLIP ViT-B/32）
type ClipEmbedding struct {
	ID        int             `gorm:"column:id;primaryKey;autoIncrement:false"`
	Embedding pgvector.Vector `gorm:"column:clip_embedding;type:vector(512)"`
}

func (ClipEmbedding) TableName() string { return "clip_embeddings" }

// OpenAIEmbedding 剧情描述向量（text-embedding-3-small）
type OpenAIEmbedding struct {
	ID        int             `gorm:"column:id;primaryKey;autoIncrement:false"`
	Embedding pgvector.Vector `gorm:"column:openai_embedding;type:vector(1536)"`
}

func (OpenAIEmbedding) TableName() string { return "openai_embeddings" }
