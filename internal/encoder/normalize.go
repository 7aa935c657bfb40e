// Package encoder 把原始资源（海报图片 / 剧情描述）编码为固定维度的向量
package encoder

import (
	"context"
	"math"
)

// Encoder 原始资源 -> 向量，输出长度固定
type Encoder[T any] interface {
	Encode(ctx context.Context, input T) ([]float32, error)
}

// Normalize 原地做 L2 归一化，零向量保持不变
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
