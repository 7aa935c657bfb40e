// Package vectorstore 内存中的精确向量检索（线性扫描余弦距离）
package vectorstore

import (
	"math"
	"sort"
)

// CosineDistance 1 - cosine_similarity；零向量与任何向量的距离视为 1
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 1
	}
	return 1 - sim
}

// Candidate 待排序的候选
type Candidate struct {
	ID       int
	Distance float64
}

// Nearest 按距离升序、id 升序排序后取前 k 个 id
func Nearest(candidates []Candidate, k int) []int {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ID < candidates[j].ID
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	ids := make([]int, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}
