package model

// 推荐算法名称
const (
	AlgorithmDummy          = "dummy"
	AlgorithmVectorImage    = "vector-image"
	AlgorithmVectorText     = "vector-text"
	AlgorithmRatingBased    = "rating-based"
	AlgorithmTextSuggestion = "text-suggestion"
)

// Algorithms 固定的算法注册表（顺序即展示顺序）
var Algorithms = []string{
	AlgorithmDummy,
	AlgorithmVectorImage,
	AlgorithmVectorText,
	AlgorithmRatingBased,
	AlgorithmTextSuggestion,
}

// RecommendedItem 单个推荐结果，Rank 从 1 开始
type RecommendedItem struct {
	MovieID int    `json:"movie_id"`
	Rank    int    `json:"rank"`
	Title   string `json:"title,omitempty"`
}

// AlgorithmResult 单个算法的推荐列表
type AlgorithmResult struct {
	Algorithm string            `json:"algorithm"`
	Items     []RecommendedItem `json:"items"`
}

// NewAlgorithmResult 按顺序为 id 列表编号
func NewAlgorithmResult(algorithm string, ids []int) AlgorithmResult {
	items := make([]RecommendedItem, 0, len(ids))
	for i, id := range ids {
		items = append(items, RecommendedItem{MovieID: id, Rank: i + 1})
	}
	return AlgorithmResult{Algorithm: algorithm, Items: items}
}
