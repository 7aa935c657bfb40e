package service

import (
	"context"
	"math"
	"sort"

	"github.com/user/moovierec/internal/model"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DenseCellLimit 稠密路径允许的最大单元数（电影×用户 与 电影×电影 都不能超过）
var DenseCellLimit = 4_000_000

// NeighborCount 每部电影保留的相似电影数
const NeighborCount = 5

type ratedCell struct {
	user int
	dev  float64 // 评分减去该电影在样本内的均值
}

// RatingMatrix 电影×抽样用户评分矩阵。
// 未评分单元按该电影自身均值填充，因此每行可写成 mean·1 + dev，dev 只在已评分单元非零且和为 0
type RatingMatrix struct {
	MovieIDs []int // 升序
	Users    int
	means    []float64
	rows     [][]ratedCell
}

// NewRatingMatrix 只保留 users 中的评分；没有样本评分的电影被排除。
// 同一用户对同一电影的重复评分取平均
func NewRatingMatrix(ratings []model.Rating, users []int) *RatingMatrix {
	userIndex := make(map[int]int, len(users))
	for i, u := range users {
		userIndex[u] = i
	}

	type acc struct {
		sum   float64
		count int
	}
	perMovie := make(map[int]map[int]*acc)
	for _, r := range ratings {
		ui, ok := userIndex[r.UserID]
		if !ok {
			continue
		}
		cells := perMovie[r.MovieID]
		if cells == nil {
			cells = make(map[int]*acc)
			perMovie[r.MovieID] = cells
		}
		a := cells[ui]
		if a == nil {
			a = &acc{}
			cells[ui] = a
		}
		a.sum += r.Rating
		a.count++
	}

	m := &RatingMatrix{Users: len(users)}
	for id := range perMovie {
		m.MovieIDs = append(m.MovieIDs, id)
	}
	sort.Ints(m.MovieIDs)

	m.means = make([]float64, len(m.MovieIDs))
	m.rows = make([][]ratedCell, len(m.MovieIDs))
	for i, id := range m.MovieIDs {
		cells := perMovie[id]
		row := make([]ratedCell, 0, len(cells))
		var total float64
		for u, a := range cells {
			v := a.sum / float64(a.count)
			row = append(row, ratedCell{user: u, dev: v})
			total += v
		}
		mean := total / float64(len(row))
		for j := range row {
			row[j].dev -= mean
		}
		sort.Slice(row, func(a, b int) bool { return row[a].user < row[b].user })
		m.means[i] = mean
		m.rows[i] = row
	}
	return m
}

// Movies 矩阵行数
func (m *RatingMatrix) Movies() int {
	return len(m.MovieIDs)
}

// Dense 展开为填充后的稠密矩阵
func (m *RatingMatrix) Dense() *mat.Dense {
	x := mat.NewDense(m.Movies(), m.Users, nil)
	for i := range m.MovieIDs {
		for u := 0; u < m.Users; u++ {
			x.Set(i, u, m.means[i])
		}
		for _, c := range m.rows[i] {
			x.Set(i, c.user, m.means[i]+c.dev)
		}
	}
	return x
}

// UseDense 规模足够小时走稠密路径
func (m *RatingMatrix) UseDense() bool {
	n := m.Movies()
	return n*m.Users <= DenseCellLimit && n*n <= DenseCellLimit
}

// DenseSimilarity 行归一化后计算 X·Xᵀ
func DenseSimilarity(m *RatingMatrix) *mat.Dense {
	x := m.Dense()
	rows, _ := x.Dims()
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		norm := 0.0
		for _, v := range row {
			norm += v * v
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for j := range row {
			row[j] /= norm
		}
	}

	var sim mat.Dense
	sim.Mul(x, x.T())
	for i := 0; i < rows; i++ {
		row := sim.RawRowView(i)
		for j, v := range row {
			row[j] = sanitize(v)
		}
	}
	return &sim
}

// sparseScorer 利用 x_i·x_j = m_i·m_j·U + d_i·d_j 精确计算余弦相似度
type sparseScorer struct {
	m     *RatingMatrix
	norms []float64
	cols  [][]colCell // 用户 -> 评过分的电影
}

type colCell struct {
	movie int
	dev   float64
}

func newSparseScorer(m *RatingMatrix) *sparseScorer {
	s := &sparseScorer{
		m:     m,
		norms: make([]float64, m.Movies()),
		cols:  make([][]colCell, m.Users),
	}
	u := float64(m.Users)
	for i, row := range m.rows {
		sq := m.means[i] * m.means[i] * u
		for _, c := range row {
			sq += c.dev * c.dev
			s.cols[c.user] = append(s.cols[c.user], colCell{movie: i, dev: c.dev})
		}
		s.norms[i] = math.Sqrt(sq)
	}
	return s
}

// row 计算第 i 行与所有行的相似度，acc 为调用方复用的缓冲区
func (s *sparseScorer) row(i int, acc []float64) {
	for j := range acc {
		acc[j] = 0
	}
	for _, c := range s.m.rows[i] {
		if c.dev == 0 {
			continue
		}
		for _, other := range s.cols[c.user] {
			acc[other.movie] += c.dev * other.dev
		}
	}
	u := float64(s.m.Users)
	mi := s.m.means[i]
	for j := range acc {
		dot := mi*s.m.means[j]*u + acc[j]
		acc[j] = sanitize(dot / (s.norms[i] * s.norms[j]))
	}
}

// SparseSimilarityRow 稀疏路径下单行的相似度（测试和调试用）
func SparseSimilarityRow(m *RatingMatrix, i int) []float64 {
	out := make([]float64, m.Movies())
	newSparseScorer(m).row(i, out)
	return out
}

type neighbor struct {
	index int
	score float64
}

// topNeighbors 相似度降序、相同时按电影 id 升序，排除自身 id
func topNeighbors(m *RatingMatrix, i int, scores []float64, k int) []neighbor {
	self := m.MovieIDs[i]
	best := make([]neighbor, 0, k+1)
	for j, score := range scores {
		if m.MovieIDs[j] == self {
			continue
		}
		cand := neighbor{index: j, score: score}
		pos := len(best)
		for pos > 0 && better(m, cand, best[pos-1]) {
			pos--
		}
		if pos >= k {
			continue
		}
		best = append(best, neighbor{})
		copy(best[pos+1:], best[pos:])
		best[pos] = cand
		if len(best) > k {
			best = best[:k]
		}
	}
	return best
}

func better(m *RatingMatrix, a, b neighbor) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return m.MovieIDs[a.index] < m.MovieIDs[b.index]
}

// ComputeEdges 计算所有电影的前 k 个相似电影，workers 控制稀疏路径并行度
func ComputeEdges(ctx context.Context, m *RatingMatrix, k, workers int) ([]model.SimilarityEdge, error) {
	n := m.Movies()
	perRow := make([][]neighbor, n)

	if m.UseDense() {
		sim := DenseSimilarity(m)
		for i := 0; i < n; i++ {
			perRow[i] = topNeighbors(m, i, sim.RawRowView(i), k)
		}
	} else {
		if workers <= 0 {
			workers = 4
		}
		scorer := newSparseScorer(m)
		block := (n + workers - 1) / workers
		g, gctx := errgroup.WithContext(ctx)
		for start := 0; start < n; start += block {
			end := min(start+block, n)
			g.Go(func() error {
				acc := make([]float64, n)
				for i := start; i < end; i++ {
					if i%256 == 0 && gctx.Err() != nil {
						return gctx.Err()
					}
					scorer.row(i, acc)
					perRow[i] = topNeighbors(m, i, acc, k)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	edges := make([]model.SimilarityEdge, 0, n*k)
	for i, neighbors := range perRow {
		for _, nb := range neighbors {
			edges = append(edges, model.SimilarityEdge{
				MovieID:        m.MovieIDs[i],
				SimilarMovieID: m.MovieIDs[nb.index],
				Similarity:     nb.score,
			})
		}
	}
	return edges, nil
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
