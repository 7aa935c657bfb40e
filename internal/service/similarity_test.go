package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/model"
)

type fakeRatings struct {
	ratings []model.Rating
	err     error
}

func (f *fakeRatings) Each(ctx context.Context, fn func(model.Rating) error) error {
	if f.err != nil {
		return f.err
	}
	for _, r := range f.ratings {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

type fakeEdgeStore struct {
	calls int
	edges []model.SimilarityEdge
	err   error
}

func (f *fakeEdgeStore) ReplaceAll(ctx context.Context, edges []model.SimilarityEdge) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.edges = edges
	return nil
}

// randomRatings 生成稀疏的随机评分（约 30% 填充）
func randomRatings(seed int64, movies, users int) []model.Rating {
	rng := rand.New(rand.NewSource(seed))
	var out []model.Rating
	for m := 1; m <= movies; m++ {
		for u := 1; u <= users; u++ {
			if rng.Float64() < 0.3 {
				out = append(out, model.Rating{
					UserID:  u,
					MovieID: m * 10,
					Rating:  float64(1+rng.Intn(10)) / 2,
				})
			}
		}
	}
	return out
}

func userRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestRatingMatrixFillsRowMean(t *testing.T) {
	ratings := []model.Rating{
		{UserID: 10, MovieID: 1, Rating: 4},
		{UserID: 20, MovieID: 1, Rating: 2},
		{UserID: 10, MovieID: 2, Rating: 5},
		{UserID: 99, MovieID: 3, Rating: 5}, // 不在样本内
	}
	m := NewRatingMatrix(ratings, []int{10, 20, 30})

	if !reflect.DeepEqual(m.MovieIDs, []int{1, 2}) {
		t.Fatalf("MovieIDs = %v, want [1 2]", m.MovieIDs)
	}
	x := m.Dense()
	want := [][]float64{{4, 2, 3}, {5, 5, 5}}
	for i, row := range want {
		for j, v := range row {
			if got := x.At(i, j); got != v {
				t.Errorf("x[%d][%d] = %v, want %v", i, j, got, v)
			}
		}
	}
}

func TestRatingMatrixAveragesDuplicates(t *testing.T) {
	ratings := []model.Rating{
		{UserID: 1, MovieID: 1, Rating: 2},
		{UserID: 1, MovieID: 1, Rating: 4},
		{UserID: 2, MovieID: 1, Rating: 1},
	}
	x := NewRatingMatrix(ratings, []int{1, 2}).Dense()
	if x.At(0, 0) != 3 || x.At(0, 1) != 1 {
		t.Fatalf("row = [%v %v], want [3 1]", x.At(0, 0), x.At(0, 1))
	}
}

func TestDenseSimilaritySymmetric(t *testing.T) {
	m := NewRatingMatrix(randomRatings(1, 30, 40), userRange(40))
	sim := DenseSimilarity(m)
	n := m.Movies()
	for i := 0; i < n; i++ {
		if d := sim.At(i, i); math.Abs(d-1) > 1e-9 {
			t.Errorf("sim[%d][%d] = %v, want 1", i, i, d)
		}
		for j := i + 1; j < n; j++ {
			if math.Abs(sim.At(i, j)-sim.At(j, i)) > 1e-12 {
				t.Fatalf("sim not symmetric at (%d,%d)", i, j)
			}
		}
	}
}

func TestSparseMatchesDense(t *testing.T) {
	m := NewRatingMatrix(randomRatings(2, 25, 60), userRange(60))
	sim := DenseSimilarity(m)
	for i := 0; i < m.Movies(); i++ {
		row := SparseSimilarityRow(m, i)
		for j, v := range row {
			if math.Abs(v-sim.At(i, j)) > 1e-9 {
				t.Fatalf("row %d col %d: sparse %v dense %v", i, j, v, sim.At(i, j))
			}
		}
	}
}

func TestZeroRowSimilarityIsZero(t *testing.T) {
	ratings := []model.Rating{
		{UserID: 1, MovieID: 1, Rating: 0},
		{UserID: 1, MovieID: 2, Rating: 3},
		{UserID: 2, MovieID: 2, Rating: 4},
	}
	m := NewRatingMatrix(ratings, []int{1, 2})
	sim := DenseSimilarity(m)
	if v := sim.At(0, 1); v != 0 {
		t.Fatalf("dense sim = %v, want 0", v)
	}
	if v := SparseSimilarityRow(m, 0)[1]; v != 0 {
		t.Fatalf("sparse sim = %v, want 0", v)
	}
}

func TestTopNeighborsExcludesSelfAndBreaksTiesByID(t *testing.T) {
	m := &RatingMatrix{MovieIDs: []int{1, 2, 3, 4}}
	// 自身得分最高也必须被排除
	scores := []float64{0.5, 1.0, 0.5, 0.9}
	got := topNeighbors(m, 1, scores, 2)

	var ids []int
	for _, nb := range got {
		ids = append(ids, m.MovieIDs[nb.index])
	}
	if !reflect.DeepEqual(ids, []int{4, 1}) {
		t.Fatalf("neighbours = %v, want [4 1]", ids)
	}
}

func TestComputeEdgesDenseAndSparseAgree(t *testing.T) {
	m := NewRatingMatrix(randomRatings(3, 20, 30), userRange(30))

	dense, err := ComputeEdges(context.Background(), m, NeighborCount, 2)
	if err != nil {
		t.Fatalf("dense: %v", err)
	}

	old := DenseCellLimit
	DenseCellLimit = 0
	defer func() { DenseCellLimit = old }()
	if m.UseDense() {
		t.Fatal("expected sparse path")
	}
	sparse, err := ComputeEdges(context.Background(), m, NeighborCount, 3)
	if err != nil {
		t.Fatalf("sparse: %v", err)
	}

	if len(dense) != m.Movies()*NeighborCount || len(sparse) != len(dense) {
		t.Fatalf("edges dense=%d sparse=%d", len(dense), len(sparse))
	}
	for i := range dense {
		d, s := dense[i], sparse[i]
		if d.MovieID == d.SimilarMovieID {
			t.Fatalf("self edge %+v", d)
		}
		if d.MovieID != s.MovieID || math.Abs(d.Similarity-s.Similarity) > 1e-9 {
			t.Fatalf("edge %d: dense %+v sparse %+v", i, d, s)
		}
	}
}

func TestSampleUsers(t *testing.T) {
	users := userRange(100)

	got := SampleUsers(users, 10, 7)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if !sort.IntsAreSorted(got) {
		t.Errorf("sample not sorted: %v", got)
	}
	seen := map[int]bool{}
	for _, u := range got {
		if u < 1 || u > 100 || seen[u] {
			t.Fatalf("invalid or duplicate user %d in %v", u, got)
		}
		seen[u] = true
	}
	if again := SampleUsers(users, 10, 7); !reflect.DeepEqual(got, again) {
		t.Errorf("same seed gave %v then %v", got, again)
	}

	all := SampleUsers(users[:5], 10, 7)
	if !reflect.DeepEqual(all, users[:5]) {
		t.Errorf("small population = %v, want all users", all)
	}
}

func TestRebuildPersistsTopNeighbours(t *testing.T) {
	ratings := randomRatings(4, 12, 50)
	edges := &fakeEdgeStore{}
	b := NewSimilarityBuilder(&fakeRatings{ratings: ratings}, edges, 20000, zerolog.Nop())

	report, err := b.Rebuild(context.Background(), RebuildOptions{UserSampleCap: 20, Seed: 42})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.SampledUsers != 20 || report.Users != 50 || report.Seed != 42 {
		t.Errorf("report = %+v", report)
	}
	if edges.calls != 1 || len(edges.edges) != report.Edges {
		t.Fatalf("persisted %d edges in %d calls, report says %d", len(edges.edges), edges.calls, report.Edges)
	}

	perMovie := map[int][]model.SimilarityEdge{}
	for _, e := range edges.edges {
		if e.MovieID == e.SimilarMovieID {
			t.Fatalf("self edge %+v", e)
		}
		perMovie[e.MovieID] = append(perMovie[e.MovieID], e)
	}
	for id, list := range perMovie {
		if len(list) > NeighborCount {
			t.Errorf("movie %d has %d neighbours", id, len(list))
		}
		for i := 1; i < len(list); i++ {
			prev, cur := list[i-1], list[i]
			if prev.Similarity < cur.Similarity ||
				(prev.Similarity == cur.Similarity && prev.SimilarMovieID > cur.SimilarMovieID) {
				t.Errorf("movie %d neighbours out of order: %+v", id, list)
			}
		}
	}
}

func TestRebuildAbortsWithoutPersisting(t *testing.T) {
	tests := []struct {
		name    string
		ratings *fakeRatings
		store   *fakeEdgeStore
		cap     int
		wantErr error
		stored  int
	}{
		{
			name:    "single user",
			ratings: &fakeRatings{ratings: []model.Rating{{UserID: 1, MovieID: 1, Rating: 4}, {UserID: 1, MovieID: 2, Rating: 3}}},
			store:   &fakeEdgeStore{},
			wantErr: model.ErrNotEnoughData,
		},
		{
			name:    "single movie",
			ratings: &fakeRatings{ratings: []model.Rating{{UserID: 1, MovieID: 1, Rating: 4}, {UserID: 2, MovieID: 1, Rating: 3}}},
			store:   &fakeEdgeStore{},
			wantErr: model.ErrNotEnoughData,
		},
		{
			name: "sample cap of one",
			ratings: &fakeRatings{ratings: []model.Rating{
				{UserID: 1, MovieID: 1, Rating: 5}, {UserID: 1, MovieID: 2, Rating: 3}, {UserID: 1, MovieID: 3, Rating: 1},
				{UserID: 2, MovieID: 1, Rating: 4}, {UserID: 2, MovieID: 2, Rating: 2}, {UserID: 2, MovieID: 3, Rating: 5},
				{UserID: 3, MovieID: 1, Rating: 1}, {UserID: 3, MovieID: 2, Rating: 4}, {UserID: 3, MovieID: 3, Rating: 3},
			}},
			store:   &fakeEdgeStore{},
			cap:     1,
			wantErr: model.ErrNotEnoughData,
		},
		{
			name:    "read error",
			ratings: &fakeRatings{err: errors.New("connection reset")},
			store:   &fakeEdgeStore{},
		},
		{
			name:    "persist error",
			ratings: &fakeRatings{ratings: randomRatings(5, 5, 5)},
			store:   &fakeEdgeStore{err: errors.New("tx aborted")},
			stored:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSimilarityBuilder(tt.ratings, tt.store, 100, zerolog.Nop())
			_, err := b.Rebuild(context.Background(), RebuildOptions{UserSampleCap: tt.cap, Seed: 1})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.store.calls != tt.stored {
				t.Fatalf("ReplaceAll called %d times, want %d", tt.store.calls, tt.stored)
			}
			if tt.store.edges != nil {
				t.Fatal("edges persisted on failure")
			}
		})
	}
}
