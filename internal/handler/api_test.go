package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRecommender struct {
	gotAlgorithms []string
}

func (s *stubRecommender) Recommend(ctx context.Context, movieID int, algorithms []string) ([]model.AlgorithmResult, error) {
	s.gotAlgorithms = algorithms
	for _, a := range algorithms {
		if a == "bogus" {
			return nil, model.ErrUnsupportedAlgorithm
		}
	}
	return []model.AlgorithmResult{model.NewAlgorithmResult("dummy", []int{movieID + 1, movieID + 2})}, nil
}

type stubSearch struct{}

func (stubSearch) Search(ctx context.Context, query string, limit int) ([]int, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.ErrInvalidQuery
	}
	return []int{1}, nil
}

type stubMovies map[int]string

func (s stubMovies) FindByIDs(ctx context.Context, ids []int) (map[int]model.Movie, error) {
	out := map[int]model.Movie{}
	for _, id := range ids {
		if t, ok := s[id]; ok {
			out[id] = model.Movie{ID: id, Title: t}
		}
	}
	return out, nil
}

func (s stubMovies) FindByID(ctx context.Context, id int) (*model.Movie, error) {
	t, ok := s[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &model.Movie{ID: id, Title: t}, nil
}

func (s stubMovies) FindLink(ctx context.Context, id int) (*model.Link, error) {
	return nil, model.ErrNotFound
}

type linkedMovies struct {
	stubMovies
	links map[int]model.Link
}

func (l linkedMovies) FindLink(ctx context.Context, id int) (*model.Link, error) {
	link, ok := l.links[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &link, nil
}

type blockingIngester struct {
	release chan struct{}
	mu      sync.Mutex
	got     []service.RunOptions
}

func (b *blockingIngester) Run(ctx context.Context, opts service.RunOptions) (*service.IngestionReport, error) {
	b.mu.Lock()
	b.got = append(b.got, opts)
	b.mu.Unlock()
	<-b.release
	return &service.IngestionReport{Source: opts.Source}, nil
}

type stubRebuilder struct{}

func (stubRebuilder) Rebuild(ctx context.Context, opts service.RebuildOptions) (*service.RebuildReport, error) {
	return nil, model.ErrNotEnoughData
}

func newTestEngine(h *Handler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/api/movies/:id", h.Movie)
	r.GET("/api/movies/:id/recommendations", h.Recommendations)
	r.GET("/api/titles/search", h.SearchTitles)
	r.POST("/api/admin/ingest", h.Ingest)
	r.POST("/api/admin/similarity/rebuild", h.RebuildSimilarity)
	r.GET("/api/admin/jobs", h.Jobs)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func TestRecommendationsEndpoint(t *testing.T) {
	rec := &stubRecommender{}
	h := NewHandler(context.Background(), Deps{
		Recommender: rec,
		Movies:      stubMovies{11: "Heat (1995)"},
	}, zerolog.Nop())
	r := newTestEngine(h)

	w := do(r, http.MethodGet, "/api/movies/10/recommendations?algorithms=dummy,%20rating-based,,", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Join(rec.gotAlgorithms, "|") != "dummy|rating-based" {
		t.Errorf("algorithms = %v", rec.gotAlgorithms)
	}

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	var data struct {
		MovieID int                     `json:"movie_id"`
		Results []model.AlgorithmResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.MovieID != 10 || len(data.Results) != 1 {
		t.Fatalf("data = %+v", data)
	}
	items := data.Results[0].Items
	if items[0].MovieID != 11 || items[0].Title != "Heat (1995)" || items[1].Title != "" {
		t.Errorf("items = %+v", items)
	}
}

func TestRecommendationsBadRequests(t *testing.T) {
	h := NewHandler(context.Background(), Deps{Recommender: &stubRecommender{}}, zerolog.Nop())
	r := newTestEngine(h)

	if w := do(r, http.MethodGet, "/api/movies/abc/recommendations", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/movies/1/recommendations?algorithms=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown algorithm: status %d", w.Code)
	}
}

func TestSearchTitlesEndpoint(t *testing.T) {
	h := NewHandler(context.Background(), Deps{Titles: stubSearch{}, Movies: stubMovies{1: "Toy Story (1995)"}}, zerolog.Nop())
	r := newTestEngine(h)

	w := do(r, http.MethodGet, "/api/titles/search?q=toy", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Toy Story (1995)") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/api/titles/search?q=", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: status %d", w.Code)
	}
}

func TestIngestRunsInBackgroundOnce(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{})}
	h := NewHandler(context.Background(), Deps{Ingester: ing}, zerolog.Nop())
	r := newTestEngine(h)

	w := do(r, http.MethodPost, "/api/admin/ingest", `{"source":"image","limit":10,"truncate":true,"workers":2}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/admin/ingest", `{"source":"image"}`); w.Code != http.StatusConflict {
		t.Errorf("second run: status %d, want 409", w.Code)
	}
	// 不同来源互不影响
	if w := do(r, http.MethodPost, "/api/admin/ingest", `{"source":"text"}`); w.Code != http.StatusAccepted {
		t.Errorf("text run: status %d", w.Code)
	}

	close(ing.release)
	h.Wait()

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if len(ing.got) != 2 {
		t.Fatalf("runs = %d, want 2", len(ing.got))
	}
	for _, opts := range ing.got {
		if opts.Source == model.SourceImage && (opts.Limit != 10 || !opts.Truncate || opts.Workers != 2) {
			t.Errorf("image options = %+v", opts)
		}
	}

	w = do(r, http.MethodGet, "/api/admin/jobs", "")
	if !strings.Contains(w.Body.String(), `"ingest:image"`) || strings.Contains(w.Body.String(), `"running":true`) {
		t.Errorf("jobs = %s", w.Body.String())
	}
}

func TestIngestValidation(t *testing.T) {
	h := NewHandler(context.Background(), Deps{Ingester: &blockingIngester{release: make(chan struct{})}}, zerolog.Nop())
	r := newTestEngine(h)

	for _, body := range []string{`{"source":"audio"}`, `{}`, `{"source":"image","limit":-1}`, `not json`} {
		if w := do(r, http.MethodPost, "/api/admin/ingest", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, w.Code)
		}
	}
}

func TestRebuildReportsFailureInJobs(t *testing.T) {
	h := NewHandler(context.Background(), Deps{Rebuilder: stubRebuilder{}}, zerolog.Nop())
	r := newTestEngine(h)

	if w := do(r, http.MethodPost, "/api/admin/similarity/rebuild", ""); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	h.Wait()

	w := do(r, http.MethodGet, "/api/admin/jobs", "")
	if !strings.Contains(w.Body.String(), "not enough data") {
		t.Fatalf("jobs = %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ok := NewHandler(context.Background(), Deps{Ping: func(ctx context.Context) error { return nil }}, zerolog.Nop())
	if w := do(newTestEngine(ok), http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("healthy: status %d", w.Code)
	}

	down := NewHandler(context.Background(), Deps{Ping: func(ctx context.Context) error { return errors.New("refused") }}, zerolog.Nop())
	if w := do(newTestEngine(down), http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status %d", w.Code)
	}
}

func TestRebuildRejectsSampleCapBelowTwo(t *testing.T) {
	h := NewHandler(context.Background(), Deps{Rebuilder: stubRebuilder{}}, zerolog.Nop())
	r := newTestEngine(h)

	if w := do(r, http.MethodPost, "/api/admin/similarity/rebuild", `{"user_sample_cap":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("cap 1: status %d, want 400", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/admin/similarity/rebuild", `{"user_sample_cap":0,"seed":3}`); w.Code != http.StatusAccepted {
		t.Fatalf("cap 0: status %d, want 202", w.Code)
	}
	h.Wait()
}

func TestMovieEndpoint(t *testing.T) {
	tmdbID := 949
	movies := linkedMovies{
		stubMovies: stubMovies{6: "Heat (1995)", 7: "Sabrina (1995)"},
		links:      map[int]model.Link{6: {MovieID: 6, IMDbID: "0113277", TMDBID: &tmdbID}},
	}
	h := NewHandler(context.Background(), Deps{Movies: movies}, zerolog.Nop())
	r := newTestEngine(h)

	tests := []struct {
		name     string
		path     string
		status   int
		contains []string
		absent   []string
	}{
		{"with links", "/api/movies/6", http.StatusOK, []string{`"title":"Heat (1995)"`, `"imdb_id":"0113277"`, `"tmdb_id":949`}, nil},
		{"without links", "/api/movies/7", http.StatusOK, []string{`"title":"Sabrina (1995)"`}, []string{"imdb_id", "tmdb_id"}},
		{"unknown movie", "/api/movies/8", http.StatusNotFound, nil, nil},
		{"bad id", "/api/movies/x", http.StatusBadRequest, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			for _, want := range tt.contains {
				if !strings.Contains(w.Body.String(), want) {
					t.Errorf("body %s missing %s", w.Body.String(), want)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(w.Body.String(), unwanted) {
					t.Errorf("body %s should not contain %s", w.Body.String(), unwanted)
				}
			}
		})
	}
}
