package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/user/moovierec/internal/model"
)

type fakeSearcher struct {
	calls    int
	gotQuery string
	gotLimit int
	ids      []int
	err      error
}

func (f *fakeSearcher) SearchByTitle(ctx context.Context, query string, limit int) ([]int, error) {
	f.calls++
	f.gotQuery, f.gotLimit = query, limit
	return f.ids, f.err
}

func TestTitleResolverSearch(t *testing.T) {
	searcher := &fakeSearcher{ids: []int{1, 3114}}
	r := NewTitleResolver(searcher)

	got, err := r.Search(context.Background(), "  Toy Story ", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !reflect.DeepEqual(got, []int{1, 3114}) {
		t.Fatalf("got %v", got)
	}
	if searcher.gotQuery != "Toy Story" || searcher.gotLimit != 10 {
		t.Errorf("query=%q limit=%d, want trimmed query and default limit 10", searcher.gotQuery, searcher.gotLimit)
	}

	// 第二次命中缓存
	if _, err := r.Search(context.Background(), "Toy Story", 10); err != nil {
		t.Fatalf("Search again: %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("searcher called %d times, want 1", searcher.calls)
	}
}

func TestTitleResolverLimit(t *testing.T) {
	r := NewTitleResolver(&fakeSearcher{ids: []int{5, 6, 7}})
	got, err := r.Search(context.Background(), "Alien", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want at most 2 ids", got)
	}
}

func TestTitleResolverErrors(t *testing.T) {
	r := NewTitleResolver(&fakeSearcher{err: errors.New("db closed")})

	if _, err := r.Search(context.Background(), "   ", 5); !errors.Is(err, model.ErrInvalidQuery) {
		t.Fatalf("blank query: got %v, want ErrInvalidQuery", err)
	}
	if _, err := r.Search(context.Background(), "Heat", 5); err == nil {
		t.Fatal("expected searcher error")
	}
}
