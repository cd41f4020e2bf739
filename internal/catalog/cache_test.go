package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/mediatech/internal/model"
)

func TestCachedSearcher_HitAvoidsSourceCall(t *testing.T) {
	books := &fakeSource{name: "google_books", results: []MediaDetails{{ExternalID: "a"}}}
	movies := &fakeSource{name: "tmdb"}
	metrics := newFakeMetrics()
	s := NewCachedSearcher(NewRegistry(books, movies), 16, time.Minute, metrics)

	for i := 0; i < 3; i++ {
		got, err := s.Search(context.Background(), model.MediaKindBook, "  Dune ", 1)
		if err != nil {
			t.Fatalf("Search returned error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
	}
	// 大文字小文字と前後空白はキャッシュキーで正規化される
	if _, err := s.Search(context.Background(), model.MediaKindBook, "dune", 1); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	if books.searchCalls != 1 {
		t.Errorf("source calls = %d, want 1", books.searchCalls)
	}
	if metrics.cacheHits != 3 || metrics.cacheMisses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", metrics.cacheHits, metrics.cacheMisses)
	}
}

func TestCachedSearcher_KeyIncludesKindAndPage(t *testing.T) {
	books := &fakeSource{name: "google_books"}
	movies := &fakeSource{name: "tmdb"}
	s := NewCachedSearcher(NewRegistry(books, movies), 16, time.Minute, nil)
	ctx := context.Background()

	s.Search(ctx, model.MediaKindBook, "alien", 1)
	s.Search(ctx, model.MediaKindBook, "alien", 2)
	s.Search(ctx, model.MediaKindMovie, "alien", 1)

	if books.searchCalls != 2 {
		t.Errorf("book source calls = %d, want 2", books.searchCalls)
	}
	if movies.searchCalls != 1 {
		t.Errorf("movie source calls = %d, want 1", movies.searchCalls)
	}
	if s.Len() != 3 {
		t.Errorf("cache len = %d, want 3", s.Len())
	}
}

func TestCachedSearcher_ErrorsAreNotCached(t *testing.T) {
	books := &fakeSource{name: "google_books", searchErr: ErrUnavailable}
	s := NewCachedSearcher(NewRegistry(books, &fakeSource{name: "tmdb"}), 16, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Search(context.Background(), model.MediaKindBook, "x", 1); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("error = %v, want ErrUnavailable", err)
		}
	}
	if books.searchCalls != 2 {
		t.Errorf("source calls = %d, want 2", books.searchCalls)
	}
}

func TestCachedSearcher_ExpiresAfterTTL(t *testing.T) {
	books := &fakeSource{name: "google_books"}
	s := NewCachedSearcher(NewRegistry(books, &fakeSource{name: "tmdb"}), 16, 20*time.Millisecond, nil)

	s.Search(context.Background(), model.MediaKindBook, "x", 1)
	time.Sleep(60 * time.Millisecond)
	s.Search(context.Background(), model.MediaKindBook, "x", 1)

	if books.searchCalls != 2 {
		t.Errorf("source calls = %d, want 2", books.searchCalls)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry(&fakeSource{name: "google_books"}, &fakeSource{name: "tmdb"})

	if _, err := r.Fetch(context.Background(), model.MediaKind("music"), "1"); !errors.Is(err, model.ErrUnsupportedMediaKind) {
		t.Errorf("error = %v, want ErrUnsupportedMediaKind", err)
	}
}

func TestMediaDetails_BookAndMovie(t *testing.T) {
	d := &MediaDetails{ExternalID: "x", Title: "T", Creator: "C", Synopsis: "S", ImageURL: "I", ReleaseDate: "2001", Length: 90}

	b := d.Book()
	if b.Authors != "C" || b.Description != "S" || b.CoverURL != "I" || b.PageCount != 90 {
		t.Errorf("Book() = %+v", b)
	}
	m := d.Movie()
	if m.Director != "C" || m.Overview != "S" || m.PosterURL != "I" || m.RuntimeMinutes != 90 {
		t.Errorf("Movie() = %+v", m)
	}
}
