package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// fakeSource は呼び出し回数を記録し、設定されたエラーを返すSource。
type fakeSource struct {
	mu          sync.Mutex
	name        string
	fetchErr    error
	searchErr   error
	details     *MediaDetails
	results     []MediaDetails
	fetchCalls  int
	searchCalls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, externalID string) (*MediaDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.details != nil {
		return f.details, nil
	}
	return &MediaDetails{ExternalID: externalID, Title: "title-" + externalID}, nil
}

func (f *fakeSource) Search(ctx context.Context, query string, page int) ([]MediaDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

// fakeMetrics はカタログ層のメトリクス呼び出しを記録する。
type fakeMetrics struct {
	mu           sync.Mutex
	breakerState map[string]float64
	cacheHits    int
	cacheMisses  int
	failures     int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{breakerState: make(map[string]float64)}
}

func (m *fakeMetrics) ObserveCatalogRequest(string, time.Duration) {}
func (m *fakeMetrics) RecordCatalogFailure(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}
func (m *fakeMetrics) SetCatalogBreakerState(source string, state float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerState[source] = state
}
func (m *fakeMetrics) RecordCatalogCache(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func testBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Hour,
		ConsecutiveFailures: 3,
	}
}

func TestBreakerSource_OpensAfterConsecutiveFailures(t *testing.T) {
	src := &fakeSource{name: "tmdb", fetchErr: ErrUnavailable}
	metrics := newFakeMetrics()
	b := NewBreakerSource(src, testBreakerSettings(), metrics, nil)

	for i := 0; i < 3; i++ {
		if _, err := b.Fetch(context.Background(), "603"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: error = %v, want ErrUnavailable", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	_, err := b.Fetch(context.Background(), "603")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("open circuit error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open circuit error = %v, want to wrap ErrOpenState", err)
	}
	if src.fetchCalls != 3 {
		t.Errorf("source calls = %d, want 3 (open circuit must not call source)", src.fetchCalls)
	}
	if metrics.breakerState["tmdb"] != 2 {
		t.Errorf("breaker state metric = %v, want 2", metrics.breakerState["tmdb"])
	}
}

func TestBreakerSource_NotFoundDoesNotTrip(t *testing.T) {
	src := &fakeSource{name: "google_books", fetchErr: ErrNotFound}
	b := NewBreakerSource(src, testBreakerSettings(), nil, nil)

	for i := 0; i < 10; i++ {
		if _, err := b.Fetch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerSource_PassesResultsThrough(t *testing.T) {
	src := &fakeSource{name: "tmdb", results: []MediaDetails{{ExternalID: "1"}, {ExternalID: "2"}}}
	b := NewBreakerSource(src, DefaultBreakerSettings(), nil, nil)

	got, err := b.Search(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	d, err := b.Fetch(context.Background(), "42")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if d.ExternalID != "42" {
		t.Errorf("ExternalID = %q, want 42", d.ExternalID)
	}
	if b.Name() != "tmdb" {
		t.Errorf("Name = %q, want tmdb", b.Name())
	}
}
