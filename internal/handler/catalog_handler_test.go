package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/model"
)

func TestCatalogHandler_Search(t *testing.T) {
	var gotQuery string
	var gotPage int
	svc := &mockCatalogService{
		searchFn: func(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error) {
			gotQuery, gotPage = query, page
			return []catalog.MediaDetails{{ExternalID: "603", Title: "The Matrix"}}, nil
		},
	}
	h := NewCatalogHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/movie/search?q=+matrix+&page=2", nil)
	req = withChiURLParams(req, "kind", "movie")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotQuery != "matrix" || gotPage != 2 {
		t.Errorf("Search(%q, %d), want (%q, 2)", gotQuery, gotPage, "matrix")
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Kind != "movie" || len(resp.Results) != 1 || resp.Results[0].Title != "The Matrix" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCatalogHandler_Search_PageOutOfRangeFallsBackToFirst(t *testing.T) {
	for _, raw := range []string{"0", "-3", "abc", "51"} {
		t.Run(raw, func(t *testing.T) {
			var gotPage int
			svc := &mockCatalogService{
				searchFn: func(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error) {
					gotPage = page
					return nil, nil
				},
			}
			h := NewCatalogHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/search?q=go&page="+raw, nil)
			req = withChiURLParams(req, "kind", "book")
			w := httptest.NewRecorder()
			h.Search(w, req)

			if gotPage != 1 {
				t.Errorf("page = %d, want 1", gotPage)
			}
		})
	}
}

func TestCatalogHandler_Search_EmptyResultsEncodeAsArray(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/search?q=nothing", nil)
	req = withChiURLParams(req, "kind", "book")
	w := httptest.NewRecorder()
	h.Search(w, req)

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(raw["results"]) != "[]" {
		t.Errorf("results = %s, want []", raw["results"])
	}
}

func TestCatalogHandler_Search_Rejections(t *testing.T) {
	h := NewCatalogHandler(&mockCatalogService{})

	t.Run("empty query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/search?q=%20", nil)
		req = withChiURLParams(req, "kind", "book")
		w := httptest.NewRecorder()
		h.Search(w, req)
		assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidationFailed)
	})

	t.Run("unsupported kind", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog/game/search?q=zelda", nil)
		req = withChiURLParams(req, "kind", "game")
		w := httptest.NewRecorder()
		h.Search(w, req)
		assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidMediaKind)
	})
}

func TestCatalogHandler_Search_Unavailable(t *testing.T) {
	svc := &mockCatalogService{
		searchFn: func(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error) {
			return nil, catalog.ErrUnavailable
		},
	}
	h := NewCatalogHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/search?q=go", nil)
	req = withChiURLParams(req, "kind", "book")
	w := httptest.NewRecorder()
	h.Search(w, req)

	assertErrorCode(t, w, http.StatusBadGateway, model.ErrCodeCatalogUnavailable)
}

func TestCatalogHandler_Detail(t *testing.T) {
	svc := &mockCatalogService{
		fetchFn: func(ctx context.Context, kind model.MediaKind, externalID string) (*catalog.MediaDetails, error) {
			if externalID == "missing" {
				return nil, catalog.ErrNotFound
			}
			return &catalog.MediaDetails{ExternalID: externalID, Title: "Dune", Creator: "Frank Herbert"}, nil
		},
	}
	h := NewCatalogHandler(svc)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/B1", nil)
		req = withChiURLParams(req, "kind", "book", "externalId", "B1")
		w := httptest.NewRecorder()
		h.Detail(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var resp catalog.MediaDetails
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Title != "Dune" || resp.Creator != "Frank Herbert" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/catalog/book/missing", nil)
		req = withChiURLParams(req, "kind", "book", "externalId", "missing")
		w := httptest.NewRecorder()
		h.Detail(w, req)
		assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeMediaNotFound)
	})
}
