package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/model"
)

// maxSearchPage は検索で指定できる最大ページ番号。
const maxSearchPage = 50

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
// catalog.CachedSearcherが実装する。
type CatalogServiceInterface interface {
	Search(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error)
	Fetch(ctx context.Context, kind model.MediaKind, externalID string) (*catalog.MediaDetails, error)
}

// CatalogHandler は外部カタログの検索・詳細取得のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// searchResponse は検索結果のAPIレスポンス。
type searchResponse struct {
	Kind    string                 `json:"kind"`
	Query   string                 `json:"query"`
	Page    int                    `json:"page"`
	Results []catalog.MediaDetails `json:"results"`
}

// Search は外部カタログをキーワード検索する。
// GET /api/catalog/{kind}/search?q=&page=
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("検索キーワードが空です"))
		return
	}
	page := queryInt(r, "page", 1)
	if page < 1 || page > maxSearchPage {
		page = 1
	}

	results, err := h.service.Search(r.Context(), kind, query, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if results == nil {
		results = []catalog.MediaDetails{}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Kind:    string(kind),
		Query:   query,
		Page:    page,
		Results: results,
	})
}

// Detail は外部IDでメディア詳細を取得する。
// GET /api/catalog/{kind}/{externalId}
func (h *CatalogHandler) Detail(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalId")

	details, err := h.service.Fetch(r.Context(), kind, externalID)
	if err != nil {
		handleMediaError(w, err, kind, externalID)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
