package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/model"
)

// LibraryServiceInterface はライブラリハンドラーが必要とするサービスインターフェース。
type LibraryServiceInterface interface {
	// AddToDefaultCollection はメディアをデフォルトコレクションへ追加し、既に所属していたかを返す。
	AddToDefaultCollection(ctx context.Context, userID string, kind model.MediaKind, externalID string) (bool, error)
	AddToCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, externalID string) (bool, error)
	RemoveFromCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, mediaID string) error
}

// LibraryHandler はコレクションへのメディア追加・削除のHTTPハンドラー。
type LibraryHandler struct {
	service LibraryServiceInterface
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(service LibraryServiceInterface) *LibraryHandler {
	return &LibraryHandler{service: service}
}

// libraryAddResponse は追加結果のAPIレスポンス。
type libraryAddResponse struct {
	AlreadyPresent bool `json:"already_present"`
}

// AddToLibrary はメディアをデフォルトコレクションへ追加する。
// 新規追加は201、既に所属していた場合は200を返す。
// POST /api/library/{kind}/{externalId}
func (h *LibraryHandler) AddToLibrary(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	kind, ok := parseKind(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalId")

	alreadyPresent, err := h.service.AddToDefaultCollection(r.Context(), userID, kind, externalID)
	if err != nil {
		handleMediaError(w, err, kind, externalID)
		return
	}
	writeAddResult(w, alreadyPresent)
}

// AddToCollection はメディアを指定コレクションへ追加する。
// POST /api/collections/{id}/items/{kind}/{mediaId}（mediaIdは外部ID）
func (h *LibraryHandler) AddToCollection(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}
	kind, ok := parseKind(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "mediaId")

	alreadyPresent, err := h.service.AddToCollection(r.Context(), userID, collectionID, kind, externalID)
	if err != nil {
		handleMediaError(w, err, kind, externalID)
		return
	}
	writeAddResult(w, alreadyPresent)
}

// RemoveFromCollection はコレクションからメディアを外す。所属していない場合も204を返す。
// DELETE /api/collections/{id}/items/{kind}/{mediaId}
func (h *LibraryHandler) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}
	kind, ok := parseKind(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}

	if err := h.service.RemoveFromCollection(r.Context(), userID, collectionID, kind, chi.URLParam(r, "mediaId")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAddResult(w http.ResponseWriter, alreadyPresent bool) {
	status := http.StatusCreated
	if alreadyPresent {
		status = http.StatusOK
	}
	writeJSON(w, status, libraryAddResponse{AlreadyPresent: alreadyPresent})
}
