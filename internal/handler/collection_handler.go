package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/mediatech/internal/collection"
	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
)

// CollectionServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	Create(ctx context.Context, userID, name, description string, visibility model.Visibility) (*model.Collection, error)
	ListMine(ctx context.Context, userID string) ([]repository.CollectionSummary, error)
	ListPublic(ctx context.Context, limit, offset int) ([]repository.CollectionSummary, error)
	// Get はviewerIDが空の場合、公開コレクションのみを返す。
	Get(ctx context.Context, viewerID, collectionID string) (*collection.Detail, error)
	Update(ctx context.Context, userID, collectionID, name, description string, visibility model.Visibility) (*model.Collection, error)
	Delete(ctx context.Context, userID, collectionID string) error
	Rate(ctx context.Context, userID, collectionID string, score int) error
	Comment(ctx context.Context, userID, collectionID, body string) (*model.CollectionComment, error)
	ListComments(ctx context.Context, viewerID, collectionID string) ([]*model.CollectionComment, error)
	DeleteComment(ctx context.Context, actor *model.User, commentID string) error
}

// CollectionHandler はコレクション・評価・コメントのHTTPハンドラー。
type CollectionHandler struct {
	service CollectionServiceInterface
	users   middleware.UserFinder
}

// NewCollectionHandler はCollectionHandlerを生成する。
// usersはコメント削除時の権限判定に使う。
func NewCollectionHandler(service CollectionServiceInterface, users middleware.UserFinder) *CollectionHandler {
	return &CollectionHandler{
		service: service,
		users:   users,
	}
}

type createCollectionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=private public"`
}

type updateCollectionRequest struct {
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=private public"`
}

type rateRequest struct {
	Score int `json:"score" validate:"required,min=1,max=5"`
}

type commentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// collectionResponse はコレクション情報のAPIレスポンス。
type collectionResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Visibility  string    `json:"visibility"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// collectionSummaryResponse は一覧表示用のAPIレスポンス。
type collectionSummaryResponse struct {
	collectionResponse
	OwnerName    string  `json:"owner_name"`
	BookCount    int     `json:"book_count"`
	MovieCount   int     `json:"movie_count"`
	AverageScore float64 `json:"average_score"`
	RatingCount  int     `json:"rating_count"`
}

type bookResponse struct {
	ID            string `json:"id"`
	ExternalID    string `json:"external_id"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Description   string `json:"description"`
	CoverURL      string `json:"cover_url"`
	PublishedDate string `json:"published_date"`
	PageCount     int    `json:"page_count"`
}

type movieResponse struct {
	ID             string `json:"id"`
	ExternalID     string `json:"external_id"`
	Title          string `json:"title"`
	Director       string `json:"director"`
	Overview       string `json:"overview"`
	PosterURL      string `json:"poster_url"`
	ReleaseDate    string `json:"release_date"`
	RuntimeMinutes int    `json:"runtime_minutes"`
}

// collectionDetailResponse はコレクション詳細のAPIレスポンス。
type collectionDetailResponse struct {
	collectionResponse
	Books        []bookResponse  `json:"books"`
	Movies       []movieResponse `json:"movies"`
	AverageScore float64         `json:"average_score"`
	RatingCount  int             `json:"rating_count"`
}

type commentResponse struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	UserID       string    `json:"user_id"`
	AuthorName   string    `json:"author_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListPublic は公開コレクションを新しい順で返す。
// GET /api/collections/public?limit=&offset=
func (h *CollectionHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListPublic(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponses(summaries))
}

// ListMine はログインユーザーのコレクション一覧を返す。
// GET /api/collections/mine
func (h *CollectionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	summaries, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponses(summaries))
}

// Create はコレクションを作成する。
// POST /api/collections/mine
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	var req createCollectionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), userID, req.Name, req.Description, model.Visibility(req.Visibility))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionResponse(c))
}

// Get はコレクション詳細を返す。未ログインでも公開コレクションは閲覧できる。
// GET /api/collections/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), viewerID, collectionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := collectionDetailResponse{
		collectionResponse: toCollectionResponse(detail.Collection),
		Books:              make([]bookResponse, 0, len(detail.Books)),
		Movies:             make([]movieResponse, 0, len(detail.Movies)),
		AverageScore:       detail.AverageScore,
		RatingCount:        detail.RatingCount,
	}
	for _, b := range detail.Books {
		resp.Books = append(resp.Books, bookResponse{
			ID:            b.ID,
			ExternalID:    b.ExternalID,
			Title:         b.Title,
			Authors:       b.Authors,
			Description:   b.Description,
			CoverURL:      b.CoverURL,
			PublishedDate: b.PublishedDate,
			PageCount:     b.PageCount,
		})
	}
	for _, m := range detail.Movies {
		resp.Movies = append(resp.Movies, movieResponse{
			ID:             m.ID,
			ExternalID:     m.ExternalID,
			Title:          m.Title,
			Director:       m.Director,
			Overview:       m.Overview,
			PosterURL:      m.PosterURL,
			ReleaseDate:    m.ReleaseDate,
			RuntimeMinutes: m.RuntimeMinutes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update はコレクションの名前・説明・公開範囲を更新する。
// PATCH /api/collections/{id}
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}
	var req updateCollectionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), userID, collectionID, req.Name, req.Description, model.Visibility(req.Visibility))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

// Delete はコレクションを削除する。
// DELETE /api/collections/{id}
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, collectionID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rate は公開コレクションを評価する。
// PUT /api/collections/{id}/rating
func (h *CollectionHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}
	var req rateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.Rate(r.Context(), userID, collectionID, req.Score); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments はコレクションのコメント一覧を返す。
// GET /api/collections/{id}/comments
func (h *CollectionHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), viewerID, collectionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostComment は公開コレクションにコメントを投稿する。
// POST /api/collections/{id}/comments
func (h *CollectionHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	collectionID, ok := uuidParam(w, r, "id", model.NewCollectionNotFoundError)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	comment, err := h.service.Comment(r.Context(), userID, collectionID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// DeleteComment はコメントを削除する。投稿者本人または管理者のみ。
// DELETE /api/comments/{id}
func (h *CollectionHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	commentID, ok := uuidParam(w, r, "id", model.NewCommentNotFoundError)
	if !ok {
		return
	}

	actor, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if actor == nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.DeleteComment(r.Context(), actor, commentID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCollectionResponse(c *model.Collection) collectionResponse {
	return collectionResponse{
		ID:          c.ID,
		UserID:      c.UserID,
		Name:        c.Name,
		Description: c.Description,
		Visibility:  string(c.Visibility),
		IsDefault:   c.IsDefault(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toSummaryResponses(summaries []repository.CollectionSummary) []collectionSummaryResponse {
	resp := make([]collectionSummaryResponse, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		resp = append(resp, collectionSummaryResponse{
			collectionResponse: toCollectionResponse(&s.Collection),
			OwnerName:          s.OwnerName,
			BookCount:          s.BookCount,
			MovieCount:         s.MovieCount,
			AverageScore:       s.AverageScore,
			RatingCount:        s.RatingCount,
		})
	}
	return resp
}

func toCommentResponse(c *model.CollectionComment) commentResponse {
	return commentResponse{
		ID:           c.ID,
		CollectionID: c.CollectionID,
		UserID:       c.UserID,
		AuthorName:   c.AuthorName,
		Body:         c.Body,
		CreatedAt:    c.CreatedAt,
	}
}
