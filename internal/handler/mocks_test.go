package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/collection"
	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/model"
	"github.com/hitoshi/mediatech/internal/repository"
)

// テストで使うリソースID。パスパラメータはUUID形式のみ受け付ける。
const (
	testCollectionID      = "3f2b8c1d-6a4e-4f0b-9c7d-2e5a1b8f4c60"
	testOtherCollectionID = "9a0d5e7c-1b3f-4a26-8e4d-7c6b5a4f3e21"
	testCommentID         = "c4e1a2b3-5d6f-4788-9a0b-1c2d3e4f5a6b"
	testMediaID           = "7e8f9a0b-1c2d-4e3f-8a5b-6c7d8e9f0a1b"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, email, name, password string) (*model.User, error)
	loginFn          func(ctx context.Context, email, password, origin string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, name, password)
	}
	return &model.User{ID: "user-new", Email: email, Name: name, Role: model.RoleUser}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password, origin string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password, origin)
	}
	return &model.Session{ID: "session-new", UserID: "user-1"}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

// mockLibraryService はLibraryServiceInterfaceのモック実装。
type mockLibraryService struct {
	addDefaultFn func(ctx context.Context, userID string, kind model.MediaKind, externalID string) (bool, error)
	addFn        func(ctx context.Context, userID, collectionID string, kind model.MediaKind, externalID string) (bool, error)
	removeFn     func(ctx context.Context, userID, collectionID string, kind model.MediaKind, mediaID string) error
}

func (m *mockLibraryService) AddToDefaultCollection(ctx context.Context, userID string, kind model.MediaKind, externalID string) (bool, error) {
	if m.addDefaultFn != nil {
		return m.addDefaultFn(ctx, userID, kind, externalID)
	}
	return false, nil
}

func (m *mockLibraryService) AddToCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, externalID string) (bool, error) {
	if m.addFn != nil {
		return m.addFn(ctx, userID, collectionID, kind, externalID)
	}
	return false, nil
}

func (m *mockLibraryService) RemoveFromCollection(ctx context.Context, userID, collectionID string, kind model.MediaKind, mediaID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, collectionID, kind, mediaID)
	}
	return nil
}

// mockCatalogService はCatalogServiceInterfaceのモック実装。
type mockCatalogService struct {
	searchFn func(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error)
	fetchFn  func(ctx context.Context, kind model.MediaKind, externalID string) (*catalog.MediaDetails, error)
}

func (m *mockCatalogService) Search(ctx context.Context, kind model.MediaKind, query string, page int) ([]catalog.MediaDetails, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, kind, query, page)
	}
	return nil, nil
}

func (m *mockCatalogService) Fetch(ctx context.Context, kind model.MediaKind, externalID string) (*catalog.MediaDetails, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, kind, externalID)
	}
	return &catalog.MediaDetails{ExternalID: externalID}, nil
}

// mockCollectionService はCollectionServiceInterfaceのモック実装。
type mockCollectionService struct {
	createFn        func(ctx context.Context, userID, name, description string, visibility model.Visibility) (*model.Collection, error)
	listMineFn      func(ctx context.Context, userID string) ([]repository.CollectionSummary, error)
	listPublicFn    func(ctx context.Context, limit, offset int) ([]repository.CollectionSummary, error)
	getFn           func(ctx context.Context, viewerID, collectionID string) (*collection.Detail, error)
	updateFn        func(ctx context.Context, userID, collectionID, name, description string, visibility model.Visibility) (*model.Collection, error)
	deleteFn        func(ctx context.Context, userID, collectionID string) error
	rateFn          func(ctx context.Context, userID, collectionID string, score int) error
	commentFn       func(ctx context.Context, userID, collectionID, body string) (*model.CollectionComment, error)
	listCommentsFn  func(ctx context.Context, viewerID, collectionID string) ([]*model.CollectionComment, error)
	deleteCommentFn func(ctx context.Context, actor *model.User, commentID string) error
}

func (m *mockCollectionService) Create(ctx context.Context, userID, name, description string, visibility model.Visibility) (*model.Collection, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name, description, visibility)
	}
	return &model.Collection{ID: "coll-new", UserID: userID, Name: name, Visibility: visibility, Scope: model.ScopeUser}, nil
}

func (m *mockCollectionService) ListMine(ctx context.Context, userID string) ([]repository.CollectionSummary, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCollectionService) ListPublic(ctx context.Context, limit, offset int) ([]repository.CollectionSummary, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockCollectionService) Get(ctx context.Context, viewerID, collectionID string) (*collection.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, viewerID, collectionID)
	}
	return nil, model.NewCollectionNotFoundError(collectionID)
}

func (m *mockCollectionService) Update(ctx context.Context, userID, collectionID, name, description string, visibility model.Visibility) (*model.Collection, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, collectionID, name, description, visibility)
	}
	return &model.Collection{ID: collectionID, UserID: userID, Name: name}, nil
}

func (m *mockCollectionService) Delete(ctx context.Context, userID, collectionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, collectionID)
	}
	return nil
}

func (m *mockCollectionService) Rate(ctx context.Context, userID, collectionID string, score int) error {
	if m.rateFn != nil {
		return m.rateFn(ctx, userID, collectionID, score)
	}
	return nil
}

func (m *mockCollectionService) Comment(ctx context.Context, userID, collectionID, body string) (*model.CollectionComment, error) {
	if m.commentFn != nil {
		return m.commentFn(ctx, userID, collectionID, body)
	}
	return &model.CollectionComment{ID: "comment-new", CollectionID: collectionID, UserID: userID, Body: body}, nil
}

func (m *mockCollectionService) ListComments(ctx context.Context, viewerID, collectionID string) ([]*model.CollectionComment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, viewerID, collectionID)
	}
	return nil, nil
}

func (m *mockCollectionService) DeleteComment(ctx context.Context, actor *model.User, commentID string) error {
	if m.deleteCommentFn != nil {
		return m.deleteCommentFn(ctx, actor, commentID)
	}
	return nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockUserFinder はmiddleware.UserFinderのモック実装。
type mockUserFinder struct {
	users map[string]*model.User
	err   error
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

// mockAttemptLister はLoginAttemptListerのモック実装。
type mockAttemptLister struct {
	recentFn func(ctx context.Context, identity, origin string, limit int) ([]*model.LoginAttempt, error)
}

func (m *mockAttemptLister) Recent(ctx context.Context, identity, origin string, limit int) ([]*model.LoginAttempt, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, identity, origin, limit)
	}
	return nil, nil
}

// mockModerator はCollectionModeratorのモック実装。
type mockModerator struct {
	deleteFn func(ctx context.Context, adminID, collectionID string) error
}

func (m *mockModerator) DeleteAsAdmin(ctx context.Context, adminID, collectionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, adminID, collectionID)
	}
	return nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。kvはキーと値の組。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// assertErrorCode はステータスコードとエラーコードを検証するヘルパー。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != wantCode {
		t.Errorf("code = %q, want %q", body["code"], wantCode)
	}
}
