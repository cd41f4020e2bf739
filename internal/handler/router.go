package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mediatech/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// カタログ・ライブラリ・コレクション
	CatalogService    CatalogServiceInterface
	LibraryService    LibraryServiceInterface
	CollectionService CollectionServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 管理者
	LoginAttempts       LoginAttemptLister
	CollectionModerator CollectionModerator
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF → [Session → RateLimit(General)] → handler
//
// 認証ルート（/auth/*）はSessionの外に配置し、送信元IPごとのレート制限を適用する。
// 公開コレクションの閲覧は任意セッションで、ログイン中なら自分の非公開コレクションも閲覧できる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	libraryHandler := NewLibraryHandler(deps.LibraryService)
	collectionHandler := NewCollectionHandler(deps.CollectionService, deps.UserFinder)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.LoginAttempts, deps.CollectionModerator)

	// --- 認証不要のルート ---

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api/catalog/{kind}", func(r chi.Router) {
		r.Get("/search", catalogHandler.Search)
		r.Get("/{externalId}", catalogHandler.Detail)
	})

	// 公開コレクションの閲覧（セッションは任意）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))

		r.Get("/api/collections/public", collectionHandler.ListPublic)
		r.Get("/api/collections/{id}", collectionHandler.Get)
		r.Get("/api/collections/{id}/comments", collectionHandler.ListComments)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/library/{kind}/{externalId} - デフォルトコレクションへ追加（追加専用レート制限を追加）
		r.With(deps.RateLimiter.LibraryAddMiddleware()).Post("/api/library/{kind}/{externalId}", libraryHandler.AddToLibrary)

		r.Get("/api/collections/mine", collectionHandler.ListMine)
		r.Post("/api/collections/mine", collectionHandler.Create)

		// GETは任意セッションのグループに登録済みのため、Routeでのマウントはせず個別に登録する
		r.Patch("/api/collections/{id}", collectionHandler.Update)
		r.Delete("/api/collections/{id}", collectionHandler.Delete)
		r.Put("/api/collections/{id}/rating", collectionHandler.Rate)
		r.Post("/api/collections/{id}/comments", collectionHandler.PostComment)
		// 同じ位置のパラメータ名は揃える。POSTでは外部ID、DELETEではローカルのメディアIDを表す
		r.With(deps.RateLimiter.LibraryAddMiddleware()).Post("/api/collections/{id}/items/{kind}/{mediaId}", libraryHandler.AddToCollection)
		r.Delete("/api/collections/{id}/items/{kind}/{mediaId}", libraryHandler.RemoveFromCollection)

		r.Delete("/api/comments/{id}", collectionHandler.DeleteComment)
		r.Delete("/api/users/me", userHandler.Withdraw)

		// 管理者ルート
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.UserFinder))

			r.Get("/api/admin/login-attempts", adminHandler.ListLoginAttempts)
			r.Delete("/api/admin/collections/{id}", adminHandler.DeleteCollection)
		})
	})

	return r
}
