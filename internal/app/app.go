package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/mediatech/internal/auth"
	"github.com/hitoshi/mediatech/internal/catalog"
	"github.com/hitoshi/mediatech/internal/collection"
	"github.com/hitoshi/mediatech/internal/config"
	"github.com/hitoshi/mediatech/internal/database"
	"github.com/hitoshi/mediatech/internal/handler"
	"github.com/hitoshi/mediatech/internal/library"
	"github.com/hitoshi/mediatech/internal/logger"
	"github.com/hitoshi/mediatech/internal/metrics"
	"github.com/hitoshi/mediatech/internal/middleware"
	"github.com/hitoshi/mediatech/internal/repository"
	"github.com/hitoshi/mediatech/internal/security"
	"github.com/hitoshi/mediatech/internal/throttle"
	"github.com/hitoshi/mediatech/internal/user"
	"github.com/hitoshi/mediatech/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("unknown LOG_LEVEL, falling back to info",
			slog.String("log_level", cfg.LogLevel),
		)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newThrottle は設定値からログイン試行スロットルを構築する。
func newThrottle(cfg *config.Config, db *sql.DB, collector *metrics.Collector) *throttle.Throttle {
	opts := []throttle.Option{}
	if collector != nil {
		opts = append(opts, throttle.WithMetrics(collector))
	}
	return throttle.New(
		repository.NewPostgresLoginAttemptRepo(db),
		throttle.Config{
			IdentityThreshold: cfg.LoginIdentityThreshold,
			OriginThreshold:   cfg.LoginOriginThreshold,
			Window:            cfg.LoginWindow,
			Retention:         cfg.LoginAttemptRetention,
		},
		slog.Default(),
		opts...,
	)
}

// newCatalog は外部カタログクライアントをサーキットブレーカーで包み、Registryと検索キャッシュを構築する。
func newCatalog(cfg *config.Config, collector *metrics.Collector) (*catalog.Registry, *catalog.CachedSearcher) {
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()
	httpClient := ssrfGuard.NewSafeClient(cfg.CatalogTimeout, cfg.CatalogMaxResponseSize)

	books := catalog.NewGoogleBooksClient(catalog.ClientOptions{
		HTTPClient: httpClient,
		BaseURL:    cfg.GoogleBooksBaseURL,
		APIKey:     cfg.GoogleBooksAPIKey,
		Sanitizer:  sanitizer,
		Images:     ssrfGuard,
		Metrics:    collector,
		Logger:     slog.Default(),
	})
	movies := catalog.NewTMDbClient(catalog.ClientOptions{
		HTTPClient:   httpClient,
		BaseURL:      cfg.TMDbBaseURL,
		APIKey:       cfg.TMDbAPIKey,
		ImageBaseURL: cfg.TMDbImageBaseURL,
		Sanitizer:    sanitizer,
		Images:       ssrfGuard,
		Metrics:      collector,
		Logger:       slog.Default(),
	})

	breaker := catalog.DefaultBreakerSettings()
	breaker.ConsecutiveFailures = uint32(cfg.CatalogBreakerFailures)
	breaker.Timeout = cfg.CatalogBreakerTimeout

	registry := catalog.NewRegistry(
		catalog.NewBreakerSource(books, breaker, collector, slog.Default()),
		catalog.NewBreakerSource(movies, breaker, collector, slog.Default()),
	)
	searcher := catalog.NewCachedSearcher(registry, cfg.CatalogSearchCacheSize, cfg.CatalogSearchCacheTTL, collector)
	return registry, searcher
}

// rateLimiterConfig は設定値（req/min）をレートリミッター設定（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.LibraryAddRate = rate.Limit(float64(cfg.RateLimitLibraryAdd) / 60.0)
	rl.LibraryAddBurst = cfg.RateLimitLibraryAdd
	return rl
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	collectionRepo := repository.NewPostgresCollectionRepo(db)
	bookRepo := repository.NewPostgresBookRepo(db)
	movieRepo := repository.NewPostgresMovieRepo(db)
	ratingRepo := repository.NewPostgresRatingRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)

	// 4. 外部カタログとスロットル
	registry, searcher := newCatalog(cfg, collector)
	loginThrottle := newThrottle(cfg, db, collector)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, loginThrottle, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	libraryService := library.NewService(collectionRepo, bookRepo, movieRepo, registry, collector, slog.Default())
	collectionService := collection.NewService(collectionRepo, ratingRepo, commentRepo,
		security.NewTextSanitizer(), slog.Default(),
	)
	userService := user.NewService(userRepo, sessionRepo)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CatalogService:    searcher,
		LibraryService:    libraryService,
		CollectionService: collectionService,
		UserService:       userService,

		LoginAttempts:       loginThrottle,
		CollectionModerator: collectionService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ログイン試行記録と期限切れセッションのクリーンアップをCLEANUP_INTERVALごとに実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	collector := metrics.NewCollector(prometheus.NewRegistry())
	loginThrottle := newThrottle(cfg, db, collector)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	job := cleanup.NewCleanupJob(loginThrottle, sessionRepo, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("login_attempt_retention", cfg.LoginAttemptRetention),
	)

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
