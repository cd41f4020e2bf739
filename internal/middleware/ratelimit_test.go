package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/mediatech/internal/model"
)

// testRateConfig は全種別を高いレートにした設定を返す。各テストで対象の値だけを上書きする。
func testRateConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    200,
		LibraryAddRate:  100,
		LibraryAddBurst: 200,
		AuthRate:        100,
		AuthBurst:       200,
		CleanupInterval: 1 * time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// serveAs はユーザーIDをコンテキストに注入してリクエストを処理し、ステータスコードを返す。
func serveAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, userID))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// --- GeneralMiddleware のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := testRateConfig()
	cfg.GeneralRate = 2
	cfg.GeneralBurst = 5

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		if w := serveAs(handler, "user-1"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	cfg := testRateConfig()
	cfg.GeneralRate = 1
	cfg.GeneralBurst = 2

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := serveAs(handler, "user-rate-limit"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	w := serveAs(handler, "user-rate-limit")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After header should be a number, got %q", w.Header().Get("Retry-After"))
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}
}

func TestRateLimitMiddleware_IsolatesUserRateLimits(t *testing.T) {
	cfg := testRateConfig()
	cfg.GeneralRate = 1
	cfg.GeneralBurst = 1

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	if w := serveAs(handler, "user-A"); w.Code != http.StatusOK {
		t.Errorf("user-A first request: status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serveAs(handler, "user-A"); w.Code != http.StatusTooManyRequests {
		t.Errorf("user-A second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	// ユーザーBはユーザーAのレートに影響されない
	if w := serveAs(handler, "user-B"); w.Code != http.StatusOK {
		t.Errorf("user-B first request: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without user ID")
	}))

	if w := serveAs(handler, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- LibraryAddMiddleware のテスト ---

func TestLibraryAddRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := testRateConfig()
	cfg.LibraryAddRate = 1
	cfg.LibraryAddBurst = 3

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.LibraryAddMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := serveAs(handler, "user-library"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	w := serveAs(handler, "user-library")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request 4: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be present")
	}
}

func TestLibraryAddRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	cfg := testRateConfig()
	cfg.GeneralRate = 1
	cfg.GeneralBurst = 1
	cfg.LibraryAddRate = 1
	cfg.LibraryAddBurst = 1

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	libraryAdd := rl.LibraryAddMiddleware()(okHandler())

	// General limitを使い果たしてもライブラリ追加の枠は残っている
	serveAs(general, "user-indep")
	if w := serveAs(libraryAdd, "user-indep"); w.Code != http.StatusOK {
		t.Errorf("library add should still be allowed: status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.GeneralLimiterCount() != 1 || rl.LibraryAddLimiterCount() != 1 {
		t.Errorf("limiter counts = %d/%d, want 1/1", rl.GeneralLimiterCount(), rl.LibraryAddLimiterCount())
	}
}

// --- AuthMiddleware のテスト ---

func TestAuthRateLimit_KeyedByClientIP(t *testing.T) {
	cfg := testRateConfig()
	cfg.AuthRate = 1
	cfg.AuthBurst = 2

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := post("203.0.113.7"); code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, code, http.StatusOK)
		}
	}
	if code := post("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := post("198.51.100.8"); code != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", code, http.StatusOK)
	}
	if rl.AuthLimiterCount() != 2 {
		t.Errorf("auth limiter count = %d, want 2", rl.AuthLimiterCount())
	}
}

// --- 429レスポンスフォーマットのテスト ---

func TestRateLimitMiddleware_429ResponseIsJSON(t *testing.T) {
	cfg := testRateConfig()
	cfg.GeneralRate = 1
	cfg.GeneralBurst = 1

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	serveAs(handler, "user-json-test")
	resp := serveAs(handler, "user-json-test").Result()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
	if body.Message == "" || body.Category == "" || body.Action == "" {
		t.Errorf("all fields should be set: %+v", body)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateConfig()
	cfg.CleanupInterval = 50 * time.Millisecond

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	serveAs(rl.GeneralMiddleware()(okHandler()), "user-cleanup")
	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍（100ms）。200ms待てば削除される
	time.Sleep(200 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateConfig())
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestRateLimitMiddleware_InChainWithSessionAndCORS(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "rate-limit-session" {
				return &model.Session{
					ID:        "rate-limit-session",
					UserID:    "user-rate-chain",
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	cfg := testRateConfig()
	cfg.GeneralRate = 1
	cfg.GeneralBurst = 2

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	// CORS -> Session -> RateLimit -> Handler
	handler := NewCORSMiddleware("http://localhost:3000")(
		NewSessionMiddleware(repo)(rl.GeneralMiddleware()(okHandler())))

	serve := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "rate-limit-session"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := serve(); code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, code, http.StatusOK)
		}
	}
	if code := serve(); code != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", code, http.StatusTooManyRequests)
	}
}

// --- デフォルト設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.LibraryAddRate != 0.5 {
		t.Errorf("LibraryAddRate = %f, want 0.5", cfg.LibraryAddRate)
	}
	if cfg.LibraryAddBurst != 30 {
		t.Errorf("LibraryAddBurst = %d, want 30", cfg.LibraryAddBurst)
	}
	if cfg.AuthRate == 0 || cfg.AuthBurst != 20 {
		t.Errorf("Auth = %f/%d, want non-zero/20", cfg.AuthRate, cfg.AuthBurst)
	}
}
