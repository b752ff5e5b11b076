package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/soulishere/internal/model"
)

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/memorials", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUser(req.Context(), &model.User{ID: userID, Role: model.RoleMember}))
	}
	return req
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/memorials/m1/hug", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		StrictRate:      0.5,
		StrictBurst:     1,
		CleanupInterval: time.Minute,
	}
}

// --- GeneralMiddleware のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.GeneralBurst = 5
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-rate-limit"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-rate-limit"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429 response should be JSON: %v", err)
	}
	if body.Success || body.Code != ErrCodeRateLimited || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-A"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-B"))
	if w.Code != http.StatusOK {
		t.Errorf("user-B status = %d, want 200", w.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_AnonymousKeyedByIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.StrictMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.5:1111"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}

	// 同じIPは別ポートでも同じキー
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.5:2222"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("198.51.100.7:1111"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", w.Code)
	}
}

func TestLimiterKey(t *testing.T) {
	if got := limiterKey(requestAs("u1")); got != "user:u1" {
		t.Errorf("limiterKey = %q, want user:u1", got)
	}
	if got := limiterKey(requestFrom("192.0.2.1:5555")); got != "ip:192.0.2.1" {
		t.Errorf("limiterKey = %q, want ip:192.0.2.1", got)
	}
	if got := limiterKey(requestFrom("192.0.2.1")); got != "ip:192.0.2.1" {
		t.Errorf("limiterKey without port = %q", got)
	}
}

// --- StrictMiddleware のテスト ---

func TestStrictRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	strict := rl.StrictMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	strict.ServeHTTP(httptest.NewRecorder(), requestAs("user-indep"))
	w := httptest.NewRecorder()
	strict.ServeHTTP(w, requestAs("user-indep"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("strict status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-indep"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.StrictLimiterCount() != 1 || rl.GeneralLimiterCount() != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", rl.StrictLimiterCount(), rl.GeneralLimiterCount())
	}
}

// --- クリーンアップ ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = time.Hour
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-cleanup"))
	rl.StrictMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-cleanup"))

	rl.cleanup()
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("fresh entries should survive cleanup")
	}

	rl.general.evict(time.Now().Add(time.Second))
	rl.strict.evict(time.Now().Add(time.Second))
	if rl.GeneralLimiterCount() != 0 || rl.StrictLimiterCount() != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", rl.GeneralLimiterCount(), rl.StrictLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if float64(cfg.GeneralRate) != 2.0 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.StrictBurst != 20 {
		t.Errorf("StrictBurst = %d, want 20", cfg.StrictBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}
