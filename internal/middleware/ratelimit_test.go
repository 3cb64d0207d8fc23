package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/taskboard/internal/model"
)

func newTestRateLimiter(generalBurst, taskWriteBurst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0), // 補充をほぼ止めてバーストのみで検証
		GeneralBurst:    generalBurst,
		TaskWriteRate:   rate.Limit(1.0 / 60.0),
		TaskWriteBurst:  taskWriteBurst,
		CleanupInterval: time.Hour,
	})
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	ctx := ContextWithUser(req.Context(), &model.User{ID: userID})
	return req.WithContext(ctx)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(3, 3)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("user-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_ExceedsBurst(t *testing.T) {
	rl := newTestRateLimiter(2, 2)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("user-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if body := decodeErrorBody(t, rec); body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

// TestGeneralMiddleware_PerUserIsolation はあるユーザーの制限超過が
// 他のユーザーに影響しないことを検証する。
func TestGeneralMiddleware_PerUserIsolation(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("user-1 first request: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("user-1 second request: status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("user-2 request: status = %d, want 200", rec.Code)
	}
}

// TestTaskWriteMiddleware_IndependentOfGeneral はタスク変更操作の制限が
// API全般の制限とは独立に動作することを検証する。
func TestTaskWriteMiddleware_IndependentOfGeneral(t *testing.T) {
	rl := newTestRateLimiter(10, 1)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	taskWrite := rl.TaskWriteMiddleware()(okHandler())

	// タスク変更のバーストを使い切る
	rec := httptest.NewRecorder()
	taskWrite.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("task write first request: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	taskWrite.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("task write second request: status = %d, want 429", rec.Code)
	}

	// API全般の制限は消費されていない
	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("general request: status = %d, want 200", rec.Code)
	}
}

func TestGeneralMiddleware_UnauthenticatedRequest(t *testing.T) {
	rl := newTestRateLimiter(10, 10)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRateLimiter_LimiterCounts(t *testing.T) {
	rl := newTestRateLimiter(10, 10)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	taskWrite := rl.TaskWriteMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		userID := fmt.Sprintf("user-%d", i)
		general.ServeHTTP(httptest.NewRecorder(), authedRequest(userID))
	}
	taskWrite.ServeHTTP(httptest.NewRecorder(), authedRequest("user-0"))

	if got := rl.GeneralLimiterCount(); got != 3 {
		t.Errorf("GeneralLimiterCount() = %d, want 3", got)
	}
	if got := rl.TaskWriteLimiterCount(); got != 1 {
		t.Errorf("TaskWriteLimiterCount() = %d, want 1", got)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	config := NewRateLimiterConfig(120, 30)

	if config.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2.0", config.GeneralRate)
	}
	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", config.GeneralBurst)
	}
	if config.TaskWriteRate != rate.Limit(0.5) {
		t.Errorf("TaskWriteRate = %v, want 0.5", config.TaskWriteRate)
	}
	if config.TaskWriteBurst != 30 {
		t.Errorf("TaskWriteBurst = %d, want 30", config.TaskWriteBurst)
	}
}
