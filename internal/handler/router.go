// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	UserProvisioner   middleware.UserProvisioner
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用系
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// サービス
	TaskService TaskServiceInterface
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Auth → Logging → RateLimit(General)
//
// リクエストログはuser_idを含めるため認証の後に配置する。
// 認証失敗のログは認証ミドルウェア自身が出力する。
// /healthと/metricsは認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	taskHandler := NewTaskHandler(deps.TaskService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Metrics → Auth → Logging → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
		r.Use(middleware.NewAuthMiddleware(deps.TokenValidator, deps.UserProvisioner, deps.Metrics))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)

			// 変更操作には専用レート制限を追加
			r.With(deps.RateLimiter.TaskWriteMiddleware()).Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.With(deps.RateLimiter.TaskWriteMiddleware()).Put("/", taskHandler.UpdateTask)
				r.With(deps.RateLimiter.TaskWriteMiddleware()).Delete("/", taskHandler.DeleteTask)
			})
		})

		// ユーザーディレクトリ
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
		})
	})

	return r
}
