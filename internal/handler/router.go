package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/leadbox/internal/metrics"
	"github.com/hitoshi/leadbox/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	SubscribeService SubscribeServiceInterface

	// AdminTokenが空の場合、管理APIはマウントしない。
	AdminService AdminServiceInterface
	AdminToken   string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → SecurityHeaders → CORS
//
// /api/subscribe のレート制限はストレージ確認の後に行うため、ハンドラー内で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	subscribeHandler := NewSubscribeHandler(deps.SubscribeService, deps.RateLimiter, deps.Metrics)
	r.Post("/api/subscribe", subscribeHandler.Subscribe)

	if deps.AdminToken != "" && deps.AdminService != nil {
		adminHandler := NewAdminHandler(deps.AdminService)
		r.Route("/api/subscribers", func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.AdminToken))
			r.Get("/", adminHandler.ListSubscribers)
			r.Get("/stats", adminHandler.Stats)
		})
	}

	return r
}
