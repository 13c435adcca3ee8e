package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// SyncService は全ハンドラーが必要とするサービスをまとめたインターフェース。
// syncer.Serviceが満たす。
type SyncService interface {
	CartServiceInterface
	OrderServiceInterface
	RecoveryServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	IntakeToken     string
	RecoveryLimiter *middleware.RateLimiter
	Logger          *slog.Logger

	// 運用
	HealthChecks    map[string]HealthCheckFunc
	MetricsGatherer prometheus.Gatherer

	// 同期
	Service             SyncService
	RecoveryRedirectURL string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → (IntakeToken | RateLimit) → Visitor
//
// /health と /metrics はミドルウェアチェーンの外側の認証なしルートとする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	cartHandler := NewCartHandler(deps.Service, deps.Logger)
	orderHandler := NewOrderHandler(deps.Service, deps.Logger)
	recoveryHandler := NewRecoveryHandler(deps.Service, deps.RecoveryRedirectURL, deps.Logger)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecks, deps.Logger))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// リカバリーリンク（メールから開かれる公開エンドポイント）
	r.Group(func(r chi.Router) {
		if deps.RecoveryLimiter != nil {
			r.Use(deps.RecoveryLimiter.Middleware())
		}
		r.Use(middleware.NewVisitorMiddleware())

		r.Get("/wc-api/retainful", recoveryHandler.Recover)
		r.Get("/", recoveryHandler.RecoverPlain)
	})

	// --- 取り込みAPI ---
	// ミドルウェアスタック: IntakeToken → Visitor
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIntakeTokenMiddleware(deps.IntakeToken, deps.Logger))
		r.Use(middleware.NewVisitorMiddleware())

		r.Post("/api/carts", cartHandler.UpdateCart)

		r.Route("/api/orders/{id}", func(r chi.Router) {
			r.Post("/checkout", orderHandler.Checkout)
			r.Post("/status", orderHandler.ChangeStatus)
			r.Post("/payment", orderHandler.Payment)
			r.Post("/recovered", orderHandler.Recovered)
			r.Post("/sync", orderHandler.Sync)
			r.Post("/webhook", orderHandler.Webhook)
		})
	})

	return r
}
