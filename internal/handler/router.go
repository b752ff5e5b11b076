package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/soulishere/internal/metrics"
	"github.com/hitoshi/soulishere/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	HSTS              bool
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 監視
	HealthChecker   HealthChecker
	Metrics         metrics.Recorder
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	MemorialService MemorialServiceInterface
	SettingsService SettingsServiceInterface
	AdminService    AdminServiceInterface
	MediaService    MediaServiceInterface
	PaymentService  PaymentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF → (OptionalAuth | RequireAuth) → RateLimit
//
// 公開ルートは任意認証で、書き込み系（登録・ログイン・ハグ・ゲストブック）には厳しいレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.HSTS}))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	memorialHandler := NewMemorialHandler(deps.MemorialService)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	adminHandler := NewAdminHandler(deps.AdminService)
	uploadHandler := NewUploadHandler(deps.MediaService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	// --- 監視 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.Authenticator))

		r.Method(http.MethodGet, "/auth/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Get("/auth/google/login", authHandler.GoogleLogin)
		r.Get("/auth/google/callback", authHandler.GoogleCallback)
		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/memorials/sample", memorialHandler.Sample)
		r.Get("/memorials/{id}", memorialHandler.Get)
		r.Get("/site-settings", settingsHandler.Get)

		// 書き込み系は厳しいレート制限
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.StrictMiddleware())

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/memorials/{id}/hug", memorialHandler.Hug)
			r.Post("/memorials/{id}/guestbook", memorialHandler.AddGuestbookEntry)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequireAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)

		// 公開ルートと同じパスを共有するため、サブルーターにはマウントせず個別に登録する
		r.Get("/memorials", memorialHandler.List)
		r.Post("/memorials", memorialHandler.Create)
		r.Get("/memorials/drafts", memorialHandler.Drafts)
		r.Put("/memorials/{id}", memorialHandler.Update)
		r.Delete("/memorials/{id}", memorialHandler.Delete)
		r.Post("/memorials/{id}/publish", memorialHandler.Publish)
		r.Post("/memorials/{id}/qr", memorialHandler.EnableQR)

		r.Get("/admin/stats", adminHandler.Stats)
		r.Get("/admin/users", adminHandler.Users)
		r.Get("/admin/memorials", adminHandler.Memorials)

		r.Put("/site-settings", settingsHandler.Update)

		// アップロードは外部サービスを呼ぶため厳しいレート制限を追加
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.StrictMiddleware())
			r.Post("/upload", uploadHandler.UploadOne)
			r.Post("/upload/multiple", uploadHandler.UploadMany)
			r.Post("/upload/remote", uploadHandler.ImportRemote)
		})

		r.Post("/payments/orders", paymentHandler.CreateOrder)
	})

	return r
}
