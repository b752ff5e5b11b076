// Package app は設定の読み込みから依存関係のワイヤリング、各サブコマンドの起動までを担う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/soulishere/internal/admin"
	"github.com/hitoshi/soulishere/internal/auth"
	"github.com/hitoshi/soulishere/internal/config"
	"github.com/hitoshi/soulishere/internal/database"
	"github.com/hitoshi/soulishere/internal/handler"
	"github.com/hitoshi/soulishere/internal/logger"
	"github.com/hitoshi/soulishere/internal/media"
	"github.com/hitoshi/soulishere/internal/memorial"
	"github.com/hitoshi/soulishere/internal/metrics"
	"github.com/hitoshi/soulishere/internal/middleware"
	"github.com/hitoshi/soulishere/internal/payment"
	"github.com/hitoshi/soulishere/internal/repository"
	"github.com/hitoshi/soulishere/internal/security"
	"github.com/hitoshi/soulishere/internal/settings"
	"github.com/hitoshi/soulishere/internal/worker/cleanup"
)

// dotEnvPath は起動時に読み込む.envファイルのパス。
const dotEnvPath = ".env"

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、.envと環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envを環境変数に反映する（既存の環境変数が優先）
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

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
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はストレージドライバーごとのリポジトリ群。
type stores struct {
	users     repository.UserRepository
	memorials repository.MemorialRepository
	settings  repository.SiteSettingsRepository
	orders    repository.PaymentOrderRepository

	// health はヘルスチェックでの疎通確認先。メモリストアではnil。
	health handler.HealthChecker
	close  func() error
}

// openStores は設定されたストレージドライバーでリポジトリを初期化する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{
			users:     mem.Users(),
			memorials: mem.Memorials(),
			settings:  mem.SiteSettings(),
			orders:    mem.PaymentOrders(),
			close:     func() error { return nil },
		}, nil
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig(), 10*time.Second)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established")

	return &stores{
		users:     repository.NewPostgresUserRepo(db),
		memorials: repository.NewPostgresMemorialRepo(db),
		settings:  repository.NewPostgresSiteSettingsRepo(db),
		orders:    repository.NewPostgresPaymentOrderRepo(db),
		health:    db,
		close:     db.Close,
	}, nil
}

// server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソース。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// newServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 管理者アカウントが設定されていれば起動時に用意する。
func newServer(ctx context.Context, cfg *config.Config, st *stores, reg *prometheus.Registry) (*server, error) {
	log := slog.Default()
	recorder := metrics.NewCollector(reg)

	// 1. セキュリティサービス
	sanitizer := security.NewSanitizer()
	guard := security.NewGuard()

	// 2. 認証。OAuthクライアントは資格情報がある場合だけ1度構築する
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleOAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	} else {
		log.Info("google oauth disabled: credentials are not configured")
	}
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(oauthProvider, st.users, tokens, auth.ServiceConfig{})

	if cfg.AdminConfigured() {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
			return nil, fmt.Errorf("failed to ensure admin account: %w", err)
		}
	}

	// 3. ドメインサービス
	memorialService := memorial.NewService(
		st.memorials, st.orders, sanitizer, guard, recorder,
		memorial.Config{DefaultPaymentAmount: cfg.DefaultPaymentAmount},
	)
	settingsService := settings.NewService(st.settings, guard)
	adminService := admin.NewService(st.users, st.memorials)

	externalClient := &http.Client{Timeout: 30 * time.Second}
	cloudinary := media.NewCloudinaryClient(externalClient, log, media.CloudinaryConfig{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryFolder,
	})
	mediaService := media.NewService(cloudinary, guard, recorder, media.Config{MaxSize: cfg.UploadMaxSize})

	razorpay := payment.NewRazorpayClient(externalClient, log, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	paymentService := payment.NewService(razorpay, st.orders, st.memorials, recorder, cfg.DefaultPaymentAmount)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	deps := &handler.RouterDeps{
		Logger:            log,
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:   st.health,
		Metrics:         recorder,
		MetricsGatherer: reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			TokenMaxAge:  int(authService.TokenTTL().Seconds()),
		},

		MemorialService: memorialService,
		SettingsService: settingsService,
		AdminService:    adminService,
		MediaService:    mediaService,
		PaymentService:  paymentService,
	}

	return &server{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}, nil
}

// rateLimiterConfig はreq/min単位の設定をreq/secに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlc := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlc.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitStrict > 0 {
		rlc.StrictRate = rate.Limit(float64(cfg.RateLimitStrict) / 60.0)
		rlc.StrictBurst = cfg.RateLimitStrict
	}
	return rlc
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録するレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	srv, err := newServer(ctx, cfg, st, newRegistry())
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 一括アップロードは外部呼び出しを伴う
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 放置された決済オーダーの期限切れ処理を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return errors.New("worker requires STORAGE_DRIVER=postgres: in-memory data is not shared between processes")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	job := cleanup.NewExpiryJob(st.orders, slog.Default(), nil, cfg.PaymentOrderTTL)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("order_ttl", cfg.PaymentOrderTTL),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageDriver == config.StorageDriverMemory {
		slog.Info("in-memory storage selected; no migrations to run")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
