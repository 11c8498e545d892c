package app

import (
	"context"
	"encoding/json"
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

	"github.com/hitoshi/leadbox/internal/config"
	"github.com/hitoshi/leadbox/internal/convertkit"
	"github.com/hitoshi/leadbox/internal/database"
	"github.com/hitoshi/leadbox/internal/handler"
	"github.com/hitoshi/leadbox/internal/logger"
	"github.com/hitoshi/leadbox/internal/metrics"
	"github.com/hitoshi/leadbox/internal/middleware"
	"github.com/hitoshi/leadbox/internal/security"
	"github.com/hitoshi/leadbox/internal/subscriber"
)

// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
const shutdownTimeout = 30 * time.Second

// statsOutput はstatsサブコマンドの出力先。
var statsOutput io.Writer = os.Stdout

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("storage_backend", string(cfg.StorageBackend)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandStats:
		return runStats(ctx, cfg, statsOutput)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	if err := validateProviderURL(cfg); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, cleanup, err := buildRouter(cfg, backend, reg, newForwarderHTTPClient)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ConvertKitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter は購読受付サービスを組み立ててルーターを返す。
// 返り値のcleanupはレート制限のバックグラウンド処理を停止する。
func buildRouter(
	cfg *config.Config,
	backend *Backend,
	reg *prometheus.Registry,
	newHTTPClient func(timeout time.Duration) (*http.Client, error),
) (http.Handler, func(), error) {
	httpClient, err := newHTTPClient(cfg.ConvertKitTimeout)
	if err != nil {
		return nil, nil, err
	}

	forwarder := convertkit.NewClient(httpClient, slog.Default(), convertkit.Config{
		APIKey:        cfg.ConvertKitAPIKey,
		FormID:        cfg.ConvertKitFormID,
		BaseURL:       cfg.ConvertKitBaseURL,
		Timeout:       cfg.ConvertKitTimeout,
		RatePerMinute: cfg.ConvertKitRatePerMinute,
	})

	collector := metrics.NewCollector(reg)
	service := subscriber.NewService(backend.Repo, forwarder, subscriber.NewValidator(security.NewMarkupDetector()), collector)

	limiter := middleware.NewFixedWindowLimiter(middleware.FixedWindowConfig{
		Window:          cfg.RateLimitWindow,
		MaxRequests:     cfg.RateLimitMaxRequests,
		CleanupInterval: cfg.RateLimitCleanupInterval,
	})

	if cfg.AdminToken == "" {
		slog.Info("admin API disabled; set ADMIN_TOKEN to enable /api/subscribers")
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     backend.Health,
		SubscribeService:  service,
		AdminService:      service,
		AdminToken:        cfg.AdminToken,
	})

	return router, limiter.Stop, nil
}

// validateProviderURL は転送が有効な場合に送信先URLを検証する。
func validateProviderURL(cfg *config.Config) error {
	if cfg.ConvertKitAPIKey == "" || cfg.ConvertKitFormID == "" {
		return nil
	}
	if err := security.NewOutboundGuard().ValidateURL(cfg.ConvertKitBaseURL); err != nil {
		return fmt.Errorf("invalid CONVERTKIT_BASE_URL: %w", err)
	}
	return nil
}

// newForwarderHTTPClient はプライベートアドレス宛ての接続を拒否するHTTPクライアントを返す。
func newForwarderHTTPClient(timeout time.Duration) (*http.Client, error) {
	return security.NewOutboundGuard().NewSafeClient(timeout), nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runStats は構成済みストレージの集計結果をJSONで書き出す。
func runStats(ctx context.Context, cfg *config.Config, out io.Writer) error {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	service := subscriber.NewService(backend.Repo, nil, nil, nil)
	stats, err := service.Stats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
