// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/cartsync/internal/config"
	"github.com/hitoshi/cartsync/internal/database"
	"github.com/hitoshi/cartsync/internal/handler"
	"github.com/hitoshi/cartsync/internal/logger"
	"github.com/hitoshi/cartsync/internal/metrics"
	"github.com/hitoshi/cartsync/internal/middleware"
	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/repository"
	"github.com/hitoshi/cartsync/internal/schedule"
	"github.com/hitoshi/cartsync/internal/worker/cleanup"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	dbConnectTimeout = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
	cleanupInterval  = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// カレントディレクトリに.envがあれば読み込んだ上で環境変数からConfigを読み込み、
// LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（存在しない場合は無視する）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログの初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, known := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if !known {
		slog.Warn("unknown command; falling back to serve", slog.String("arg", args[0]))
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("site_url", cfg.SiteURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// newRegistry はGo・プロセスメトリクスを含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB・Redis接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	appLogger := slog.Default()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. Redis接続
	rdb := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()

	// 3. メトリクスとドメインサービスの初期化
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	comps, err := buildComponents(cfg, db, rdb, collector, appLogger)
	if err != nil {
		return err
	}

	// 4. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitRecovery), appLogger)
	defer limiter.Stop()

	if cfg.IntakeToken == "" {
		slog.Warn("INTAKE_TOKEN is not set; all intake API requests will be rejected")
	}

	router := handler.NewRouter(&handler.RouterDeps{
		IntakeToken:     cfg.IntakeToken,
		RecoveryLimiter: limiter,
		Logger:          appLogger,
		HealthChecks: map[string]handler.HealthCheckFunc{
			"postgres": db.PingContext,
			"redis":    comps.sessions.Ping,
		},
		MetricsGatherer:     reg,
		Service:             comps.service,
		RecoveryRedirectURL: recoveryRedirectURL(cfg.SiteURL),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はctxがキャンセルされるまでサーバーを起動し、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 遅延同期ジョブのランナーと完了済みジョブのクリーンアップを起動し、
// /metricsと/healthをMETRICS_PORTで公開する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	appLogger := slog.Default()

	// 1. DB・Redis接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	rdb := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()

	// 2. メトリクスとドメインサービスの初期化
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	comps, err := buildComponents(cfg, db, rdb, collector, appLogger)
	if err != nil {
		return err
	}

	// 3. ジョブランナーの構築
	runner := schedule.NewRunner(comps.jobs, collector, appLogger, cfg.JobMaxConcurrent)
	runner.Register(model.HookSyncAbandonedCartOrder, schedule.JobHandlerFunc(comps.service.HandleJob))

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(comps.jobs, collector, appLogger)
	if cfg.JobRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.JobRetentionDays
	}

	// 5. メトリクスサーバー
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.NewWorkerMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serveUntilDone(ctx, metricsServer, "metrics server"); err != nil {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("poll_interval", cfg.JobPollInterval),
		slog.Int("max_concurrent", cfg.JobMaxConcurrent),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// クリーンアップジョブを起動直後に1回実行し、以降は日次でバックグラウンド実行
	go func() {
		_ = cleanupJob.Run(ctx)
		cleanupJob.Start(ctx, cleanupInterval)
	}()

	// ジョブランナーをメインgoroutineで実行（ブロッキング）
	runner.Start(ctx, cfg.JobPollInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Int("version", int(version)))
	return nil
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

// healthcheckPort はヘルスチェック先のポートを返す。
// ワーカーコンテナではHEALTHCHECK_PORTにMETRICS_PORTを指定する。
func healthcheckPort() string {
	for _, key := range []string{"HEALTHCHECK_PORT", "SERVER_PORT"} {
		if port := os.Getenv(key); port != "" {
			return port
		}
	}
	return "8080"
}

// recoveryRedirectURL はカート復元後のリダイレクト先（サイトのカートページ）を返す。
func recoveryRedirectURL(siteURL string) string {
	return strings.TrimRight(siteURL, "/") + "/cart/"
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
	return u.Redacted()
}
