// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
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

	"github.com/hitoshi/roster/internal/account"
	"github.com/hitoshi/roster/internal/auth"
	"github.com/hitoshi/roster/internal/character"
	"github.com/hitoshi/roster/internal/config"
	"github.com/hitoshi/roster/internal/database"
	"github.com/hitoshi/roster/internal/handler"
	"github.com/hitoshi/roster/internal/logger"
	"github.com/hitoshi/roster/internal/metrics"
	"github.com/hitoshi/roster/internal/middleware"
	"github.com/hitoshi/roster/internal/repository"
	"github.com/hitoshi/roster/internal/security"
	"github.com/hitoshi/roster/internal/worker/purge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// SIGINT/SIGTERM でキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// components はserve/workerで共有する組み立て済みの依存関係。
type components struct {
	registry   *prometheus.Registry
	collector  *metrics.Collector
	characters *repository.PostgresCharacterRepo
	purgeJob   *purge.Job
}

// newComponents はリポジトリ・メトリクス・完全削除ジョブを組み立てる。
func newComponents(db *sql.DB) *components {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "roster"),
	)
	collector := metrics.NewCollector(registry)

	characterRepo := repository.NewPostgresCharacterRepo(db)

	return &components{
		registry:   registry,
		collector:  collector,
		characters: characterRepo,
		purgeJob:   purge.NewJob(characterRepo, slog.Default(), collector),
	}
}

// newRouter はAPIサーバーのハンドラーを組み立てる。
// 返却するRateLimiterはシャットダウン時に停止する。
func newRouter(db *sql.DB, c *components, cfg *config.Config) (http.Handler, *middleware.RateLimiter, error) {
	// 1. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	locker := repository.NewPostgresAccountLocker(db)

	// 2. 認証まわりの初期化
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)

	// 3. ドメインサービスの初期化
	accountService := account.NewService(accountRepo, hasher, tokens, slog.Default())
	characterService := character.NewService(accountRepo, c.characters, locker,
		character.WithRecorder(c.collector),
		character.WithSanitizer(security.NewTextSanitizer()),
		character.WithLogger(slog.Default()),
	)

	// 4. ルーターの構築（configのレート制限はreq/min単位）
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCharacterCreate),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		MetricsGatherer:   c.registry,
		AccountService:    handler.NewAccountServiceAdapter(accountService),
		CharacterService:  handler.NewCharacterServiceAdapter(characterService),
	})

	return router, rateLimiter, nil
}

// connect はプール設定を反映してDBへ接続する。
func connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, cfg.DBConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctx がキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := newComponents(db)
	router, rateLimiter, err := newRouter(db, c, cfg)
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	// PURGE_IN_SERVER=true の場合は完全削除スケジューラも同一プロセスで動かす
	if cfg.PurgeInServer {
		scheduler := purge.NewScheduler(c.purgeJob, slog.Default(), cfg.PurgeInterval)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start purge scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, cfg.ShutdownTimeout, "API server")
}

// runWorker は完全削除ワーカーモードで起動する。
// スケジューラを起動し、メトリクスを別ポートで公開する。
// ctx がキャンセルされると実行中の削除の完了を待って終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := newComponents(db)

	scheduler := purge.NewScheduler(c.purgeJob, slog.Default(), cfg.PurgeInterval)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start purge scheduler: %w", err)
	}
	defer scheduler.Stop()

	slog.Info("worker starting",
		slog.Duration("purge_interval", cfg.PurgeInterval),
		slog.String("metrics_port", cfg.MetricsPort),
	)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(c.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	err = serveUntilDone(ctx, metricsServer, cfg.ShutdownTimeout, "metrics server")
	slog.Info("worker stopped gracefully")
	return err
}

// serveUntilDone はサーバーを起動し、ctx がキャンセルされるまで待ってからシャットダウンする。
// 起動に失敗した場合はそのエラーを返す。
func serveUntilDone(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, name string) error {
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

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたは up で未適用分をすべて適用し、down N でロールバック、version で現在値を表示する。
func runMigrate(cfg *config.Config, args []string) error {
	opts, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	maskedURL := maskDatabaseURL(cfg.DatabaseURL)

	switch opts.Action {
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil

	case MigrateDown:
		slog.Warn("rolling back database migrations",
			slog.String("database_url", maskedURL),
			slog.Int("steps", opts.Steps),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database rollback completed", slog.Int("steps", opts.Steps))
		return nil

	default:
		slog.Info("running database migrations", slog.String("database_url", maskedURL))
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
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
// URLとして解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
