// Package app はサブコマンドの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/eventkeeper/internal/article"
	"github.com/hitoshi/eventkeeper/internal/auth"
	"github.com/hitoshi/eventkeeper/internal/config"
	"github.com/hitoshi/eventkeeper/internal/database"
	"github.com/hitoshi/eventkeeper/internal/event"
	"github.com/hitoshi/eventkeeper/internal/handler"
	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/linkpreview"
	"github.com/hitoshi/eventkeeper/internal/logger"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/middleware"
	"github.com/hitoshi/eventkeeper/internal/owner"
	"github.com/hitoshi/eventkeeper/internal/repository"
	"github.com/hitoshi/eventkeeper/internal/repository/memstore"
	"github.com/hitoshi/eventkeeper/internal/security"
	"github.com/hitoshi/eventkeeper/internal/speaker"
	"github.com/hitoshi/eventkeeper/internal/timer"
	"github.com/hitoshi/eventkeeper/internal/user"
	"github.com/hitoshi/eventkeeper/internal/viewcache"
	"github.com/hitoshi/eventkeeper/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVEL / LOG_FORMATに従ってグローバルロガーを設定する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みのエラーを出力できるよう、先にデフォルトのロガーを設定する
	logger.SetupDefault(w, logger.Options{})

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
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
		slog.String("base_url", cfg.BaseURL),
		slog.String("data_store", cfg.DataStore),
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

// components はserveとworkerで共有する基盤の依存関係。
type components struct {
	store    repository.Store
	db       *sql.DB // DATA_STORE=memoryの場合はnil
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// openComponents はメトリクスレジストリとデータストアを初期化する。
func openComponents(cfg *config.Config) (*components, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	c := &components{registry: registry, metrics: collector}

	if cfg.DataStore == config.DataStoreMemory {
		slog.Warn("using in-memory data store; data is lost on restart")
		c.store = memstore.New()
		return c, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	c.db = db
	c.store = repository.NewPostgresStore(db, repository.PostgresStoreConfig{
		MaxRetries: cfg.TxMaxRetries,
		OnRetry: func(attempt int, err error) {
			collector.RecordTxRetry()
		},
	})
	return c, nil
}

// Close はデータベース接続を閉じる。
func (c *components) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// newAPIHandler はドメインサービスを組み立て、APIルーターを返す。
// 返されたRateLimiterは呼び出し側でStopすること。
func newAPIHandler(cfg *config.Config, c *components) (http.Handler, *middleware.RateLimiter) {
	bus := invalidation.NewBus(c.metrics)
	cache := viewcache.New(cfg.ViewCacheTTL, c.metrics)
	bus.Subscribe(cache.Invalidate)

	guard := security.NewURLGuard()
	sanitizer := security.NewSanitizer()

	eventOpts := []event.Option{event.WithMetrics(c.metrics)}
	if cfg.LinkPreviewEnabled {
		fetcher := linkpreview.NewFetcher(guard.NewSafeClient(cfg.LinkPreviewTimeout), guard, c.metrics)
		eventOpts = append(eventOpts, event.WithLinkPreview(fetcher))
	}

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, c.store, bus, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitMutation))

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     c.store.Repos().Sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Metrics:        c.metrics,
		MetricsHandler: metrics.Handler(c.registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		EventService:   event.NewService(c.store, bus, cache, guard, eventOpts...),
		OwnerService:   owner.NewService(c.store, bus, c.metrics),
		TimerService:   timer.NewService(c.store, bus, c.metrics),
		SpeakerService: speaker.NewService(c.store, bus, c.metrics),
		ArticleService: article.NewService(c.store, bus, sanitizer, guard, c.metrics),
		UserService:    user.NewService(c.store, bus, c.metrics),
	}
	// nilの*sql.DBをインターフェースに入れるとnil判定できなくなるため、DB利用時のみ設定する
	if c.db != nil {
		deps.HealthChecker = c.db
	}

	return handler.NewRouter(deps), rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	c, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	router, rateLimiter := newAPIHandler(cfg, c)
	defer rateLimiter.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// workerプロセスとストアを共有できないため、インメモリ時はサーバー内でクリーンアップする
	if c.db == nil {
		job := cleanup.NewSessionCleanupJob(c.store.Repos().Sessions, slog.Default())
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen failed: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を実行し、/metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DataStore == config.DataStoreMemory {
		return errors.New("worker requires DATA_STORE=postgres")
	}

	c, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(c.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	job := cleanup.NewSessionCleanupJob(c.store.Repos().Sessions, slog.Default())
	job.Start(ctx, cfg.SessionCleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DataStore == config.DataStoreMemory {
		slog.Info("DATA_STORE=memory; no migrations to run")
		return nil
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

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
