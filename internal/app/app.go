package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/watchdeck/internal/aggregate"
	"github.com/hitoshi/watchdeck/internal/annotation"
	"github.com/hitoshi/watchdeck/internal/cache"
	"github.com/hitoshi/watchdeck/internal/config"
	"github.com/hitoshi/watchdeck/internal/coordinator"
	"github.com/hitoshi/watchdeck/internal/database"
	"github.com/hitoshi/watchdeck/internal/logger"
	"github.com/hitoshi/watchdeck/internal/metrics"
	"github.com/hitoshi/watchdeck/internal/repository"
	"github.com/hitoshi/watchdeck/internal/security"
	"github.com/hitoshi/watchdeck/internal/tmdb"
	"github.com/hitoshi/watchdeck/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("data_path", cfg.DataPath),
	)

	switch cmd {
	case CommandFetch:
		return runFetch(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runBrowse(cfg)
	}
}

// core はブラウズ/取得モードで共有する依存関係一式。
type core struct {
	db         *sql.DB
	aggregator *aggregate.Aggregator
	notes      *annotation.Store
	cacheStore *cache.Store
	registry   *prometheus.Registry
}

// buildCore は全依存関係をワイヤリングして永続化済みの状態を復元する。
func buildCore(ctx context.Context, cfg *config.Config) (*core, error) {
	// 1. ローカルDBのマイグレーションと接続
	if err := database.RunMigrations(cfg.DataPath); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	db, err := database.Open(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("local database connection established")

	repo := repository.NewSQLiteStateRepo(db)

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.APIBaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("unsafe API base URL: %w", err)
	}
	client := ssrfGuard.NewSafeClient(cfg.FetchTimeout)

	// 4. フェッチ層の初期化
	coord := coordinator.New(
		client, cfg.MinBatchInterval, cfg.AccessToken, cfg.FetchMaxSize,
		slog.Default(), collector,
	)
	catalog := tmdb.NewClient(tmdb.Config{
		APIBaseURL:   cfg.APIBaseURL,
		ImageBaseURL: cfg.ImageBaseURL,
		MovieGenreID: cfg.MovieGenreID,
		TVGenreID:    cfg.TVGenreID,
		SortBy:       cfg.SortBy,
	})

	// 5. 集約層と注釈ストアの初期化
	cacheStore := cache.NewStore(cfg.CacheTTL)
	aggregator := aggregate.New(
		coord, catalog, cacheStore, repo, collector,
		slog.Default(), cfg.PagesPerFreshLoad,
	)
	notes := annotation.NewStore(repo, slog.Default(), cfg.CommentDebounce)

	// 6. 永続化済みのセッション状態を復元
	if err := aggregator.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restore session state: %w", err)
	}
	if err := notes.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restore annotations: %w", err)
	}

	return &core{
		db:         db,
		aggregator: aggregator,
		notes:      notes,
		cacheStore: cacheStore,
		registry:   registry,
	}, nil
}

// close は依存関係を安全に解放する。
func (c *core) close(ctx context.Context) {
	c.aggregator.Close()
	if err := c.notes.Close(ctx); err != nil {
		slog.Warn("failed to flush annotations", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		slog.Warn("failed to close database", slog.String("error", err.Error()))
	}
}

// runBrowse は対話ブラウズモードで起動する。
// 依存関係をワイヤリングして初回取得を行い、標準入力のコマンドループに入る。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runBrowse(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down...")
		cancel()
	}()

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(context.Background())

	// キャッシュスイープジョブをバックグラウンドで起動
	sweepJob := sweep.NewSweepJob(c.cacheStore, slog.Default())
	go sweepJob.Start(ctx, c.cacheStore.TTL())

	// メトリクスエンドポイントの起動（設定時のみ）
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, c.registry)
	}

	// 初回取得。キャッシュが有効な場合はリクエストを発行しない。
	if err := c.aggregator.Fetch(ctx, false, false); err != nil {
		slog.Error("initial fetch failed", slog.String("error", err.Error()))
	}

	session := newBrowseSession(c.aggregator, c.notes, os.Stdout)
	session.run(ctx, os.Stdin)

	return nil
}

// runFetch はカタログを1回取得して結果一覧をJSONで標準出力に書き出す。
// スクリプトからの利用を想定した非対話モード。
func runFetch(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+30*time.Second)
	defer cancel()

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(context.Background())

	if err := c.aggregator.Fetch(ctx, false, false); err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	state := c.aggregator.Snapshot()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state.Items); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	slog.Info("fetch completed",
		slog.Int("item_count", len(state.Items)),
		slog.Bool("can_load_more", state.CanLoadMore),
	)
	return nil
}

// runMigrate はローカルデータベースのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("data_path", cfg.DataPath),
	)

	if err := database.RunMigrations(cfg.DataPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// serveMetrics はメトリクス公開用のHTTPサーバーを起動する。
// コンテキストのキャンセルでシャットダウンする。
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server starting", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server error", slog.String("error", err.Error()))
	}
}
