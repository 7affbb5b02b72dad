// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/watchdeck/internal/model"
)

// EnvAccessToken はTMDB APIのアクセストークンを保持する環境変数名。
const EnvAccessToken = "TMDB_ACCESS_TOKEN"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// TMDB API
	AccessToken  string // Bearerトークン（必須）
	APIBaseURL   string
	ImageBaseURL string
	MovieGenreID int
	TVGenreID    int
	SortBy       string

	// Fetch
	FetchTimeout      time.Duration
	FetchMaxSize      int64
	MinBatchInterval  time.Duration // バッチ間の最小間隔
	PagesPerFreshLoad int           // 初回ロードでカテゴリごとに取得するページ数

	// Cache
	CacheTTL time.Duration

	// Annotation
	CommentDebounce time.Duration

	// Storage
	DataPath string // SQLiteデータベースの格納ディレクトリ

	// Metrics
	MetricsAddr string // 空の場合はメトリクスエンドポイントを起動しない
}

// Load は環境変数からConfigを読み込む。
// アクセストークンが未設定の場合は設定エラー（リトライ不可）を返す。
// リクエスト発行前に必ずこの検証を通過させること。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AccessToken = os.Getenv(EnvAccessToken)
	if cfg.AccessToken == "" {
		return nil, model.NewMissingCredentialError(EnvAccessToken)
	}

	// Optional fields with defaults
	cfg.APIBaseURL = getEnvString("TMDB_API_BASE_URL", "https://api.themoviedb.org/3")
	cfg.ImageBaseURL = getEnvString("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500")
	cfg.MovieGenreID = getEnvInt("MOVIE_GENRE_ID", 878)
	cfg.TVGenreID = getEnvInt("TV_GENRE_ID", 10765)
	cfg.SortBy = getEnvString("SORT_BY", "popularity.desc")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.MinBatchInterval = getEnvDuration("MIN_BATCH_INTERVAL", 100*time.Millisecond)
	cfg.PagesPerFreshLoad = getEnvInt("PAGES_PER_FRESH_LOAD", 3)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.CommentDebounce = getEnvDuration("COMMENT_DEBOUNCE", 300*time.Millisecond)
	cfg.DataPath = getEnvString("DATA_PATH", "./data")
	cfg.MetricsAddr = getEnvString("METRICS_ADDR", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
