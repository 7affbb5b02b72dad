package config

import (
	"testing"
	"time"

	"github.com/hitoshi/watchdeck/internal/model"
)

func TestLoad_AccessTokenSet_ReturnsConfig(t *testing.T) {
	t.Setenv(EnvAccessToken, "test-bearer-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AccessToken != "test-bearer-token" {
		t.Errorf("AccessToken = %q, want %q", cfg.AccessToken, "test-bearer-token")
	}
}

func TestLoad_MissingAccessToken_ReturnsConfigurationError(t *testing.T) {
	t.Setenv(EnvAccessToken, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when access token is not set")
	}

	if !model.IsConfigurationError(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv(EnvAccessToken, "test-bearer-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "https://api.themoviedb.org/3" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://api.themoviedb.org/3")
	}
	if cfg.ImageBaseURL != "https://image.tmdb.org/t/p/w500" {
		t.Errorf("ImageBaseURL = %q, want %q", cfg.ImageBaseURL, "https://image.tmdb.org/t/p/w500")
	}
	if cfg.MovieGenreID != 878 {
		t.Errorf("MovieGenreID = %d, want %d", cfg.MovieGenreID, 878)
	}
	if cfg.TVGenreID != 10765 {
		t.Errorf("TVGenreID = %d, want %d", cfg.TVGenreID, 10765)
	}
	if cfg.SortBy != "popularity.desc" {
		t.Errorf("SortBy = %q, want %q", cfg.SortBy, "popularity.desc")
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout, 10*time.Second)
	}
	if cfg.FetchMaxSize != 5242880 {
		t.Errorf("FetchMaxSize = %d, want %d", cfg.FetchMaxSize, 5242880)
	}
	if cfg.MinBatchInterval != 100*time.Millisecond {
		t.Errorf("MinBatchInterval = %v, want %v", cfg.MinBatchInterval, 100*time.Millisecond)
	}
	if cfg.PagesPerFreshLoad != 3 {
		t.Errorf("PagesPerFreshLoad = %d, want %d", cfg.PagesPerFreshLoad, 3)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, 5*time.Minute)
	}
	if cfg.CommentDebounce != 300*time.Millisecond {
		t.Errorf("CommentDebounce = %v, want %v", cfg.CommentDebounce, 300*time.Millisecond)
	}
	if cfg.DataPath != "./data" {
		t.Errorf("DataPath = %q, want %q", cfg.DataPath, "./data")
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAccessToken, "test-bearer-token")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("MIN_BATCH_INTERVAL", "250ms")
	t.Setenv("PAGES_PER_FRESH_LOAD", "2")
	t.Setenv("DATA_PATH", "/tmp/watchdeck")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, time.Minute)
	}
	if cfg.MinBatchInterval != 250*time.Millisecond {
		t.Errorf("MinBatchInterval = %v, want %v", cfg.MinBatchInterval, 250*time.Millisecond)
	}
	if cfg.PagesPerFreshLoad != 2 {
		t.Errorf("PagesPerFreshLoad = %d, want %d", cfg.PagesPerFreshLoad, 2)
	}
	if cfg.DataPath != "/tmp/watchdeck" {
		t.Errorf("DataPath = %q, want %q", cfg.DataPath, "/tmp/watchdeck")
	}
}

func TestLoad_InvalidDuration_FallsBackToDefault(t *testing.T) {
	t.Setenv(EnvAccessToken, "test-bearer-token")
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default %v", cfg.CacheTTL, 5*time.Minute)
	}
}
