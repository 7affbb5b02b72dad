// Package tmdb はリモートカタログ（TMDB discoverエンドポイント）の
// URL構築・レスポンス解釈・ドメインモデルへの正規化を提供する。
// HTTPの発行自体はcoordinatorが担い、このパッケージは通信を行わない。
package tmdb

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hitoshi/watchdeck/internal/model"
	"github.com/hitoshi/watchdeck/internal/security"
)

const (
	// fallbackSynopsis はあらすじが欠落しているレコードの固定プレースホルダ。
	fallbackSynopsis = "No synopsis available."
	// fallbackMoviePoster はポスター画像が欠落している映画の固定プレースホルダ。
	fallbackMoviePoster = "https://images.unsplash.com/photo-1534447677768-be436bb09401?w=400&h=600&fit=crop"
	// fallbackTVPoster はポスター画像が欠落しているTVシリーズの固定プレースホルダ。
	fallbackTVPoster = "https://images.unsplash.com/photo-1614730321146-b6fa6a46bcb4?w=400&h=600&fit=crop"
)

// Config はカタログクライアントの設定を保持する。
type Config struct {
	APIBaseURL   string
	ImageBaseURL string
	MovieGenreID int
	TVGenreID    int
	SortBy       string
}

// Client はカタログエンドポイントのURL構築とレスポンス正規化を行う。
type Client struct {
	cfg Config
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// DiscoverURL は指定カテゴリ・ページのdiscoverエンドポイントURLを構築する。
// ジャンルフィルタとソート順は設定値を使用する。
func (c *Client) DiscoverURL(category model.Category, page int) string {
	genreID := c.cfg.MovieGenreID
	if category == model.CategoryTV {
		genreID = c.cfg.TVGenreID
	}

	q := url.Values{}
	q.Set("with_genres", strconv.Itoa(genreID))
	q.Set("sort_by", c.cfg.SortBy)
	q.Set("page", strconv.Itoa(page))

	return fmt.Sprintf("%s/discover/%s?%s", c.cfg.APIBaseURL, category, q.Encode())
}

// Record はリモートレコード1件の生データを表す。
// 映画はtitle/release_date、TVシリーズはname/first_air_dateを使用する。
type Record struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// DiscoverResponse はdiscoverエンドポイントの1ページ分のレスポンスを表す。
type DiscoverResponse struct {
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Results    []Record `json:"results"`
}

// ParseDiscoverResponse はレスポンスボディをDiscoverResponseに解釈する。
// パース不能なボディは上流エラー（リトライ可能）として扱う。
func (c *Client) ParseDiscoverResponse(body []byte) (*DiscoverResponse, error) {
	var resp DiscoverResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewUpstreamError(fmt.Sprintf("レスポンスのパースに失敗しました: %s", err.Error()))
	}
	return &resp, nil
}

// Normalize はリモートレコードをItemに正規化する。
// IDはカテゴリプレフィックス付きソースID、タイトル・あらすじはサニタイズ済み、
// ポスター・あらすじの欠落は固定プレースホルダで補完する。
func (c *Client) Normalize(rec Record, category model.Category) model.Item {
	title := rec.Title
	date := rec.ReleaseDate
	poster := fallbackMoviePoster
	if category == model.CategoryTV {
		title = rec.Name
		date = rec.FirstAirDate
		poster = fallbackTVPoster
	}

	if rec.PosterPath != "" {
		poster = c.cfg.ImageBaseURL + rec.PosterPath
	}

	synopsis := rec.Overview
	if synopsis == "" {
		synopsis = fallbackSynopsis
	}

	item := model.Item{
		ID:        category.IDPrefix() + strconv.Itoa(rec.ID),
		Title:     title,
		Category:  category,
		Year:      yearFromDate(date),
		PosterURL: poster,
		Synopsis:  synopsis,
		Score:     model.ScoreFromVoteAverage(rec.VoteAverage),
	}

	return security.SanitizeItem(item)
}

// NormalizeAll は1ページ分のレコードをまとめて正規化する。
func (c *Client) NormalizeAll(records []Record, category model.Category) []model.Item {
	items := make([]model.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, c.Normalize(rec, category))
	}
	return items
}

// yearFromDate は"YYYY-MM-DD"形式の日付文字列から公開年を取り出す。
// 空文字列やパース不能な日付はYearUnknownを返す。
func yearFromDate(date string) int {
	if len(date) < 4 {
		return model.YearUnknown
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return model.YearUnknown
	}
	return year
}
