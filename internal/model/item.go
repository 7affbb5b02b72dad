// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
)

// Category はリモートカタログのカテゴリ（映画/シリーズ）を表す。
type Category string

const (
	// CategoryMovie は映画カテゴリ。
	CategoryMovie Category = "movie"
	// CategoryTV はTVシリーズカテゴリ。
	CategoryTV Category = "tv"
)

// IDPrefix はItem.IDの名前空間プレフィックスを返す（例: "movie-", "tv-"）。
func (c Category) IDPrefix() string {
	return string(c) + "-"
}

// YearUnknown は公開年が不明な場合のセンチネル値。
const YearUnknown = 0

// Score は評点を小数第1位の固定小数点（10分の1単位の整数）で表す。
// 浮動小数点の比較誤差を避け、スコア降順の安定ソートを整数比較で行うための型。
type Score int

// ScoreFromVoteAverage はリモートソースのvote_average（例: 7.84）を
// 小数第1位に丸めたScoreに変換する。
func ScoreFromVoteAverage(voteAverage float64) Score {
	return Score(math.Round(voteAverage * 10))
}

// String はスコアを小数第1位の文字列（例: "7.8"）で返す。
func (s Score) String() string {
	return fmt.Sprintf("%d.%d", int(s)/10, int(s)%10)
}

// Item はいずれかのカテゴリから取得・正規化されたコンテンツレコードを表す。
// IDはカテゴリプレフィックス付きのソースID（例: "movie-603"）で全体一意。
// 同一IDの2つのItemは他のフィールド値に関わらず重複とみなし、最初の出現を採用する。
type Item struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"` // サニタイズ済み
	Category  Category `json:"category"`
	Year      int      `json:"year"` // 不明な場合はYearUnknown
	PosterURL string   `json:"poster_url"`
	Synopsis  string   `json:"synopsis"` // サニタイズ済み
	Score     Score    `json:"score"`
}

// ContentType はコンテンツ種別フィルタを表す。
type ContentType string

const (
	// ContentTypeAll は映画とTVシリーズの両方を対象とする。
	ContentTypeAll ContentType = "all"
	// ContentTypeMovies は映画のみを対象とする。
	ContentTypeMovies ContentType = "movies"
	// ContentTypeTV はTVシリーズのみを対象とする。
	ContentTypeTV ContentType = "tv"
)

// Valid はコンテンツ種別が定義済みの値かどうかを返す。
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeAll, ContentTypeMovies, ContentTypeTV:
		return true
	}
	return false
}

// IncludesMovies はこのフィルタが映画カテゴリを含むかどうかを返す。
func (c ContentType) IncludesMovies() bool {
	return c == ContentTypeAll || c == ContentTypeMovies
}

// IncludesTV はこのフィルタがTVシリーズカテゴリを含むかどうかを返す。
func (c ContentType) IncludesTV() bool {
	return c == ContentTypeAll || c == ContentTypeTV
}

// ParseContentType は永続化された文字列をContentTypeに変換する。
// 未知の値の場合はContentTypeAllとfalseを返す。
func ParseContentType(s string) (ContentType, bool) {
	ct := ContentType(s)
	if !ct.Valid() {
		return ContentTypeAll, false
	}
	return ct, true
}

// ResultFilter は注釈（レーティング）による結果一覧の絞り込み種別を表す。
type ResultFilter string

const (
	// ResultFilterAll は全件を表示するフィルタ。
	ResultFilterAll ResultFilter = "all"
	// ResultFilterLoved は「Loved」評価のみを表示するフィルタ。
	ResultFilterLoved ResultFilter = "loved"
	// ResultFilterWatched は「Watched」評価のみを表示するフィルタ。
	ResultFilterWatched ResultFilter = "watched"
	// ResultFilterToWatch は未評価のみを表示するフィルタ。
	ResultFilterToWatch ResultFilter = "to-watch"
	// ResultFilterPass は「Pass」評価のみを表示するフィルタ。
	ResultFilterPass ResultFilter = "pass"
)

// Valid は結果フィルタが定義済みの値かどうかを返す。
func (f ResultFilter) Valid() bool {
	switch f {
	case ResultFilterAll, ResultFilterLoved, ResultFilterWatched, ResultFilterToWatch, ResultFilterPass:
		return true
	}
	return false
}

// ParseResultFilter は永続化された文字列をResultFilterに変換する。
// 未知の値の場合はResultFilterAllとfalseを返す。
func ParseResultFilter(s string) (ResultFilter, bool) {
	f := ResultFilter(s)
	if !f.Valid() {
		return ResultFilterAll, false
	}
	return f, true
}
