// Package repository はローカルデータ永続化のインターフェースを定義する。
package repository

import "context"

// 永続化エントリの固定キー。
// 注釈マップ・フィルタ・ページカーソルはそれぞれ独立したテキストエントリとして
// 保存され、破損したエントリは読み込み時に破棄・削除される。
const (
	// KeyRatings はレーティングマップ（JSON）のキー。
	KeyRatings = "ratings"
	// KeyComments はコメントマップ（JSON）のキー。
	KeyComments = "comments"
	// KeyContentType はアクティブなコンテンツ種別フィルタのキー。
	KeyContentType = "content_type"
	// KeyResultFilter はアクティブな結果フィルタのキー。
	KeyResultFilter = "result_filter"
	// KeyMoviePage は映画カテゴリのページカーソルのキー。
	KeyMoviePage = "movie_page"
	// KeyTVPage はTVカテゴリのページカーソルのキー。
	KeyTVPage = "tv_page"
	// KeyCachedData はシリアライズ済みキャッシュストアのキー。
	KeyCachedData = "cached_data"
)

// StateRepository はキー付きテキストエントリの永続化インターフェース。
// ユーザーのローカルデバイス上の耐久ストレージに対応する。
type StateRepository interface {
	// Get は指定キーのエントリを取得する。存在しない場合は("", false, nil)を返す。
	Get(ctx context.Context, key string) (string, bool, error)

	// Set は指定キーにエントリを保存する。既存エントリは上書きする。
	Set(ctx context.Context, key, value string) error

	// Delete は指定キーのエントリを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, key string) error
}
