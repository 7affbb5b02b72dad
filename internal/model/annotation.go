package model

// Rating はユーザーがItemに付けるレーティングタグを表す。
// 未評価は空文字列で表現する（永続化フォーマットとの互換のため）。
type Rating string

const (
	// RatingUnrated は未評価を表す。
	RatingUnrated Rating = ""
	// RatingLoved は「Loved」評価を表す。
	RatingLoved Rating = "loved"
	// RatingWatched は「Watched」評価を表す。
	RatingWatched Rating = "watched"
	// RatingPass は「Pass」評価を表す。
	RatingPass Rating = "pass"
)

// Valid はレーティングタグが許可された4値のいずれかであるかを返す。
func (r Rating) Valid() bool {
	switch r {
	case RatingUnrated, RatingLoved, RatingWatched, RatingPass:
		return true
	}
	return false
}

// CommentMaxLength はコメントの最大長（UTF-16コードユニット数）。
const CommentMaxLength = 1000

// Annotation はItemに紐づくユーザーの注釈（レーティングタグ+コメント）を表す。
// Item IDをキーとし、明示的な削除は行わない（RatingUnrated/空コメントへ戻すことでクリアする）。
type Annotation struct {
	ItemID  string
	Rating  Rating
	Comment string // サニタイズ済み、最大CommentMaxLengthコードユニット
}
