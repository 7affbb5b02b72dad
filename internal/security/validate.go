package security

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/hitoshi/watchdeck/internal/model"
)

// maxPageNumber はページ番号の上限。リモートカタログの最大ページ数に合わせる。
const maxPageNumber = 1000

// ValidateRatingMap はレーティングマップの形式を検証する。
// すべての値が許可された4つのレーティングタグのいずれかである場合にtrueを返す。
func ValidateRatingMap(m map[string]string) bool {
	if m == nil {
		return false
	}
	for _, v := range m {
		if !model.Rating(v).Valid() {
			return false
		}
	}
	return true
}

// ValidateCommentMap はコメントマップの形式を検証する。
// すべての値がmodel.CommentMaxLengthコードユニット以下の文字列である場合にtrueを返す。
func ValidateCommentMap(m map[string]string) bool {
	if m == nil {
		return false
	}
	for _, v := range m {
		if UTF16Length(v) > model.CommentMaxLength {
			return false
		}
	}
	return true
}

// ValidatePageNumber は永続化されたページ番号文字列を検証して正規化する。
// パース不能または1未満の場合は1、上限超過の場合はmaxPageNumberを返す。
func ValidatePageNumber(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	if n > maxPageNumber {
		return maxPageNumber
	}
	return n
}

// RestoreIfValid は永続化されたテキストブロブを構造化データとして復元する。
// パース失敗または検証関数の拒否の場合はゼロ値とfalseを返し、警告ログのみ出力する。
// 破損した永続化データで呼び出し元をクラッシュさせてはならない。
func RestoreIfValid[T any](raw string, validator func(T) bool, logger *slog.Logger) (T, bool) {
	var zero T
	if raw == "" {
		return zero, false
	}

	var parsed T
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warn("永続化データのパースに失敗したため破棄します",
			slog.String("error", err.Error()),
		)
		return zero, false
	}

	if !validator(parsed) {
		logger.Warn("永続化データが形式検証に失敗したため破棄します")
		return zero, false
	}

	return parsed, true
}
