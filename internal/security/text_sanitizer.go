// Package security はアプリケーションのセキュリティ機能を提供する。
//
// テキストのサニタイズ、永続化データ・リモートデータの形式検証、
// および外部リクエストのSSRF防止を含む。
// サニタイズは文字レベルの除去処理であり、失敗しない（常に文字列を返す）。
package security

import (
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/hitoshi/watchdeck/internal/model"
)

var (
	// javascriptSchemeRe は文字列中の"javascript:"プレフィックスにマッチする（大文字小文字無視）。
	javascriptSchemeRe = regexp.MustCompile(`(?i)javascript:`)
	// eventHandlerRe はインラインイベントハンドラのパターン（on<word>=）にマッチする。
	eventHandlerRe = regexp.MustCompile(`(?i)on\w+=`)
)

// SanitizeText はテキストから危険な文字・パターンを除去する。
// 処理内容:
//   - "<" と ">" の除去（HTMLインジェクション防止）
//   - "javascript:" スキームの除去（大文字小文字無視、出現位置を問わない）
//   - インラインイベントハンドラ（on<word>=）の除去
//   - 前後の空白のトリム
//   - model.CommentMaxLengthコードユニットへの切り詰め
//
// 常に成功する。入力が空の場合は空文字列を返す。
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = javascriptSchemeRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return TruncateUTF16(s, model.CommentMaxLength)
}

// SanitizeItem はリモートレコード由来のItemのタイトルとあらすじをサニタイズし、
// それ以外のフィールドは変更せずに返す。
func SanitizeItem(item model.Item) model.Item {
	item.Title = SanitizeText(item.Title)
	item.Synopsis = SanitizeText(item.Synopsis)
	return item
}

// UTF16Length は文字列の長さをUTF-16コードユニット数で返す。
// 永続化フォーマットの長さ制限はUTF-16コードユニット基準で定義されているため、
// バイト長やルーン数ではなくこの関数で判定する。
func UTF16Length(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// TruncateUTF16 は文字列を最大maxコードユニット（UTF-16基準）に切り詰める。
// サロゲートペアの途中では切らず、ペア全体を落とす。
func TruncateUTF16(s string, max int) string {
	if UTF16Length(s) <= max {
		return s
	}
	units := utf16.Encode([]rune(s))
	if len(units) > max {
		units = units[:max]
	}
	// 末尾が上位サロゲートの場合はペアが分断されているため除去する
	if len(units) > 0 && units[len(units)-1] >= 0xD800 && units[len(units)-1] <= 0xDBFF {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}
