// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// AppError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type AppError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: config, upstream, aborted, validation
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingCredential = "CONFIG_MISSING_CREDENTIAL"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeAborted           = "ABORTED"
	ErrCodeValidation        = "VALIDATION_ERROR"
)

// NewMissingCredentialError はアクセス資格情報未設定エラーを生成する。
// 設定変更なしではリトライ不可能な致命的エラーとして扱う。
func NewMissingCredentialError(envKey string) *AppError {
	return &AppError{
		Code:     ErrCodeMissingCredential,
		Message:  fmt.Sprintf("アクセストークンが設定されていません: %s", envKey),
		Category: "config",
		Action:   fmt.Sprintf("環境変数 %s にAPIアクセストークンを設定してから再起動してください。", envKey),
	}
}

// NewUpstreamError はリモートカタログの取得失敗エラーを生成する。
// fetchの再実行でリトライ可能なエラーとして扱う。
func NewUpstreamError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("カタログの取得に失敗しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再読み込みしてください。",
	}
}

// NewAbortedError はリクエストのキャンセル（後続呼び出しによる破棄・終了処理）を表す
// エラーを生成する。ユーザーにエラーとして表示してはならない。
func NewAbortedError() *AppError {
	return &AppError{
		Code:     ErrCodeAborted,
		Message:  "リクエストはキャンセルされました。",
		Category: "aborted",
		Action:   "",
	}
}

// NewValidationError は永続化データ・リモートデータの形式検証失敗エラーを生成する。
// ユーザーには表示せず、対象データの破棄と警告ログで処理する。
func NewValidationError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("データの形式検証に失敗しました: %s", reason),
		Category: "validation",
		Action:   "",
	}
}

// IsAborted はエラーがキャンセル由来かどうかを判定する。
// キャンセルはユーザー可視のエラーとして扱わないため、呼び出し元はこの判定で抑制する。
func IsAborted(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeAborted
	}
	return false
}

// IsConfigurationError はエラーが設定不備由来（リトライ不可）かどうかを判定する。
func IsConfigurationError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeMissingCredential
	}
	return false
}
